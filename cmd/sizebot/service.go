package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sizebot/sizebot/internal/deploy"
)

func newServiceCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the systemd user unit running \"sizebot serve\"",
	}

	unitConfig := func() (deploy.ServiceConfig, error) {
		cfg, err := loadConfig(opts)
		if err != nil {
			return deploy.ServiceConfig{}, err
		}
		bin, err := os.Executable()
		if err != nil {
			return deploy.ServiceConfig{}, fmt.Errorf("locate binary: %w", err)
		}
		workDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return deploy.ServiceConfig{}, err
		}
		sc := deploy.ServiceConfig{BinaryPath: bin, WorkDir: workDir}
		if opts.configPath != "" {
			if sc.ConfigPath, err = filepath.Abs(opts.configPath); err != nil {
				return deploy.ServiceConfig{}, err
			}
		}
		return sc, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "unit",
			Short: "Print the unit file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sc, err := unitConfig()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), deploy.GenerateSystemdUnit(sc))
				return nil
			},
		},
		&cobra.Command{
			Use:   "install",
			Short: "Install the unit into ~/.config/systemd/user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				sc, err := unitConfig()
				if err != nil {
					return err
				}
				path, err := deploy.UnitPath()
				if err != nil {
					return err
				}
				msg, err := deploy.Install(path, sc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Remove the installed unit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := deploy.UnitPath()
				if err != nil {
					return err
				}
				if err := deploy.Uninstall(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\nrun: systemctl --user daemon-reload\n", path)
				return nil
			},
		},
	)
	return cmd
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
