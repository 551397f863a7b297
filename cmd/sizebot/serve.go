package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sizebot/sizebot/internal/bot"
	"github.com/sizebot/sizebot/internal/deploy"
	"github.com/sizebot/sizebot/internal/security"
	"github.com/sizebot/sizebot/internal/senses"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the HTTP API and the bulk-file watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			reg := a.serveRegistry()
			if len(reg.Names()) == 0 {
				return errors.New("nothing to serve: set TOKEN or api.addr")
			}

			pid := deploy.NewPIDFile(cfg.DataDir)
			if err := pid.Guard(); err != nil {
				return err
			}
			defer pid.Remove()

			limiter := security.NewRateLimiter(cfg.Telegram.RateLimit, time.Minute)
			err = bot.New(reg, a.dispatcher, a.log, a.metrics, bot.WithRateLimiter(limiter)).Run(ctx)
			if stopErr := reg.StopAll(); stopErr != nil {
				a.log.Warn("stopping senses", "error", stopErr)
			}
			return err
		},
	}
}

func newCLICmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cli",
		Short: "Interactive mode: one message per line on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			// Keep the terminal for replies; logs only go to the log file.
			a, err := newApp(ctx, cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s. Type a part code or a command, /quit to exit.\n", appName, version)
			reg := senses.NewSenseRegistry()
			reg.Register(senses.NewCLISense(cmd.InOrStdin(), cmd.OutOrStdout()))
			return bot.New(reg, a.dispatcher, a.log, a.metrics).Run(ctx)
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether sizebot is running and how many records it has",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if pid, running := deploy.NewPIDFile(cfg.DataDir).IsRunning(); running {
				fmt.Fprintf(out, "sizebot is running (pid=%d)\n", pid)
			} else {
				fmt.Fprintln(out, "sizebot is not running")
			}

			if cfg.API.Addr != "" {
				fmt.Fprintf(out, "api %s: %s\n", cfg.API.Addr, checkHealth(cmd.Context(), cfg.API.Addr))
			}

			a, err := newApp(cmd.Context(), cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.store.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			fmt.Fprintf(out, "database %s: %d records\n", cfg.Database.Driver, n)
			return nil
		},
	}
}

func checkHealth(ctx context.Context, addr string) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err.Error()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "unreachable"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return "ok"
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the running sizebot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pid, err := deploy.NewPIDFile(cfg.DataDir).Signal(syscall.SIGTERM)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent SIGTERM to %d\n", pid)
			return nil
		},
	}
}
