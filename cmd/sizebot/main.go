// Package main is the entry point for sizebot.
//
// Usage:
//
//	sizebot serve              Telegram bot + HTTP API (+ bulk-file watcher)
//	sizebot cli                interactive mode on stdin/stdout
//	sizebot query <text>       answer one message and exit
//	sizebot import [file]      load a bulk text file into the table
//	sizebot export [file]      dump the table in bulk format
//	sizebot status             report the running instance
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	appName = "sizebot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by all subcommands.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Part size lookup bot",
		Long: `sizebot answers part-size questions from a code/size/description table.

Send a part code (or its last characters) or a word from the description to
get the stored size; unknown codes from known part families get the family's
standard size. Slash commands maintain the table.

Environment variables:
  TOKEN / SIZEBOT_TELEGRAM_TOKEN  Telegram bot token
  SIZEBOT_CONFIG                  YAML config file
  SIZEBOT_DATA                    base directory for relative paths (default: .)
  SIZEBOT_DB_DRIVER               sqlite or postgres (default: sqlite)
  SIZEBOT_DB_PATH                 sqlite file (default: resources/sizes.db)
  SIZEBOT_DB_DSN                  postgres connection string
  SIZEBOT_BULK_PATH               bulk text file (default: resources/sizes.txt)
  SIZEBOT_API_ADDR                HTTP API address (default: 127.0.0.1:9090)
  SIZEBOT_ARCHIVE_BUCKET          S3 bucket receiving /export_db copies
  SIZEBOT_LOG_LEVEL               debug, info, warn or error`,
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("SIZEBOT_CONFIG"), "path to YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newCLICmd(opts),
		newQueryCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newStatusCmd(opts),
		newStopCmd(opts),
		newServiceCmd(opts),
		newConfigCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", appName, version)
			},
		},
	)
	return root
}
