package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sizebot/sizebot/internal/bulk"
	"github.com/sizebot/sizebot/internal/commands"
	"github.com/sizebot/sizebot/internal/senses"
)

func newQueryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Answer one message (a part code, a word or a /command) and exit",
		Example: `  sizebot query 223002G4GC
  sizebot query "/add 223002G4GC 60*45*40 ГБЦ"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.dispatcher.Dispatch(cmd.Context(), commands.Message{
				Text:     strings.Join(args, " "),
				Sender:   "cli",
				Internal: true,
			})
			defer resp.Cleanup()

			out := senses.NewCLISense(nil, cmd.OutOrStdout())
			return out.Send(cmd.Context(), "", senses.Reply{Text: resp.Text, Document: resp.Document})
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Load a bulk text file (\"code size description\" per line) into the table",
		Long: `Each line holds a code, a size and a description separated by whitespace.
Lines with fewer than three fields are skipped. Existing codes are replaced.
Without a file argument the configured bulk file is loaded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			path := cfg.BulkPath()
			if len(args) == 1 {
				path = args[0]
			}

			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			st, err := bulk.Import(cmd.Context(), a.store, f, a.log)
			if err != nil {
				return fmt.Errorf("import %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d loaded, %d skipped, %d failed\n",
				path, st.Loaded, st.Skipped, st.Failed)
			return nil
		},
	}
}

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every record in bulk format to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.All(cmd.Context())
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}

			if len(args) == 0 || args[0] == "-" {
				return bulk.Write(cmd.OutOrStdout(), records)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := bulk.Write(f, records); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(records), args[0])
			return nil
		},
	}
}
