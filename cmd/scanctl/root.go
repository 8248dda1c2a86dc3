package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anime-shed/bookscan-go/internal/config"
	"github.com/anime-shed/bookscan-go/internal/container"
	"github.com/anime-shed/bookscan-go/internal/evaluation"
	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/isbn"
	"github.com/anime-shed/bookscan-go/internal/service"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanctl",
		Short: "Extract book metadata from cover, copyright and price photos",
		Long: `scanctl runs the bookscan extraction pipeline locally.

Scan sessions are kept in a bolt file between invocations, so a book can be
scanned one page at a time and finalized into the catalog.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newFinalizeCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newISBNCmd())

	return cmd
}

func newScanCmd() *cobra.Command {
	var step, sessionID string

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "Scan one photo into a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			c, err := openContainer(config.SessionStoreBolt, "")
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Coordinator().Scan(cmd.Context(), service.ScanRequest{
				Image:     data,
				Step:      step,
				SessionID: sessionID,
			})
			if result != nil {
				if werr := printJSON(cmd.OutOrStdout(), result); werr != nil {
					return werr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&step, "step", "cover", "scan step: cover, info or price")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue; a new one is created when empty")
	return cmd
}

func newFinalizeCmd() *cobra.Command {
	var copies int

	cmd := &cobra.Command{
		Use:   "finalize SESSION",
		Short: "Admit a scanned session to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(config.SessionStoreBolt, "")
			if err != nil {
				return err
			}
			defer c.Close()

			book, err := c.Coordinator().Finalize(cmd.Context(), args[0], copies)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), book)
		},
	}

	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies to admit")
	return cmd
}

func newEvalCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "eval MANIFEST",
		Short: "Score extraction against a YAML manifest of labelled photos",
		Long: `eval scans every photo listed in the manifest in a throwaway session and
compares the extracted fields with the expected ones using exact match,
character error rate and word error rate.

Manifest format:

  entries:
    - image: covers/001.jpg
      step: cover
      expected:
        title: 算法导论`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := evaluation.LoadManifest(args[0])
			if err != nil {
				return err
			}

			scratch, err := os.MkdirTemp("", "scanctl-eval")
			if err != nil {
				return err
			}
			defer os.RemoveAll(scratch)

			c, err := openContainer(config.SessionStoreMemory, filepath.Join(scratch, "catalog.db"))
			if err != nil {
				return err
			}
			defer c.Close()

			scan := func(ctx context.Context, image []byte, step string) (map[string]string, error) {
				result, err := c.Coordinator().Scan(ctx, service.ScanRequest{Image: image, Step: step})
				if err != nil {
					return nil, err
				}
				return fieldValues(result.Fields), nil
			}

			report, err := evaluation.Run(cmd.Context(), manifest, scan)
			if err != nil {
				return err
			}
			return evaluation.WriteYAML(output, report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "report path, - for stdout")
	return cmd
}

func newISBNCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "isbn CODE...",
		Short: "Check ISBN-13 checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invalid := 0
			for _, arg := range args {
				code := isbn.Clean(arg)
				status := "valid"
				if !isbn.Validate(code) {
					status = "invalid"
					invalid++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", code, status)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d codes failed the checksum", invalid, len(args))
			}
			return nil
		},
	}
}

// openContainer loads config from the environment with the given session
// store. A non-empty catalogPath overrides CATALOG_DB_PATH.
func openContainer(store, catalogPath string) (*container.Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SessionStore = store
	if catalogPath != "" {
		cfg.CatalogDBPath = catalogPath
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	return container.NewContainer(cfg, nil)
}

func fieldValues(fields []extractor.Field) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.Name == extractor.FieldPrice {
			out[string(f.Name)] = evaluation.FormatPrice(f.Number)
			continue
		}
		out[string(f.Name)] = f.Value
	}
	return out
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
