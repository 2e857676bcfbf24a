package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yycdirectory/sync-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print aggregate store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "status: open store")
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "status: counts")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(counts), "status: encode counts")
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
