package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bramasta/komikarsip/internal/integrity"
)

// newCheckCmd creates the 'check' subcommand, which re-visits archived
// chapters and replaces the ones that went stale upstream.
func newCheckCmd() *cobra.Command {
	var (
		comic string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Re-check archived chapters against the live site",
		Long: `Walks chapters already present in the archive, fetches their live image
lists, and rewrites any snapshot whose live counterpart gained images or
rotated its image URLs. Chapters missing locally are skipped, and a live
chapter reporting fewer images than the archive is treated as a transient
anomaly: warned about, never written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if comic == "" && !all {
				return cmd.Help()
			}

			_, logger, store, client, err := buildDeps()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if !client.WarmUp(cmd.Context()) {
				logger.Warn("Warm-up never succeeded; continuing anyway")
			}

			engine := integrity.NewEngine(store, client, logger.Named("integrity"))
			if comic != "" {
				_, err := engine.CheckTitle(cmd.Context(), comic)
				return err
			}
			return engine.CheckAll(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&comic, "comic", "", "slug of the title to check")
	cmd.Flags().BoolVar(&all, "all", false, "check every title in the archive")

	return cmd
}
