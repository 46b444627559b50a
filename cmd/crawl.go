package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bramasta/komikarsip/internal/crawl"
)

// newCrawlCmd creates the 'crawl' subcommand, covering both the full
// catalog crawl and single-title crawls.
func newCrawlCmd() *cobra.Command {
	var (
		comic     string
		startPage int
		endPage   int
		chapters  bool
		images    bool
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the catalog (or one title) into the archive",
		Long: `Crawls the comic list page by page, persisting per-title metadata and
optionally chapter documents and image lists. Titles and chapters already
in the archive are reused unless --force is set. A full catalog crawl
rebuilds the index when it finishes; --comic crawls a single title by slug
or URL and leaves the index alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, store, client, err := buildDeps()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			orch := crawl.New(store, client, logger.Named("crawl"))
			opts := crawl.Options{
				StartPage: startPage,
				EndPage:   endPage,
				Chapters:  chapters,
				Images:    images,
				Force:     force,
			}

			if comic != "" {
				return orch.CrawlTitle(cmd.Context(), comic, opts)
			}
			if err := orch.CrawlCatalog(cmd.Context(), opts); err != nil {
				return err
			}
			logger.Info("Crawl command finished", zap.Int("start_page", startPage))
			return nil
		},
	}

	cmd.Flags().StringVar(&comic, "comic", "", "crawl a single title by slug or URL")
	cmd.Flags().IntVar(&startPage, "start-page", 1, "first catalog page to crawl")
	cmd.Flags().IntVar(&endPage, "end-page", 0, "last catalog page to crawl (0 = all)")
	cmd.Flags().BoolVar(&chapters, "chapters", false, "also persist chapter documents")
	cmd.Flags().BoolVar(&images, "images", false, "also scrape chapter image lists (implies --chapters for --comic)")
	cmd.Flags().BoolVar(&force, "force", false, "re-fetch even when data already exists")

	return cmd
}
