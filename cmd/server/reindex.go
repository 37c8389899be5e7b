package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"hexanote-sync-server/internal/config"
	"hexanote-sync-server/internal/indexer"
	"hexanote-sync-server/internal/service"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from storage",
	Long: `Send every stored note to the configured search index. Deleted notes
are removed from it. Useful after the index was wiped or INDEXER_URL changed.

Examples:
  hexanote-server reindex
  hexanote-server reindex --timeout 30m --json`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().Duration("timeout", 10*time.Minute, "Give up after this long")
	reindexCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(reindexCmd)
}

// newIndexer builds the indexer for cfg. Without INDEXER_URL documents are
// only logged.
func newIndexer(cfg *config.Config) *indexer.Indexer {
	var sink indexer.Sink = indexer.LogSink{}
	if cfg.Indexer.URL != "" {
		sink = indexer.NewHTTPSink(cfg.Indexer.URL, &http.Client{Timeout: cfg.Indexer.Timeout})
		log.Printf("Indexing notes into %s", cfg.Indexer.URL)
	}
	return indexer.New(sink, indexer.Options{
		QueueSize:    cfg.Indexer.QueueSize,
		Timeout:      cfg.Indexer.Timeout,
		ChunkSize:    cfg.Indexer.ChunkSize,
		ChunkOverlap: cfg.Indexer.ChunkOverlap,
	})
}

func runReindex(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver == "memory" {
		return fmt.Errorf("reindex needs DB_DRIVER=couchdb; use POST /api/v1/notes/reindex on a running server")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	notes := service.NewNoteService(st.notes, nil, nil, nil)
	notes.SetIndexer(newIndexer(cfg))

	res, err := notes.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	fmt.Printf("Reindexed %d of %d notes (%d errors)\n", res.Success, res.Total, res.Errors)
	return nil
}
