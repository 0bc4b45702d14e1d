package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/paged-api-client/pkg/client"
	"github.com/Sternrassler/paged-api-client/pkg/logging"
	"github.com/Sternrassler/paged-api-client/pkg/pagination"
	"github.com/spf13/cobra"
)

var fetchFlags struct {
	endpoint    string
	concurrency int
	ttl         time.Duration
	userAgent   string
	logLevel    string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Stream all items of an endpoint to stdout",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.endpoint, "endpoint", "", "collection endpoint URL (required)")
	fetchCmd.Flags().IntVar(&fetchFlags.concurrency, "concurrency", 5, "max simultaneous upstream requests (0 = unbounded)")
	fetchCmd.Flags().DurationVar(&fetchFlags.ttl, "ttl", time.Hour, "response cache TTL")
	fetchCmd.Flags().StringVar(&fetchFlags.userAgent, "user-agent", "pagectl/"+version, "User-Agent header")
	fetchCmd.Flags().StringVar(&fetchFlags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	_ = fetchCmd.MarkFlagRequired("endpoint")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(fetchFlags.logLevel),
		Pretty: true,
		Output: os.Stderr,
	})

	cfg := client.DefaultConfig()
	cfg.MaxConcurrency = fetchFlags.concurrency
	cfg.CacheTTL = fetchFlags.ttl
	cfg.UserAgent = fetchFlags.userAgent

	dispatcher, err := client.New(cfg)
	if err != nil {
		return err
	}

	// Ctrl-C unwinds the traversal instead of killing the process.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	fetcher := pagination.NewFetcher[json.RawMessage](dispatcher)
	stream := fetcher.FetchItems(ctx, fetchFlags.endpoint)

	count := 0
	for stream.Next() {
		if _, err := out.Write(stream.Item()); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
		count++
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("traversal aborted after %d items: %w", count, err)
	}

	fmt.Fprintf(os.Stderr, "fetched %d items\n", count)
	return nil
}
