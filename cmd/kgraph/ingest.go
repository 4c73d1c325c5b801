package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/kgraph/internal/cache"
	"github.com/rohankatakam/kgraph/internal/dlq"
	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/graph"
	"github.com/rohankatakam/kgraph/internal/materialize"
	"github.com/rohankatakam/kgraph/internal/models"
)

var (
	ingestConcurrency int
	ingestNoSpool     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <batch.json>...",
	Short: "Merge extracted batches into the graph",
	Long: `Each file is one batch: an article plus the people, organisations,
locations, events and knowledge extracted from it, and the relationships
between them. Every batch commits in its own transaction.

Batches that fail because the store is unreachable are spooled and can be
replayed with 'kgraph retry'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay spooled batches",
	Args:  cobra.NoArgs,
	RunE:  runRetry,
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestConcurrency, "concurrency", "c", 4, "batches committed in parallel")
	ingestCmd.Flags().BoolVar(&ingestNoSpool, "no-spool", false, "do not spool batches that fail on an unavailable store")
}

// outcome of one batch
type outcome struct {
	Source  string
	Status  string // committed, spooled, failed
	Result  *materialize.Result
	Err     error
	Elapsed time.Duration
}

const (
	statusCommitted = "committed"
	statusSpooled   = "spooled"
	statusFailed    = "failed"
)

// ingester materializes batch documents and spools store outages
type ingester struct {
	materializer *materialize.Materializer
	spool        *dlq.Queue
	cache        *cache.Client
}

func newIngester(store graph.Store, spool *dlq.Queue, c *cache.Client) *ingester {
	return &ingester{
		materializer: materialize.New(store, nil),
		spool:        spool,
		cache:        c,
	}
}

// ingestFiles processes every path with at most concurrency batches in
// flight. One failed batch never stops the others.
func (in *ingester) ingestFiles(ctx context.Context, paths []string, concurrency int) []outcome {
	if concurrency < 1 {
		concurrency = 1
	}
	outcomes := make([]outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			outcomes[i] = in.ingestFile(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	if countStatus(outcomes, statusCommitted) > 0 {
		invalidateCache(ctx, in.cache)
	}
	return outcomes
}

func (in *ingester) ingestFile(ctx context.Context, path string) outcome {
	start := time.Now()
	out := outcome{Source: path}

	data, err := os.ReadFile(path)
	if err != nil {
		out.Status, out.Err = statusFailed, fmt.Errorf("failed to read batch: %w", err)
		return out
	}

	out.Result, out.Err = in.apply(ctx, data)
	out.Elapsed = time.Since(start)
	switch {
	case out.Err == nil:
		out.Status = statusCommitted
	case errors.IsStoreUnavailable(out.Err) && in.spool != nil:
		if spoolErr := in.spool.Enqueue(ctx, path, data, out.Err); spoolErr != nil {
			logger.WithError(spoolErr).WithField("source", path).Error("Failed to spool batch")
			out.Status = statusFailed
		} else {
			out.Status = statusSpooled
		}
	default:
		out.Status = statusFailed
	}
	return out
}

func (in *ingester) apply(ctx context.Context, data []byte) (*materialize.Result, error) {
	batch, err := models.DecodeBatch(bytes.NewReader(data))
	if err != nil {
		if _, typed := errors.As(err); typed {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "malformed batch")
	}
	return in.materializer.Materialize(ctx, batch)
}

// retrySpooled replays every spooled batch. Committed batches leave the
// spool; store outages stay with their retry count bumped.
func (in *ingester) retrySpooled(ctx context.Context) ([]outcome, error) {
	entries, err := in.spool.List(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]outcome, 0, len(entries))
	for _, e := range entries {
		start := time.Now()
		out := outcome{Source: e.Source}
		out.Result, out.Err = in.apply(ctx, e.Batch)
		out.Elapsed = time.Since(start)

		switch {
		case out.Err == nil:
			out.Status = statusCommitted
			if err := in.spool.MarkResolved(ctx, e.Source); err != nil {
				return outcomes, err
			}
		case errors.IsStoreUnavailable(out.Err):
			out.Status = statusSpooled
			if err := in.spool.Enqueue(ctx, e.Source, e.Batch, out.Err); err != nil {
				return outcomes, err
			}
		default:
			out.Status = statusFailed
		}
		outcomes = append(outcomes, out)
	}

	if countStatus(outcomes, statusCommitted) > 0 {
		invalidateCache(ctx, in.cache)
	}
	return outcomes, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	var spool *dlq.Queue
	if cfg.Spool.Enabled && !ingestNoSpool {
		spool, err = dlq.Open(cfg.Spool.Path)
		if err != nil {
			return err
		}
		defer spool.Close()
	}

	c := openCache(ctx, cfg.Cache)
	if c != nil {
		defer c.Close()
	}

	outcomes := newIngester(backend, spool, c).ingestFiles(ctx, args, ingestConcurrency)
	return report(outcomes)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	spool, err := dlq.Open(cfg.Spool.Path)
	if err != nil {
		return err
	}
	defer spool.Close()

	if spool.Len() == 0 {
		fmt.Println("Spool is empty")
		return nil
	}

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	c := openCache(ctx, cfg.Cache)
	if c != nil {
		defer c.Close()
	}

	outcomes, err := newIngester(backend, spool, c).retrySpooled(ctx)
	if err != nil {
		return err
	}
	return report(outcomes)
}

// report prints one row per batch and fails if any batch failed
func report(outcomes []outcome) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Batch", "Status", "Created", "Updated", "Edges", "Dropped", "Time")
	for _, o := range outcomes {
		created, updated, edges, dropped := "-", "-", "-", "-"
		if o.Result != nil {
			created = fmt.Sprint(total(o.Result.Created))
			updated = fmt.Sprint(total(o.Result.Updated))
			edges = fmt.Sprint(o.Result.EdgesCreated())
			dropped = fmt.Sprint(o.Result.Dropped.Total())
		}
		if err := table.Append(o.Source, o.Status, created, updated, edges, dropped, o.Elapsed.Round(time.Millisecond).String()); err != nil {
			return err
		}

		entry := logger.WithField("source", o.Source)
		if o.Err != nil {
			entry.WithError(o.Err).Warnf("Batch %s", o.Status)
		} else {
			entry.Debug("Batch committed")
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	failed := countStatus(outcomes, statusFailed)
	spooled := countStatus(outcomes, statusSpooled)
	if spooled > 0 {
		fmt.Printf("\n%d batch(es) spooled; run 'kgraph retry' once the store is reachable\n", spooled)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed", failed, len(outcomes))
	}
	return nil
}

func countStatus(outcomes []outcome, status string) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func total[K comparable](m map[K]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
