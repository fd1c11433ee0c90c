// Package pipeline runs batches of transactions through the scoring engine.
//
// A batch is validated sequentially, scored in chunks of concurrent
// per-transaction tasks, folded into the relationship graph and persisted.
// Results keep the input order of the records that produced them.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/advisory"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

var tracer = otel.Tracer("kestrel-pipeline")

// Options wires an Orchestrator.
type Options struct {
	Engine     domain.EngineConfig
	Catalog    *rules.Catalog
	Repository domain.Repository

	// Cache backs profile lookups; nil disables caching.
	Cache      domain.Cache
	ProfileTTL time.Duration

	// Advisory defaults to advisory.None.
	Advisory domain.AdvisoryScorer

	// Bus receives scorecard and SMR events; nil disables publication.
	Bus domain.EventBus

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Orchestrator analyzes batches. It is safe for concurrent use.
type Orchestrator struct {
	batch          domain.BatchConfig
	velocityWindow time.Duration

	catalog   *rules.Catalog
	repo      domain.Repository
	lookups   *velocity.Service
	advisory  domain.AdvisoryScorer
	processor *decision.Processor
	graph     *graph.Aggregator
	bus       domain.EventBus
	metrics   *metrics.Metrics
	pending   *pendingBatches

	now func() time.Time
}

// New creates an orchestrator. Scoring settings are validated here.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalog == nil {
		return nil, &domain.ConfigError{Reason: "rule catalog is required"}
	}
	if opts.Repository == nil {
		return nil, &domain.ConfigError{Reason: "repository is required"}
	}

	processor, err := decision.NewProcessor(opts.Engine.Scoring)
	if err != nil {
		return nil, err
	}

	batch := opts.Engine.Batch
	if batch.MaxBatchSize <= 0 {
		batch.MaxBatchSize = 10000
	}
	if batch.ChunkSize <= 0 {
		batch.ChunkSize = 100
	}

	window := opts.Engine.Rules.VelocityWindow
	if window <= 0 {
		window = 24 * time.Hour
	}

	scorer := opts.Advisory
	if scorer == nil {
		scorer = advisory.None{}
	}

	return &Orchestrator{
		batch:          batch,
		velocityWindow: window,
		catalog:        opts.Catalog,
		repo:           opts.Repository,
		lookups:        velocity.NewService(opts.Repository, opts.Cache, opts.ProfileTTL),
		advisory:       scorer,
		processor:      processor,
		graph:          graph.NewAggregator(opts.Repository),
		bus:            opts.Bus,
		metrics:        opts.Metrics,
		pending:        newPendingBatches(maxPendingBatches),
		now:            time.Now,
	}, nil
}

// SetClock replaces the evaluation clock used for createdAt and deadlines.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	o.processor.Now = now
}

// Catalog returns the catalog batches are evaluated against.
func (o *Orchestrator) Catalog() *rules.Catalog {
	return o.catalog
}

// MaxBatchSize is the largest batch Analyze accepts.
func (o *Orchestrator) MaxBatchSize() int {
	return o.batch.MaxBatchSize
}

// Lookups returns the history and profile lookup service.
func (o *Orchestrator) Lookups() *velocity.Service {
	return o.lookups
}

// Analyze scores a batch of records.
//
// Malformed records are quarantined and never abort the batch. When the
// batch timeout expires the scorecards computed so far are returned with
// TimedOut set. A failed final write returns the full result with
// Persisted=false together with a *domain.PersistenceError; Retry writes
// the remaining steps later.
func (o *Orchestrator) Analyze(ctx context.Context, records []domain.TransactionRecord) (*domain.BatchResult, error) {
	started := time.Now()

	if len(records) > o.batch.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d records, limit %d", domain.ErrBatchTooLarge, len(records), o.batch.MaxBatchSize)
	}
	snapshot := o.catalog.Snapshot()
	if len(snapshot) == 0 {
		return nil, &domain.ConfigError{Reason: "rule catalog is empty"}
	}

	result := &domain.BatchResult{
		BatchID:    uuid.New().String(),
		Scorecards: []*domain.Scorecard{},
	}

	ctx, span := tracer.Start(ctx, "pipeline.Analyze",
		trace.WithAttributes(
			attribute.String("batch.id", result.BatchID),
			attribute.Int("batch.size", len(records)),
			attribute.Int("catalog.size", len(snapshot)),
		),
	)
	defer span.End()

	txs := o.parse(records, result)
	freq := velocity.NewFrequencyMap(txs, o.velocityWindow)

	cards, timedOut, err := o.evaluate(ctx, snapshot, freq, txs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch cancelled")
		o.metrics.ObserveBatch("cancelled", time.Since(started).Seconds())
		return nil, err
	}
	result.TimedOut = timedOut

	scored := make([]*domain.Transaction, 0, len(txs))
	total := 0
	for i, card := range cards {
		if card == nil {
			continue
		}
		scored = append(scored, txs[i])
		result.Scorecards = append(result.Scorecards, card)
		total += card.FinalScore
		if card.Tier == domain.TierSMR {
			result.HighRiskCount++
		}
	}
	result.ProcessedCount = len(result.Scorecards)
	result.SkippedCount = len(result.Quarantined)
	if result.ProcessedCount > 0 {
		result.AverageFinalScore = float64(total) / float64(result.ProcessedCount)
	}

	delta := graph.Fold(scored)
	result.GraphDelta = domain.GraphDelta{
		NodesUpserted: len(delta.Nodes),
		EdgesUpserted: len(delta.Edges),
	}

	work := &pendingBatch{txs: scored, delta: delta, result: result}
	if len(scored) > 0 {
		result.PendingWrites = []string{stepTransactions, stepScorecards, stepGraph}
	}
	perr := o.persist(ctx, work)
	result.DurationMs = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.Int("batch.processed", result.ProcessedCount),
		attribute.Int("batch.skipped", result.SkippedCount),
		attribute.Int("batch.high_risk", result.HighRiskCount),
		attribute.Bool("batch.timed_out", result.TimedOut),
	)

	o.observe(result, started)

	if perr != nil {
		// The caller owns result; retries update their own copy.
		retained := *result
		work.result = &retained
		o.pending.put(work)
		span.RecordError(perr)
		span.SetStatus(codes.Error, "persistence failed")
		slog.Error("batch persistence failed",
			"batch_id", result.BatchID,
			"processed", result.ProcessedCount,
			"pending", result.PendingWrites,
			"error", perr,
		)
		return result, perr
	}

	o.publish(ctx, result)

	slog.Info("batch analyzed",
		"batch_id", result.BatchID,
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"high_risk", result.HighRiskCount,
		"timed_out", result.TimedOut,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// parse validates records in input order. Invalid and duplicate records are
// quarantined; the returned transactions keep their relative order.
func (o *Orchestrator) parse(records []domain.TransactionRecord, result *domain.BatchResult) []*domain.Transaction {
	now := o.now()
	seen := make(map[string]struct{}, len(records))
	txs := make([]*domain.Transaction, 0, len(records))

	for i := range records {
		tx, err := records[i].Parse(now)
		if err != nil {
			result.Quarantined = append(result.Quarantined, domain.QuarantinedRecord{
				Index:         i,
				TransactionID: records[i].ID,
				Reason:        err.Error(),
			})
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			result.Quarantined = append(result.Quarantined, domain.QuarantinedRecord{
				Index:         i,
				TransactionID: tx.ID,
				Reason:        "duplicate transaction id in batch",
			})
			continue
		}
		seen[tx.ID] = struct{}{}
		txs = append(txs, tx)
	}

	if len(result.Quarantined) > 0 {
		slog.Warn("records quarantined",
			"batch_id", result.BatchID,
			"count", len(result.Quarantined),
		)
	}
	return txs
}

// evaluate scores txs chunk by chunk. Each chunk runs one task per
// transaction and writes into the slot of its index, so the output order
// does not depend on completion order. A nil slot was not scored.
func (o *Orchestrator) evaluate(ctx context.Context, snapshot []*rules.Rule, freq *velocity.FrequencyMap, txs []*domain.Transaction) ([]*domain.Scorecard, bool, error) {
	batchCtx := ctx
	if o.batch.Timeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, o.batch.Timeout)
		defer cancel()
	}

	cards := make([]*domain.Scorecard, len(txs))
	for start := 0; start < len(txs); start += o.batch.ChunkSize {
		if batchCtx.Err() != nil {
			break
		}
		end := min(start+o.batch.ChunkSize, len(txs))

		chunkCtx, span := tracer.Start(batchCtx, "pipeline.chunk",
			trace.WithAttributes(
				attribute.Int("chunk.start", start),
				attribute.Int("chunk.size", end-start),
			),
		)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				cards[idx] = o.scoreOne(chunkCtx, snapshot, freq, txs[idx])
			}(i)
		}
		wg.Wait()
		span.End()
	}

	// Cancellation by the caller is an error; the batch deadline is not.
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return cards, batchCtx.Err() != nil, nil
}

// scoreOne evaluates a single transaction. It returns nil if the batch
// deadline passed before the scorecard was complete.
func (o *Orchestrator) scoreOne(ctx context.Context, snapshot []*rules.Rule, freq *velocity.FrequencyMap, tx *domain.Transaction) *domain.Scorecard {
	if ctx.Err() != nil {
		return nil
	}

	history, err := o.lookups.RecentHistory(ctx, tx.FromParty, tx.Timestamp, o.velocityWindow)
	if err != nil {
		o.degraded(ctx, tx, err)
		history = nil
	}
	profile, err := o.lookups.Profile(ctx, tx.FromParty)
	if err != nil {
		o.degraded(ctx, tx, err)
		profile = nil
	}
	if ctx.Err() != nil {
		return nil
	}

	in := &rules.Input{
		Tx:            tx,
		Profile:       profile,
		History:       history,
		VelocityCount: freq.Count(tx.FromParty, tx.Timestamp) + freq.HistoricalCount(history, tx.FromParty, tx.Timestamp),
	}
	triggered := rules.EvaluateRules(snapshot, in)

	score, err := o.advisory.Score(ctx, tx, profile, history)
	if err != nil {
		o.metrics.ObserveAdvisoryFailure()
		score = 0
	}
	if ctx.Err() != nil {
		return nil
	}

	return o.processor.Process(&decision.Input{
		TransactionID:  tx.ID,
		TriggeredRules: triggered,
		AdvisoryScore:  score,
	})
}

func (o *Orchestrator) degraded(ctx context.Context, tx *domain.Transaction, err error) {
	if ctx.Err() != nil {
		return
	}
	op := "lookup"
	var lerr *domain.LookupError
	if errors.As(err, &lerr) {
		op = lerr.Op
	}
	o.metrics.ObserveLookupFailure(op)
	slog.Warn("lookup failed, continuing without it",
		"tx_id", tx.ID,
		"op", op,
		"error", err,
	)
}

// Retry writes the steps a failed batch left pending. Steps that already
// succeeded are not repeated, so scorecards are not duplicated and graph
// totals are not added twice. Unknown or already persisted batches
// return domain.ErrNotFound.
func (o *Orchestrator) Retry(ctx context.Context, batchID string) (*domain.BatchResult, error) {
	work, ok := o.pending.take(batchID)
	if !ok {
		return nil, fmt.Errorf("%w: no unpersisted batch %s", domain.ErrNotFound, batchID)
	}

	ctx, span := tracer.Start(ctx, "pipeline.Retry",
		trace.WithAttributes(attribute.String("batch.id", batchID)),
	)
	defer span.End()

	if err := o.persist(ctx, work); err != nil {
		o.pending.put(work)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		slog.Error("batch retry failed",
			"batch_id", batchID,
			"pending", work.result.PendingWrites,
			"error", err,
		)
		return work.result, err
	}

	o.publish(ctx, work.result)
	slog.Info("batch persisted on retry", "batch_id", batchID)
	return work.result, nil
}

// persist runs the pending write steps in order and drops each one as it
// succeeds. It uses the caller's context, not the batch deadline, so
// results computed before a timeout are still stored.
func (o *Orchestrator) persist(ctx context.Context, work *pendingBatch) error {
	result := work.result
	if len(result.PendingWrites) == 0 {
		result.Persisted = true
		result.GraphDelta.Applied = true
		return nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	for len(result.PendingWrites) > 0 {
		step := result.PendingWrites[0]
		var err error
		switch step {
		case stepTransactions:
			err = o.repo.UpsertTransactions(ctx, work.txs)
		case stepScorecards:
			err = o.repo.UpsertScorecards(ctx, result.Scorecards)
		case stepGraph:
			var applied domain.GraphDelta
			applied, err = o.graph.Merge(ctx, work.delta)
			if err == nil {
				result.GraphDelta = applied
			}
		}
		if err != nil {
			return &domain.PersistenceError{Op: step, Err: err}
		}
		result.PendingWrites = result.PendingWrites[1:]
	}

	result.PendingWrites = nil
	result.Persisted = true
	return nil
}

// publish emits scorecard and SMR events. Failures are logged only.
func (o *Orchestrator) publish(ctx context.Context, result *domain.BatchResult) {
	if o.bus == nil || !o.batch.Publish {
		return
	}
	for _, card := range result.Scorecards {
		payload, err := json.Marshal(card)
		if err != nil {
			slog.Error("failed to marshal scorecard", "scorecard_id", card.ID, "error", err)
			continue
		}
		if err := o.bus.Publish(ctx, domain.TopicScorecard, payload); err != nil {
			slog.Warn("failed to publish scorecard",
				"tx_id", card.TransactionID,
				"error", err,
			)
		}
		if card.Tier != domain.TierSMR {
			continue
		}
		if err := o.bus.Publish(ctx, domain.TopicSMR, payload); err != nil {
			slog.Warn("failed to publish SMR event",
				"tx_id", card.TransactionID,
				"error", err,
			)
		}
	}
}

func (o *Orchestrator) observe(result *domain.BatchResult, started time.Time) {
	outcome := "ok"
	switch {
	case !result.Persisted:
		outcome = "unpersisted"
	case result.TimedOut:
		outcome = "timed_out"
	}
	o.metrics.ObserveBatch(outcome, time.Since(started).Seconds())
	o.metrics.ObserveQuarantined(result.SkippedCount)

	for _, card := range result.Scorecards {
		ids := make([]string, len(card.TriggeredRules))
		for i, t := range card.TriggeredRules {
			ids[i] = t.RuleID
		}
		o.metrics.ObserveScorecard(string(card.Tier), card.FinalScore, ids)
	}
}
