package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/santirms/zupply-app-sub000/internal/broker/messages"
	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

type Storage interface {
	// ClaimPendingRecords picks records due for reconciliation and leases them
	// so concurrent worker instances do not grab the same batch.
	ClaimPendingRecords(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.ShipmentRecord, error)
	LoadHistory(ctx context.Context, shipmentID uint64) ([]models.Event, error)
	// SaveReconciliation writes merged history and the canonical triple in one
	// transaction; no partial write of one without the other.
	SaveReconciliation(ctx context.Context, in models.ReconciliationSave) error
	UpdateExternalID(ctx context.Context, shipmentID uint64, externalID string) error
	MarkSyncError(ctx context.Context, shipmentID uint64, at time.Time, errMsg string, nextSyncAt time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Runner is the sync orchestrator: claims a batch of due records, drives the
// normalize/merge/resolve pipeline per record through a bounded worker pool,
// and reports per-cycle summaries. One bad record never aborts a cycle.
type Runner struct {
	storage  Storage
	client   meli.Client
	tokens   meli.TokenProvider
	producer Producer
	rl       RateLimiter

	resolver *Resolver
	noise    *NoiseFilter
	schedule *Schedule

	topic string
	now   func() time.Time

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	throttleDelay      time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	totalAttempted      atomic.Int64
	totalSucceeded      atomic.Int64
	totalFailed         atomic.Int64
	totalSkipped        atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(storage Storage, client meli.Client, tokens meli.TokenProvider, producer Producer, rl RateLimiter, topic string) *Runner {
	resolver := NewResolver(DefaultResolverConfig())
	return &Runner{
		storage: storage, client: client, tokens: tokens, producer: producer, rl: rl, topic: topic,
		resolver: resolver,
		noise:    NewNoiseFilter(DefaultNoiseConfig()),
		schedule: NewSchedule(DefaultScheduleConfig(), resolver),
		now:      func() time.Time { return time.Now().UTC() },

		pollInterval:       60 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		throttleDelay:      500 * time.Millisecond,

		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Runner) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Runner {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	if rlPerMin > 0 {
		r.rateLimitPerMinute = rlPerMin
	}
	return r
}

func (r *Runner) WithResolver(cfg ResolverConfig) *Runner {
	r.resolver = NewResolver(cfg)
	r.schedule = NewSchedule(r.schedule.cfg, r.resolver)
	return r
}

func (r *Runner) WithNoiseFilter(cfg NoiseConfig) *Runner {
	r.noise = NewNoiseFilter(cfg)
	return r
}

func (r *Runner) WithSchedule(cfg ScheduleConfig) *Runner {
	r.schedule = NewSchedule(cfg, r.resolver)
	return r
}

// WithClock replaces the time source (tests).
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Runner) Trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// RunSummary is the structured result of one orchestrator cycle.
type RunSummary struct {
	RunID               string `json:"runId"`
	Attempted           int64  `json:"attempted"`
	Succeeded           int64  `json:"succeeded"`
	Failed              int64  `json:"failed"`
	SkippedNoCredential int64  `json:"skippedNoCredential"`
	SkippedNoRemoteID   int64  `json:"skippedNoRemoteId"`
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	TotalAttempted int64      `json:"totalAttempted"`
	TotalSucceeded int64      `json:"totalSucceeded"`
	TotalFailed    int64      `json:"totalFailed"`
	TotalSkipped   int64      `json:"totalSkipped"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Runner) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalAttempted: r.totalAttempted.Load(),
		TotalSucceeded: r.totalSucceeded.Load(),
		TotalFailed:    r.totalFailed.Load(),
		TotalSkipped:   r.totalSkipped.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkippedNoCredential
	outcomeSkippedNoRemoteID
)

// RunOnce executes a single reconciliation cycle.
func (r *Runner) RunOnce(ctx context.Context) RunSummary {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())

	summary := RunSummary{RunID: uuid.NewString()}

	recs, err := r.storage.ClaimPendingRecords(ctx, now, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim pending shipments", "run_id", summary.RunID, "error", err.Error())
		r.setLastError(err)
		return summary
	}

	var (
		succeeded, failed, skipNoCred, skipNoID atomic.Int64
	)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, rec := range recs {
		// Отмену проверяем между записями, не посреди записи: запись либо
		// сохраняется целиком, либо не начинается.
		if ctx.Err() != nil {
			break
		}
		summary.Attempted++

		sem <- struct{}{}
		wg.Add(1)
		recCopy := rec
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			out, err := r.processOne(ctx, recCopy, summary.RunID)
			switch out {
			case outcomeSucceeded:
				succeeded.Add(1)
			case outcomeSkippedNoCredential:
				skipNoCred.Add(1)
			case outcomeSkippedNoRemoteID:
				skipNoID.Add(1)
			case outcomeFailed:
				failed.Add(1)
				r.setLastError(err)
				slog.Error("reconcile shipment", "run_id", summary.RunID, "shipment_id", recCopy.ID, "error", err.Error())
			}
		}()
	}
	wg.Wait()

	summary.Succeeded = succeeded.Load()
	summary.Failed = failed.Load()
	summary.SkippedNoCredential = skipNoCred.Load()
	summary.SkippedNoRemoteID = skipNoID.Load()

	r.totalAttempted.Add(summary.Attempted)
	r.totalSucceeded.Add(summary.Succeeded)
	r.totalFailed.Add(summary.Failed)
	r.totalSkipped.Add(summary.SkippedNoCredential + summary.SkippedNoRemoteID)

	if summary.Attempted > 0 {
		slog.Info("reconciliation cycle done",
			"run_id", summary.RunID,
			"attempted", summary.Attempted,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped_no_credential", summary.SkippedNoCredential,
			"skipped_no_remote_id", summary.SkippedNoRemoteID,
		)
	}
	return summary
}

func (r *Runner) processOne(ctx context.Context, rec *models.ShipmentRecord, runID string) (outcome, error) {
	now := r.now()

	if _, err := r.tokens.GetCredential(ctx, rec.AccountID); err != nil {
		if errors.Is(err, meli.ErrNoCredential) {
			return outcomeSkippedNoCredential, nil
		}
		return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "get credential"))
	}

	externalID := rec.ExternalID
	if externalID == "" {
		if rec.OrderID == "" {
			return outcomeSkippedNoRemoteID, nil
		}
		if err := r.throttle(ctx); err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, err)
		}
		id, err := r.client.ResolveShipmentIDFromOrder(ctx, rec.AccountID, rec.OrderID)
		if err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "resolve shipment id"))
		}
		if id == "" {
			return outcomeSkippedNoRemoteID, nil
		}
		if err := r.storage.UpdateExternalID(ctx, rec.ID, id); err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "store resolved external id"))
		}
		slog.Info("external id resolved from order",
			"shipment_id", rec.ID, "order_id", rec.OrderID, "external_id", id)
		externalID = id
	}

	if err := r.throttle(ctx); err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, err)
	}
	snap, err := r.client.GetSnapshot(ctx, rec.AccountID, externalID)
	if err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "get snapshot"))
	}

	// Self-heal: в external_id исторически мог попасть трекинг-код перевозчика
	// вместо id отправления. Правим явно и идемпотентно, с логом обоих id.
	if snap != nil && snap.ID != "" && snap.ID != externalID {
		slog.Info("correcting external id",
			"shipment_id", rec.ID, "stored", externalID, "remote", snap.ID)
		if err := r.storage.UpdateExternalID(ctx, rec.ID, snap.ID); err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "correct external id"))
		}
		externalID = snap.ID
		if err := r.throttle(ctx); err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, err)
		}
		if again, err := r.client.GetSnapshot(ctx, rec.AccountID, externalID); err == nil && again != nil {
			snap = again
		}
	}

	if err := r.throttle(ctx); err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, err)
	}
	raw, err := r.client.GetHistory(ctx, rec.AccountID, externalID)
	if err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "get history"))
	}

	incoming := NormalizeHistory(raw)
	if len(incoming) == 0 {
		// Пустая история — штатный инпут, а не ошибка.
		incoming = SynthesizeFromSnapshot(snap, now)
	}

	if !hasTransitMilestone(incoming) {
		if err := r.throttle(ctx); err != nil {
			return outcomeFailed, r.markFailed(ctx, rec, err)
		}
		rt, err := r.client.GetCheckpoints(ctx, rec.AccountID, externalID)
		if err != nil {
			// Checkpoints are a supplement; a failure here must not sink the record.
			slog.Warn("get checkpoints", "shipment_id", rec.ID, "error", err.Error())
		} else {
			incoming = append(incoming, NormalizeCheckpoints(rt)...)
		}
	}

	existing, err := r.storage.LoadHistory(ctx, rec.ID)
	if err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "load history"))
	}
	merged := MergeHistory(existing, incoming)

	cand := r.resolver.Resolve(now, merged, snapshotCand(snap, now), rec)
	if r.noise.Suppress(now, cand, rec) {
		slog.Warn("noise window: keeping canonical state",
			"shipment_id", rec.ID,
			"suppressed_detail", cand.Detail,
			"kept_status", rec.CanonicalStatus, "kept_detail", rec.CanonicalDetail)
		cand = models.Canonical{Status: rec.CanonicalStatus, Detail: rec.CanonicalDetail}
		if rec.CanonicalAt != nil {
			cand.At = *rec.CanonicalAt
		}
	}

	err = r.storage.SaveReconciliation(ctx, models.ReconciliationSave{
		ShipmentID: rec.ID,
		History:    merged,
		Canonical:  cand,
		Sticky:     r.resolver.NextSticky(rec, cand),
		SyncedAt:   now,
		NextSyncAt: now.Add(r.schedule.NextSyncDelay(cand.Status)),
	})
	if err != nil {
		return outcomeFailed, r.markFailed(ctx, rec, errors.Wrap(err, "save reconciliation"))
	}

	changed := !cand.IsZero() &&
		(cand.Status != rec.CanonicalStatus || cand.Detail != rec.CanonicalDetail)
	if changed && r.producer != nil {
		msg := messages.ShipmentStatusChanged{
			ShipmentID:     rec.ID,
			AccountID:      rec.AccountID,
			ExternalID:     externalID,
			PreviousStatus: rec.CanonicalStatus,
			PreviousDetail: rec.CanonicalDetail,
			Status:         cand.Status,
			Detail:         cand.Detail,
			At:             cand.At,
			SyncedAt:       now,
			RunID:          runID,
		}
		b, merr := json.Marshal(msg)
		if merr == nil {
			merr = r.producer.Publish(ctx, r.topic, []byte(fmt.Sprintf("%d", rec.ID)), b)
		}
		if merr != nil {
			// Запись уже сохранена; потерянное уведомление не повод ронять её.
			slog.Warn("publish status change", "shipment_id", rec.ID, "error", merr.Error())
		}
	}

	return outcomeSucceeded, nil
}

// throttle consumes one slot of the global per-minute quota, briefly backing
// off when the quota is exhausted. The limiter is shared across the whole
// worker pool (and across worker instances): the vendor throttles per tenant.
func (r *Runner) throttle(ctx context.Context) error {
	if r.rl == nil || r.rateLimitPerMinute <= 0 {
		return nil
	}
	key := fmt.Sprintf("rl:meli:%s", r.now().UTC().Format("200601021504"))
	allowed, n, err := r.rl.Allow(ctx, key, r.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		return errors.Wrap(err, "rate limiter")
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "count", n)
		select {
		case <-time.After(r.throttleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// markFailed records the failure on the shipment with a retry backoff and
// hands the original error back for counting. Best effort: a failing mark
// must not mask the root cause.
func (r *Runner) markFailed(ctx context.Context, rec *models.ShipmentRecord, cause error) error {
	now := r.now()
	next := now.Add(r.schedule.BackoffDelay(rec.SyncFailCount + 1))
	if err := r.storage.MarkSyncError(ctx, rec.ID, now, cause.Error(), next); err != nil {
		slog.Error("mark sync error", "shipment_id", rec.ID, "error", err.Error())
	}
	return cause
}

func (r *Runner) setLastError(err error) {
	if err == nil {
		return
	}
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

func snapshotCand(snap *meli.Snapshot, now time.Time) *snapshotCandidate {
	if snap == nil || snap.Status == "" {
		return nil
	}
	at := firstNonNil(snap.DateDelivered, snap.LastUpdated, snap.DateCreated)
	ts := now
	if at != nil {
		ts = at.UTC()
	}
	return &snapshotCandidate{Status: snap.Status, Detail: snap.Substatus, At: ts}
}
