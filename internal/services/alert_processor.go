package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spendyze/internal/ai"
	"spendyze/internal/alert"
	"spendyze/internal/core"
	"spendyze/internal/ledger"
	"spendyze/internal/log"
	"spendyze/internal/metrics"
	"spendyze/internal/notify"
)

// ErrAlreadyClaimed is returned by Deliver when another worker owns the entry.
var ErrAlreadyClaimed = errors.New("alert already claimed")

const (
	summaryPurpose = "for an email alert"
	summaryTxLimit = 30
)

// AlertProcessorConfig holds configuration for the alert processor
type AlertProcessorConfig struct {
	// PollInterval is how often to check for pending alerts (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of alerts to deliver per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum delivery attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up delivered alerts (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old delivered alerts must be before cleanup (default: 24h)
	CleanupAge time.Duration

	// SummaryTimeout bounds the optional AI insight (default: 20s)
	SummaryTimeout time.Duration

	// ClaimLease is how long a claimed alert may stay in processing before
	// it is considered abandoned and returned to pending (default: 5m).
	// It must outlast SummaryTimeout plus one send.
	ClaimLease time.Duration
}

// DefaultAlertProcessorConfig returns sensible defaults
func DefaultAlertProcessorConfig() AlertProcessorConfig {
	return AlertProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
		SummaryTimeout:  20 * time.Second,
		ClaimLease:      5 * time.Minute,
	}
}

// OutboxStore is the storage the processor drains.
type OutboxStore interface {
	ledger.Outbox
	GetUser(ctx context.Context, id string) (core.User, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]core.Transaction, error)
}

// AlertProcessor delivers queued alerts from the outbox.
type AlertProcessor struct {
	store      OutboxStore
	summarizer ai.Summarizer
	dispatcher notify.Dispatcher
	config     AlertProcessorConfig
	metrics    *metrics.Registry
	logger     *log.Logger
	now        func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAlertProcessor creates a processor. summarizer may be nil.
func NewAlertProcessor(
	store OutboxStore,
	summarizer ai.Summarizer,
	dispatcher notify.Dispatcher,
	config AlertProcessorConfig,
	logger *log.Logger,
) *AlertProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertProcessor{
		store:      store,
		summarizer: summarizer,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.WithComponent(log.ComponentOutbox),
		now:        time.Now,
	}
}

func (p *AlertProcessor) WithMetrics(m *metrics.Registry) *AlertProcessor {
	p.metrics = m
	return p
}

// Start begins the processing loop. Returns an error if already running.
func (p *AlertProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("alert processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	p.reclaimStale(ctx)

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Alert processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *AlertProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Alert processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Alert processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *AlertProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *AlertProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.reclaimStale(ctx)
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// reclaimStale returns alerts whose claim outlived the lease to pending.
// Claims held by a live process are younger than the lease and stay put.
func (p *AlertProcessor) reclaimStale(ctx context.Context) {
	if p.config.ClaimLease <= 0 {
		return
	}
	n, err := p.store.ResetStaleProcessing(ctx, p.now().Add(-p.config.ClaimLease))
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale processing alerts", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.WarnContext(ctx, "Reclaimed abandoned alerts", "count", n)
	}
}

// ProcessBatch delivers up to BatchSize pending alerts and returns how many
// were handled.
func (p *AlertProcessor) ProcessBatch(ctx context.Context) int {
	entries, err := p.store.DequeueAlerts(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to dequeue alerts", log.FieldError, err)
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing alert batch", "count", len(entries))

	handled := 0
	for _, entry := range entries {
		select {
		case <-p.stopCh:
			return handled
		case <-ctx.Done():
			return handled
		default:
		}
		// Failures are recorded on the row; the loop moves on unless the
		// transport is refusing sends, in which case the rest wait for the
		// next poll.
		err := p.Deliver(ctx, entry)
		handled++
		if errors.Is(err, notify.ErrUnavailable) {
			break
		}
	}
	p.refreshStats(ctx)
	return handled
}

// Deliver sends one outbox entry and records the outcome on the row.
func (p *AlertProcessor) Deliver(ctx context.Context, entry ledger.OutboxEntry) error {
	if err := p.store.MarkAlertProcessing(ctx, entry.ID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrAlreadyClaimed
		}
		return alert.Wrap(alert.ErrStoreWrite, "mark alert processing", err)
	}

	err := p.send(ctx, entry)
	if errors.Is(err, notify.ErrUnavailable) {
		p.release(ctx, entry, err)
		return alert.Wrap(alert.ErrDispatch, "deliver alert", err)
	}
	p.metrics.ObserveDispatch(err)
	if err != nil {
		p.handleFailure(ctx, entry, err)
		return alert.Wrap(alert.ErrDispatch, "deliver alert", err)
	}

	if err := p.store.MarkAlertCompleted(ctx, entry.ID); err != nil {
		// Delivered but not marked: the row may be sent again after a restart.
		p.logger.ErrorContext(ctx, "Failed to mark alert completed",
			log.FieldOutboxID, entry.ID, log.FieldError, err)
		return alert.Wrap(alert.ErrStoreWrite, "mark alert completed", err)
	}

	p.logger.InfoContext(ctx, "Budget alert delivered",
		log.FieldOutboxID, entry.ID,
		log.FieldUserID, entry.UserID,
		log.FieldThreshold, entry.Threshold)
	return nil
}

func (p *AlertProcessor) send(ctx context.Context, entry ledger.OutboxEntry) error {
	user, err := p.store.GetUser(ctx, entry.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		user = core.User{ID: entry.UserID}
	} else if err != nil {
		return fmt.Errorf("get user %s: %w", entry.UserID, err)
	}

	n := notify.Notification{
		User:      user,
		Threshold: entry.Threshold,
		Income:    entry.Income,
		Expenses:  entry.Expenses,
		Summary:   p.summary(ctx, entry.UserID),
	}
	return p.dispatcher.Dispatch(ctx, n)
}

// summary is best effort: any failure yields nil and the alert goes out
// without the insight.
func (p *AlertProcessor) summary(ctx context.Context, userID string) *ai.Summary {
	if p.summarizer == nil {
		return nil
	}
	txs, err := p.store.RecentTransactions(ctx, userID, summaryTxLimit)
	if err != nil || len(txs) == 0 {
		return nil
	}

	sctx := ctx
	if p.config.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, p.config.SummaryTimeout)
		defer cancel()
	}
	s, err := p.summarizer.Summarize(sctx, txs, summaryPurpose)
	p.metrics.ObserveAI(log.OpSummarize, err)
	if err != nil {
		p.logger.WarnContext(ctx, "Alert summary unavailable, sending without it",
			log.FieldUserID, userID, log.FieldError, err)
		return nil
	}
	if s.IsZero() {
		return nil
	}
	return &s
}

// release hands the entry back without spending an attempt: nothing was
// sent.
func (p *AlertProcessor) release(ctx context.Context, entry ledger.OutboxEntry, cause error) {
	p.logger.WarnContext(ctx, "Alert delivery deferred, transport unavailable",
		log.FieldOutboxID, entry.ID,
		log.FieldUserID, entry.UserID,
		log.FieldError, cause)
	if err := p.store.ReleaseAlert(ctx, entry.ID, cause.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to release alert",
			log.FieldOutboxID, entry.ID, log.FieldError, err)
	}
}

func (p *AlertProcessor) handleFailure(ctx context.Context, entry ledger.OutboxEntry, deliverErr error) {
	attempt := entry.Attempts + 1
	p.logger.WarnContext(ctx, "Alert delivery failed",
		log.FieldOutboxID, entry.ID,
		log.FieldUserID, entry.UserID,
		log.FieldAttempt, attempt,
		log.FieldError, deliverErr)

	permanent := errors.Is(deliverErr, notify.ErrNoRecipient)
	if permanent || attempt >= p.config.MaxRetries {
		if err := p.store.MarkAlertFailed(ctx, entry.ID, deliverErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark alert as failed",
				log.FieldOutboxID, entry.ID, log.FieldError, err)
		}
		p.logger.ErrorContext(ctx, "Alert delivery failed permanently",
			log.FieldOutboxID, entry.ID,
			log.FieldUserID, entry.UserID,
			log.FieldAttempt, attempt)
		return
	}

	if err := p.store.IncrementAlertAttempt(ctx, entry.ID, deliverErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to increment alert attempt",
			log.FieldOutboxID, entry.ID, log.FieldError, err)
	}
}

func (p *AlertProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := p.now().Add(-p.config.CleanupAge)
	n, err := p.store.CleanupCompletedAlerts(ctx, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to cleanup delivered alerts", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Cleaned up delivered alerts", "count", n)
	}
}

func (p *AlertProcessor) refreshStats(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	if _, err := p.Stats(ctx); err != nil {
		p.logger.DebugContext(ctx, "Failed to refresh outbox stats", log.FieldError, err)
	}
}

// Stats returns current outbox statistics
func (p *AlertProcessor) Stats(ctx context.Context) (ledger.OutboxStats, error) {
	st, err := p.store.OutboxStats(ctx)
	if err != nil {
		return ledger.OutboxStats{}, err
	}
	p.metrics.SetOutbox(st.Pending, st.Processing, st.Completed, st.Failed)
	return st, nil
}

// RetryFailed moves every failed alert back to pending.
func (p *AlertProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.store.RetryFailedAlerts(ctx)
}
