package syncworker

import (
	"context"
	"log/slog"
	"time"

	"github.com/osk/fintrack/internal/domain"
	"github.com/osk/fintrack/internal/infrastructure/metrics"
	"github.com/osk/fintrack/internal/usecase"
)

// Queue is the slice of the sync queue use case the monitor drives.
type Queue interface {
	Drain(ctx context.Context, tenantID string) (usecase.DrainReport, error)
	ReclaimStuck(ctx context.Context, timeout time.Duration) (int, error)
	Statistics(ctx context.Context, tenantID string) (domain.QueueStatistics, error)
}

// Puller runs incremental pulls per entity type.
type Puller interface {
	Pull(ctx context.Context, tenantID string, entityType domain.EntityType) (usecase.PullReport, error)
}

// Monitor periodically reclaims stuck entries, drains the queue, and runs
// incremental pulls. Reclaim runs before drain so an entry orphaned by a
// crash becomes claimable in the same tick.
type Monitor struct {
	queue          Queue
	puller         Puller
	tenantID       string
	entityTypes    []domain.EntityType
	logger         *slog.Logger
	metrics        *metrics.Metrics
	interval       time.Duration
	reclaimTimeout time.Duration
	pullEvery      int
}

// Config for Monitor.
type Config struct {
	Queue    Queue
	Puller   Puller // optional; nil disables pulls
	TenantID string
	// EntityTypes to pull, in order. Transactions last so referenced
	// accounts and categories land first.
	EntityTypes []domain.EntityType
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Interval    time.Duration // Tick interval
	// ReclaimTimeout is how long a PROCESSING entry may wait for an answer
	// before it counts as stuck.
	ReclaimTimeout time.Duration
	// PullEvery runs a pull cycle once per this many ticks.
	PullEvery int
}

// NewMonitor creates a new Monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ReclaimTimeout == 0 {
		cfg.ReclaimTimeout = 30 * time.Second
	}
	if cfg.PullEvery <= 0 {
		cfg.PullEvery = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.EntityTypes) == 0 {
		cfg.EntityTypes = []domain.EntityType{
			domain.EntityTypeAccount,
			domain.EntityTypeCategory,
			domain.EntityTypeTransaction,
		}
	}

	return &Monitor{
		queue:          cfg.Queue,
		puller:         cfg.Puller,
		tenantID:       cfg.TenantID,
		entityTypes:    cfg.EntityTypes,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		interval:       cfg.Interval,
		reclaimTimeout: cfg.ReclaimTimeout,
		pullEvery:      cfg.PullEvery,
	}
}

// Start begins the monitor loop.
// It runs continuously until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("sync monitor started",
		slog.Duration("interval", m.interval),
		slog.Duration("reclaim_timeout", m.reclaimTimeout))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Process immediately on start
	m.tick(ctx, 0)

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			m.logger.Info("sync monitor shutting down")
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx, n)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, n int) {
	m.reclaim(ctx)
	m.drain(ctx)
	m.publishStatistics(ctx)

	if m.puller != nil && n%m.pullEvery == 0 {
		m.pull(ctx)
	}
}

func (m *Monitor) reclaim(ctx context.Context) {
	reclaimed, err := m.queue.ReclaimStuck(ctx, m.reclaimTimeout)
	if err != nil {
		m.logger.Error("reclaim failed", slog.String("error", err.Error()))
		return
	}
	if reclaimed == 0 {
		return
	}

	m.logger.Warn("reclaimed stuck entries", slog.Int("count", reclaimed))
	if m.metrics != nil {
		m.metrics.EntriesReclaimed.Add(float64(reclaimed))
	}
}

func (m *Monitor) drain(ctx context.Context) {
	start := time.Now()

	report, err := m.queue.Drain(ctx, m.tenantID)
	if err != nil {
		m.logger.Error("drain failed", slog.String("error", err.Error()))
		return
	}
	if report.Sent == 0 {
		return
	}

	m.logger.Info("queue drained",
		slog.Int("sent", report.Sent),
		slog.Int("acked", report.Acked),
		slog.Int("nacked", report.Nacked))

	if m.metrics != nil {
		m.metrics.PushBatchSize.Observe(float64(report.Sent))
		m.metrics.PushDuration.Observe(time.Since(start).Seconds())
		m.metrics.EntriesAcked.Add(float64(report.Acked))
		m.metrics.EntriesNacked.Add(float64(report.Nacked))
	}
}

func (m *Monitor) publishStatistics(ctx context.Context) {
	if m.metrics == nil {
		return
	}

	stats, err := m.queue.Statistics(ctx, m.tenantID)
	if err != nil {
		m.logger.Error("statistics failed", slog.String("error", err.Error()))
		return
	}

	m.metrics.QueueDepth.WithLabelValues(string(domain.StatusPending)).Set(float64(stats.Pending))
	m.metrics.QueueDepth.WithLabelValues(string(domain.StatusProcessing)).Set(float64(stats.Processing))
	m.metrics.QueueDepth.WithLabelValues(string(domain.StatusFailed)).Set(float64(stats.Failed))
}

func (m *Monitor) pull(ctx context.Context) {
	for _, entityType := range m.entityTypes {
		start := time.Now()

		report, err := m.puller.Pull(ctx, m.tenantID, entityType)
		if err != nil {
			m.logger.Error("pull failed",
				slog.String("entity_type", string(entityType)),
				slog.String("error", err.Error()))
			continue
		}

		if report.Received > 0 {
			m.logger.Info("pull finished",
				slog.String("entity_type", string(entityType)),
				slog.Int("received", report.Received),
				slog.Int("applied", report.Applied),
				slog.Int("discarded", report.Discarded),
				slog.Int("skipped", report.Skipped))
		}

		if m.metrics != nil {
			m.metrics.PullsTotal.WithLabelValues(string(entityType)).Inc()
			m.metrics.PullDuration.WithLabelValues(string(entityType)).Observe(time.Since(start).Seconds())
			m.metrics.PullApplied.Add(float64(report.Applied))
			m.metrics.PullDiscarded.Add(float64(report.Discarded))
			m.metrics.PullSkipped.Add(float64(report.Skipped))
		}
	}
}
