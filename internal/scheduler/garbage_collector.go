package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/index"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
)

const (
	// DefaultViewIdle is how long a view may go unread before it is evicted
	DefaultViewIdle = time.Hour
)

// SessionPurger deletes expired sessions
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// GarbageCollector evicts idle per-user views and purges expired sessions
type GarbageCollector struct {
	views     *index.MemoryIndex
	sessions  SessionPurger
	logger    logger.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	threshold time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

// NewGarbageCollector creates a new garbage collector
func NewGarbageCollector(
	views *index.MemoryIndex,
	sessions SessionPurger,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	threshold time.Duration,
) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultViewIdle
	}

	return &GarbageCollector{
		views:     views,
		sessions:  sessions,
		logger:    log.With(logger.String("component", "gc")),
		metrics:   m,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	// Run immediately on start
	if err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial garbage collection failed",
			logger.Error(err))
	}

	// Start periodic collection
	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.Collect(ctx); err != nil {
					gc.logger.Error("garbage collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect evicts idle views, then purges expired sessions. A session purge
// failure is returned after the views were handled.
func (gc *GarbageCollector) Collect(ctx context.Context) error {
	gc.logger.Debug("running garbage collection for views and sessions")

	evicted := gc.views.EvictIdle(gc.threshold)
	gc.metrics.SetViews(gc.views.Count())

	purged := 0
	if gc.sessions != nil {
		var err error
		purged, err = gc.sessions.PurgeExpiredSessions(ctx, gc.now())
		if err != nil {
			return err
		}
	}

	if evicted+purged > 0 {
		gc.logger.Info("garbage collection completed",
			logger.Int("views_evicted", evicted),
			logger.Int("sessions_purged", purged))
	} else {
		gc.logger.Debug("no items to garbage collect")
	}

	return nil
}
