package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/inventory"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
	"github.com/MrSnakeDoc/vpsinv/internal/sources/seed"
)

// Importer upserts servers into a user's inventory
type Importer interface {
	Import(ctx context.Context, userID string, items []domain.InsertServer) (inventory.ImportResult, error)
}

// SeedStatus describes the last seed reload
type SeedStatus struct {
	File     string                  `json:"file"`
	UserID   string                  `json:"userId"`
	LastRun  time.Time               `json:"lastRun,omitempty"`
	Result   *inventory.ImportResult `json:"result,omitempty"`
	LastErr  string                  `json:"lastError,omitempty"`
	Interval string                  `json:"interval"`
}

// SeedReloader periodically imports a seed file into one user's inventory
type SeedReloader struct {
	loader        *seed.Loader
	mapper        *seed.Mapper
	importer      Importer
	userID        string
	logger        logger.Logger
	metrics       *metrics.Metrics
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}

	mu     sync.RWMutex
	status SeedStatus
}

// NewSeedReloader creates a new seed reloader. An interval of zero disables
// periodic reloads; manual triggers still work.
func NewSeedReloader(
	seedFile string,
	userID string,
	importer Importer,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seed.NewLoader(seedFile),
		mapper:        seed.NewMapper(),
		importer:      importer,
		userID:        userID,
		logger:        log.With(logger.String("component", "seed")),
		metrics:       m,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		status: SeedStatus{
			File:     seedFile,
			UserID:   userID,
			Interval: interval.String(),
		},
	}
}

// Start imports the file once, then keeps reloading it in the background
func (sr *SeedReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed import failed: %w", err)
	}

	var tick <-chan time.Time
	var ticker *time.Ticker
	if sr.interval > 0 {
		ticker = time.NewTicker(sr.interval)
		tick = ticker.C
	}

	go func() {
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-tick:
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual reload triggered")
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload reads the seed file and imports it
func (sr *SeedReloader) Reload(ctx context.Context) error {
	sr.logger.Info("reloading seed file",
		logger.String("file", sr.loader.Path()))

	res, err := sr.reload(ctx)
	sr.record(res, err)
	if err != nil {
		sr.metrics.SeedReloaded(metrics.ResultError)
		return err
	}

	sr.metrics.SeedReloaded(metrics.ResultOK)
	return nil
}

func (sr *SeedReloader) reload(ctx context.Context) (*inventory.ImportResult, error) {
	file, err := sr.loader.Load()
	if err != nil {
		return nil, err
	}

	items, err := sr.mapper.MapServers(file)
	if err != nil {
		return nil, fmt.Errorf("failed to map seed file: %w", err)
	}

	res, err := sr.importer.Import(ctx, sr.userID, items)
	if err != nil {
		return nil, fmt.Errorf("failed to import seed file: %w", err)
	}
	return &res, nil
}

func (sr *SeedReloader) record(res *inventory.ImportResult, err error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.status.LastRun = time.Now()
	sr.status.Result = res
	sr.status.LastErr = ""
	if err != nil {
		sr.status.LastErr = err.Error()
	}
}

// Status returns a copy of the last reload outcome
func (sr *SeedReloader) Status() SeedStatus {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	st := sr.status
	if st.Result != nil {
		res := *st.Result
		st.Result = &res
	}
	return st
}
