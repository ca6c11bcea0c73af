package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/index"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
)

// MsgLoadFailed is shown in place of the server list when loading failed.
const MsgLoadFailed = "Failed to load servers"

// View is the answer to a dashboard query.
type View struct {
	Servers    []domain.Server `json:"servers"`
	Total      int             `json:"total"`
	Filtered   int             `json:"filtered"`
	Providers  []string        `json:"providers"`
	LoadFailed bool            `json:"loadFailed"`
	Message    string          `json:"message,omitempty"`
}

// Service combines a Repository with the per-user views queries are served
// from. Writes go to the repository first and then patch the view.
type Service struct {
	repo    Repository
	views   *index.MemoryIndex
	logger  logger.Logger
	metrics *metrics.Metrics
	viewTTL time.Duration
	now     func() time.Time
}

// NewService wires a Service. A viewTTL of zero keeps views until a write,
// a refresh or an eviction replaces them.
func NewService(repo Repository, views *index.MemoryIndex, log logger.Logger, m *metrics.Metrics, viewTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		views:   views,
		logger:  log.With(logger.String("component", "inventory")),
		metrics: m,
		viewTTL: viewTTL,
		now:     time.Now,
	}
}

// Load reads userID's servers from the repository and installs them as the
// user's view, unless a newer load or a write superseded this one.
func (s *Service) Load(ctx context.Context, userID string) ([]domain.Server, error) {
	token := s.views.Begin(userID)

	servers, err := s.repo.List(ctx, userID)
	if err != nil {
		s.views.Fail(userID, token)
		s.metrics.LoadFailed()
		s.logger.Warn("failed to load servers",
			logger.String("user_id", userID),
			logger.Error(err))
		return []domain.Server{}, err
	}

	if !s.views.Apply(userID, token, servers) {
		s.metrics.StaleDiscarded()
		s.logger.Debug("discarded stale server load",
			logger.String("user_id", userID),
			logger.Uint64("token", token))
		if snap, ok := s.views.Get(userID); ok && !snap.Stale {
			servers = snap.Servers
		}
	}

	s.metrics.SetViews(s.views.Count())
	return servers, nil
}

// Query answers a dashboard query from userID's view, reloading it first
// when it is missing, stale, older than the view TTL, or refresh is set.
//
// A failed load is not an error: the view comes back empty with LoadFailed
// set. Only context cancellation is returned as an error.
func (s *Service) Query(ctx context.Context, userID string, q domain.Query, refresh bool) (View, error) {
	servers, err := s.current(ctx, userID, refresh)
	if err != nil {
		if ctx.Err() != nil {
			return View{}, ctx.Err()
		}
		return View{
			Servers:    []domain.Server{},
			Providers:  []string{},
			LoadFailed: true,
			Message:    MsgLoadFailed,
		}, nil
	}

	filtered := domain.Apply(servers, q)
	return View{
		Servers:   filtered,
		Total:     len(servers),
		Filtered:  len(filtered),
		Providers: domain.Providers(servers),
	}, nil
}

func (s *Service) current(ctx context.Context, userID string, refresh bool) ([]domain.Server, error) {
	if !refresh {
		if snap, ok := s.views.Get(userID); ok && !snap.Stale && !s.expired(snap.LoadedAt) {
			return snap.Servers, nil
		}
	}
	return s.Load(ctx, userID)
}

func (s *Service) expired(loadedAt time.Time) bool {
	return s.viewTTL > 0 && s.now().Sub(loadedAt) > s.viewTTL
}

func (s *Service) Create(ctx context.Context, userID string, in domain.InsertServer) (domain.Server, error) {
	created, err := s.repo.Create(ctx, userID, in)
	if err != nil {
		s.failed("create", userID, "", err)
		return domain.Server{}, err
	}

	s.views.Mutate(userID, func(servers []domain.Server) []domain.Server {
		return append(servers, created)
	})
	s.metrics.ObserveOperation("create", metrics.ResultOK)
	s.logger.Info("server created",
		logger.String("user_id", userID),
		logger.String("server_id", created.ID))
	return created, nil
}

func (s *Service) Update(ctx context.Context, userID, serverID string, in domain.InsertServer) (domain.Server, error) {
	updated, err := s.repo.Update(ctx, userID, serverID, in)
	if err != nil {
		s.failed("update", userID, serverID, err)
		return domain.Server{}, err
	}

	s.views.Mutate(userID, func(servers []domain.Server) []domain.Server {
		for i := range servers {
			if servers[i].ID == serverID {
				servers[i] = updated
				return servers
			}
		}
		return append(servers, updated)
	})
	s.metrics.ObserveOperation("update", metrics.ResultOK)
	s.logger.Info("server updated",
		logger.String("user_id", userID),
		logger.String("server_id", serverID),
		logger.Int64("version", updated.Version))
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, serverID string) error {
	if err := s.repo.Delete(ctx, userID, serverID); err != nil {
		s.failed("delete", userID, serverID, err)
		return err
	}

	s.views.Mutate(userID, func(servers []domain.Server) []domain.Server {
		out := servers[:0]
		for _, srv := range servers {
			if srv.ID != serverID {
				out = append(out, srv)
			}
		}
		return out
	})
	s.metrics.ObserveOperation("delete", metrics.ResultOK)
	s.logger.Info("server deleted",
		logger.String("user_id", userID),
		logger.String("server_id", serverID))
	return nil
}

// ViewCount returns the number of per-user views held in memory.
func (s *Service) ViewCount() int {
	return s.views.Count()
}

// LastLoad returns when a view was last loaded, for any user.
func (s *Service) LastLoad() time.Time {
	return s.views.GetLastReload()
}

// failed records a rejected write. Conflicts and unknown ids mean the user's
// view no longer matches the store, so it is invalidated.
func (s *Service) failed(op, userID, serverID string, err error) {
	var (
		verr     *domain.ValidationError
		conflict *domain.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		s.metrics.ObserveOperation(op, metrics.ResultInvalid)
	case errors.As(err, &conflict):
		s.metrics.ObserveOperation(op, metrics.ResultConflict)
		s.views.Invalidate(userID)
		s.logger.Info("rejected stale "+op,
			logger.String("user_id", userID),
			logger.String("server_id", serverID),
			logger.Int64("expected_version", conflict.Expected))
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveOperation(op, metrics.ResultNotFound)
		s.views.Invalidate(userID)
	default:
		s.metrics.ObserveOperation(op, metrics.ResultError)
		s.logger.Error("failed to "+op+" server",
			logger.String("user_id", userID),
			logger.String("server_id", serverID),
			logger.Error(err))
	}
}
