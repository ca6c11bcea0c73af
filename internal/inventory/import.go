package inventory

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

// ImportResult counts what an import did.
type ImportResult struct {
	Created  int             `json:"created"`
	Updated  int             `json:"updated"`
	Failed   int             `json:"failed"`
	Failures []ImportFailure `json:"failures,omitempty"`
}

// ImportFailure names a server that could not be imported.
type ImportFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Import upserts items into userID's inventory. An item matches an existing
// server when their names are equal ignoring case and surrounding spaces;
// matched servers are replaced and keep the ids of services with the same
// name. Failures are counted per item and do not stop the import.
func (s *Service) Import(ctx context.Context, userID string, items []domain.InsertServer) (ImportResult, error) {
	existing, err := s.Load(ctx, userID)
	if err != nil {
		return ImportResult{}, err
	}

	byName := make(map[string]domain.Server, len(existing))
	for _, srv := range existing {
		byName[nameKey(srv.Name)] = srv
	}

	var res ImportResult
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item = item.WithoutBlankServices()
		item.Version = 0
		key := nameKey(item.Name)

		if cur, ok := byName[key]; ok {
			item.Services = keepServiceIDs(cur.Services, item.Services)
			updated, err := s.Update(ctx, userID, cur.ID, item)
			if err != nil {
				res.fail(item.Name, err)
				continue
			}
			byName[key] = updated
			res.Updated++
			continue
		}

		created, err := s.Create(ctx, userID, item)
		if err != nil {
			res.fail(item.Name, err)
			continue
		}
		byName[key] = created
		res.Created++
	}

	s.logger.Info("import finished",
		logger.String("user_id", userID),
		logger.Int("created", res.Created),
		logger.Int("updated", res.Updated),
		logger.Int("failed", res.Failed))
	return res, nil
}

// Export returns userID's servers straight from the repository.
func (s *Service) Export(ctx context.Context, userID string) ([]domain.Server, error) {
	return s.repo.List(ctx, userID)
}

func (r *ImportResult) fail(name string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, ImportFailure{Name: name, Error: err.Error()})
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// keepServiceIDs gives incoming services without an id the id of an existing
// service with the same name. Each existing id is reused at most once.
func keepServiceIDs(existing, incoming []domain.Service) []domain.Service {
	free := make(map[string][]string, len(existing))
	for _, svc := range existing {
		k := nameKey(svc.Name)
		free[k] = append(free[k], svc.ID)
	}

	out := make([]domain.Service, len(incoming))
	for i, svc := range incoming {
		if svc.ID == "" {
			k := nameKey(svc.Name)
			if ids := free[k]; len(ids) > 0 {
				svc.ID = ids[0]
				free[k] = ids[1:]
			}
		}
		out[i] = svc
	}
	return out
}
