package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// ProviderAll is the provider filter value meaning "no filter".
const ProviderAll = "all"

// SortKey selects the ordering applied by the query pipeline.
type SortKey string

const (
	// SortCreated orders by creation time, oldest first. It is the default.
	SortCreated SortKey = "created"
	// SortServices orders by number of services, most first.
	SortServices SortKey = "services"
)

// ParseSort validates a sort key. An empty string selects SortCreated.
func ParseSort(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortCreated:
		return SortCreated, nil
	case SortServices:
		return SortServices, nil
	default:
		return "", fmt.Errorf("unknown sort key %q (want %q or %q)", s, SortCreated, SortServices)
	}
}

// Query describes the derived view a user asked for.
type Query struct {
	// Provider is compared exactly (case-sensitive). Empty or ProviderAll
	// disables the filter.
	Provider string

	// Search is matched case-insensitively as a substring of the name, IP,
	// provider or any service name. Empty disables the filter.
	Search string

	Sort SortKey
}

// Apply runs the pipeline over servers: provider filter, then text search,
// then a stable sort. The input slice is never modified.
func Apply(servers []Server, q Query) []Server {
	out := FilterByProvider(servers, q.Provider)
	out = Search(out, q.Search)
	SortServers(out, q.Sort)
	return out
}

// FilterByProvider keeps servers whose provider equals provider.
// It always returns a fresh slice.
func FilterByProvider(servers []Server, provider string) []Server {
	out := make([]Server, 0, len(servers))
	if provider == "" || provider == ProviderAll {
		return append(out, servers...)
	}
	for _, s := range servers {
		if s.Provider == provider {
			out = append(out, s)
		}
	}
	return out
}

// Search keeps servers matching query. It always returns a fresh slice.
func Search(servers []Server, query string) []Server {
	out := make([]Server, 0, len(servers))
	if query == "" {
		return append(out, servers...)
	}
	needle := strings.ToLower(query)
	for _, s := range servers {
		if Matches(s, needle) {
			out = append(out, s)
		}
	}
	return out
}

// Matches reports whether the lowercase needle occurs in one of the
// searchable fields of s.
func Matches(s Server, needle string) bool {
	if strings.Contains(strings.ToLower(s.Name), needle) ||
		strings.Contains(strings.ToLower(s.IP), needle) ||
		strings.Contains(strings.ToLower(s.Provider), needle) {
		return true
	}
	for _, svc := range s.Services {
		if strings.Contains(strings.ToLower(svc.Name), needle) {
			return true
		}
	}
	return false
}

// SortServers sorts servers in place. The sort is stable: ties keep their
// prior relative order. Unknown keys fall back to SortCreated.
func SortServers(servers []Server, key SortKey) {
	switch key {
	case SortServices:
		slices.SortStableFunc(servers, func(a, b Server) int {
			return cmp.Compare(b.ServiceCount(), a.ServiceCount())
		})
	default:
		slices.SortStableFunc(servers, func(a, b Server) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}
}

// Providers returns the distinct non-blank providers of servers, sorted, for
// the provider filter choices. Values are kept as stored so that filtering by
// a choice matches its servers.
func Providers(servers []Server) []string {
	seen := make(map[string]struct{}, len(servers))
	providers := make([]string, 0, len(servers))
	for _, s := range servers {
		p := s.Provider
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		providers = append(providers, p)
	}
	slices.Sort(providers)
	return providers
}
