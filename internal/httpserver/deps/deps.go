package deps

import (
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/inventory"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
	"github.com/MrSnakeDoc/vpsinv/internal/scheduler"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time        // for testing, defaults to time.Now
	AllowedHosts   []string                // Host headers allowed to access /reload
	AllowedCIDRS   []string                // IPs allowed to access ops endpoints
	TrustProxy     bool                    // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins    []string                // Origins allowed by CORS, empty = no CORS headers
	AuthRatePerMin int                     // login/register attempts per client per minute
	MaxBodyBytes   int64                   // request body limit for JSON and YAML payloads
	StoreName      string                  // "redis" | "postgres" | "sqlite" | "memory"
	Store          docstore.Store          // document store, pinged by /readyz
	Inventory      *inventory.Service      // per-user server inventory
	Auth           *auth.Service           // accounts and sessions
	Metrics        *metrics.Metrics        // nil disables /metrics
	SeedReloader   *scheduler.SeedReloader // nil when no seed file is configured
	ReloadTrigger  chan struct{}           // Channel to trigger a manual seed reload (nil if disabled)
}

// Now returns d.TimeNow() or time.Now() when unset.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
