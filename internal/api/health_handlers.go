package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// severity orders statuses so the overall status is the worst component.
var severity = map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports store, search and event stream health. Responds 503 when the store is unreachable.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" enum:"healthy,degraded,unhealthy" doc:"Component status"`
	Latency string `json:"latency,omitempty" doc:"Time the probe took"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" enum:"healthy,degraded,unhealthy" doc:"Worst component status"`
	Backend    string                     `json:"backend,omitempty" doc:"Storage backend in use"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	probes := map[string]func(context.Context) ComponentHealth{
		"database": s.probeStore,
		"search":   s.probeSearch,
		"sse":      s.probeStreams,
	}

	body := HealthResponse{Status: statusHealthy, Components: make(map[string]ComponentHealth, len(probes))}
	for name, probe := range probes {
		c := probe(ctx)
		body.Components[name] = c
		if severity[c.Status] > severity[body.Status] {
			body.Status = c.Status
		}
	}
	if s.store != nil {
		body.Backend = s.store.Backend()
	}

	code := http.StatusOK
	if body.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return &HealthOutput{Status: code, Body: body}, nil
}

// timed runs fn and stamps its duration on the result.
func timed(fn func() ComponentHealth) ComponentHealth {
	start := time.Now()
	c := fn()
	c.Latency = time.Since(start).String()
	return c
}

func (s *Server) probeStore(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: statusUnhealthy, Message: "store not configured"}
	}
	return timed(func() ComponentHealth {
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("store ping failed", "error", err)
			return ComponentHealth{Status: statusUnhealthy, Message: "store ping failed"}
		}
		return ComponentHealth{Status: statusHealthy}
	})
}

// probeSearch treats a missing index as healthy: username lookup does not
// depend on it.
func (s *Server) probeSearch(context.Context) ComponentHealth {
	if s.index == nil {
		return ComponentHealth{Status: statusHealthy, Message: "search disabled, exact username lookup only"}
	}
	return timed(func() ComponentHealth {
		n, err := s.index.DocumentCount()
		if err != nil {
			return ComponentHealth{Status: statusDegraded, Message: "search index unreachable"}
		}
		return ComponentHealth{Status: statusHealthy, Message: fmt.Sprintf("%d users indexed", n)}
	})
}

func (s *Server) probeStreams(context.Context) ComponentHealth {
	if s.sseManager == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event streaming not configured"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatStreams(s.sseManager.ClientCount(), s.sseManager.UserCount()),
	}
}

func formatStreams(streams, users int) string {
	if streams == 0 {
		return "no open streams"
	}
	plural := func(n int, word string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", word)
		}
		return fmt.Sprintf("%d %ss", n, word)
	}
	return plural(streams, "stream") + " for " + plural(users, "user")
}
