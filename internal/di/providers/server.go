package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/api"
	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/ratelimit"
	"github.com/dseinapp/dsein-server/internal/service"
)

// RateLimiterHandle wraps the per-user limiter with shutdown capability.
type RateLimiterHandle struct {
	*ratelimit.Limiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	if h.Limiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideRateLimiter provides the limiter for mutating routes. A zero rate
// disables limiting.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.RateLimit.PerMinute <= 0 {
		return &RateLimiterHandle{}, nil
	}
	return &RateLimiterHandle{
		Limiter: ratelimit.PerMinute(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	}, nil
}

// HTTPServerHandle drains in-flight requests on shutdown.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer builds the API handler and starts serving it.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	services := &api.Services{
		Directory: do.MustInvoke[*service.DirectoryService](i),
		Follow:    do.MustInvoke[*service.FollowService](i),
		Like:      do.MustInvoke[*service.LikeService](i),
		Invite:    do.MustInvoke[*service.InviteService](i),
		Activity:  do.MustInvoke[*service.ActivityService](i),
	}

	handler := api.NewServer(api.Deps{
		Store:      storeHandle.Store,
		Services:   services,
		Config:     cfg,
		Index:      indexHandle.SearchIndex,
		Metrics:    m,
		SSEManager: sseHandle.Manager,
		Limiter:    limiter.Limiter,
		Logger:     log.WithComponent("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Bind now so a taken port fails Bootstrap; serve in the background.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	log.Info("HTTP server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
