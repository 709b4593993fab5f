package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/k-avy/weatherCli/internal/config"
	"github.com/k-avy/weatherCli/internal/handler"
	"github.com/k-avy/weatherCli/internal/middleware"
	"github.com/k-avy/weatherCli/internal/redis"
	"github.com/k-avy/weatherCli/internal/repository"
	"github.com/k-avy/weatherCli/internal/service"
)

const cityParam = "city"

// NewHandler wires repository, service, handler and middleware for cfg. The
// returned cleanup releases what the handler holds (the Redis client when the
// redis limiter backend is used). Background work stops with ctx.
func NewHandler(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, httpClient ...*http.Client) (http.Handler, func(), error) {
	weatherRepo := repository.NewWeatherRepository(cfg.OpenWeatherMap, httpClient...)
	weatherService := service.NewWeatherService(weatherRepo, logger)
	weatherHandler := handler.NewWeatherHandler(weatherService, cfg.Weather.DefaultCity, logger)

	cleanup := func() {}
	middlewares := []func(http.Handler) http.Handler{middleware.RequestLogger(logger)}
	var routeMiddlewares []func(http.Handler) http.Handler

	if cfg.RateLimiter.Enabled {
		var rl *middleware.RateLimiter
		switch cfg.RateLimiter.Backend {
		case config.BackendRedis:
			client, err := redis.Connect(ctx, cfg.Redis)
			if err != nil {
				return nil, nil, err
			}
			cleanup = func() {
				if err := client.Close(); err != nil {
					logger.Warnw("could not close redis client", "error", err)
				}
			}
			rl = middleware.NewRedisRateLimiter(client, cfg.RateLimiter, cityParam, logger)
		default:
			rl = middleware.NewMemoryRateLimiter(ctx, cfg.RateLimiter, cityParam, logger)
		}
		routeMiddlewares = append(routeMiddlewares, rl.Middleware)
		logger.Infow("rate limiting enabled", "backend", cfg.RateLimiter.Backend)
	}

	return handler.NewRouter(weatherHandler, cfg.Weather.Path, middlewares, routeMiddlewares...), cleanup, nil
}
