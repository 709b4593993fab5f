package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/k-avy/weatherCli/internal/model"
	"github.com/k-avy/weatherCli/internal/repository"
)

var ErrEmptyCity = errors.New("city must not be empty")

type WeatherServiceInterface interface {
	GetWeather(ctx context.Context, city string) (*model.WeatherResult, error)
}

type WeatherService struct {
	WeatherRepo repository.WeatherRepository
	Logger      *zap.SugaredLogger
}

func NewWeatherService(repo repository.WeatherRepository, logger *zap.SugaredLogger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WeatherService{
		WeatherRepo: repo,
		Logger:      logger,
	}
}

// GetWeather looks up the current weather for city. Every call reaches the
// repository; nothing is remembered between calls.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (*model.WeatherResult, error) {
	if city == "" {
		return nil, ErrEmptyCity
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	weather, err := s.WeatherRepo.GetWeather(ctx, city)
	if err != nil {
		s.Logger.Warnw("weather lookup failed",
			"city", city,
			"kind", repository.KindOf(err).String(),
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	s.Logger.Debugw("weather lookup succeeded",
		"city", city,
		"temperature", weather.Temperature,
		"duration", time.Since(start),
	)
	return weather, nil
}
