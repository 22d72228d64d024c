// Package weatherquery answers direct weather lookups outside the
// agent loop, composing the gazetteer, the provider client, and the
// advice rules into one call.
package weatherquery

import (
	"context"
	"log/slog"

	"github.com/nimbusai/nimbus/internal/advice"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/tools"
	"github.com/nimbusai/nimbus/internal/weather"
)

// TodayReport is one city's current-day weather with derived advice.
type TodayReport struct {
	City    *gazetteer.City        `json:"city"`
	Weather *weather.DailyWeather  `json:"weather"`
	Advice  *advice.ClothingAdvice `json:"advice"`
}

// ForecastReport is one city's multi-day outlook.
type ForecastReport struct {
	City  *gazetteer.City        `json:"city"`
	Daily []weather.DailyWeather `json:"daily"`
}

// Service resolves city text and fetches forecasts.
type Service struct {
	gaz    *gazetteer.Gazetteer
	wx     tools.Forecaster
	logger *slog.Logger
}

func NewService(gaz *gazetteer.Gazetteer, wx tools.Forecaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gaz:    gaz,
		wx:     wx,
		logger: logger.With("component", "weatherquery"),
	}
}

// resolve finds the gazetteer record for free-form city text.
func (s *Service) resolve(cityText string) (*gazetteer.City, error) {
	if c, ok := s.gaz.FindByName(cityText); ok {
		return c, nil
	}
	if c, ok := s.gaz.ExtractFromText(cityText); ok {
		return c, nil
	}
	return nil, &tools.ErrCityNotFound{Query: cityText, Candidates: s.gaz.HotCityNames()}
}

func (s *Service) fetch(ctx context.Context, city *gazetteer.City) (*weather.Forecast, error) {
	fc, err := s.wx.Forecast(ctx, city.LocationID)
	if err != nil {
		return nil, &tools.ErrProviderFailure{Op: "weather lookup", Err: err}
	}
	if !fc.IsSuccess() {
		return nil, &tools.ErrProviderFailure{Op: "weather lookup", Code: fc.Code}
	}
	return fc, nil
}

// Today returns today's weather and clothing advice for a city.
func (s *Service) Today(ctx context.Context, cityText string) (*TodayReport, error) {
	city, err := s.resolve(cityText)
	if err != nil {
		return nil, err
	}
	fc, err := s.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	today := fc.Today()
	if today == nil {
		return nil, &tools.ErrNoData{City: city.Name}
	}

	s.logger.Debug("weather lookup", "city", city.Name, "location", city.LocationID)
	return &TodayReport{
		City:    city,
		Weather: today,
		Advice:  advice.Generate(today),
	}, nil
}

// Forecast returns the multi-day outlook for a city. days <= 0 or
// beyond the provider window returns everything available.
func (s *Service) Forecast(ctx context.Context, cityText string, days int) (*ForecastReport, error) {
	city, err := s.resolve(cityText)
	if err != nil {
		return nil, err
	}
	fc, err := s.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	if len(fc.Daily) == 0 {
		return nil, &tools.ErrNoData{City: city.Name}
	}

	daily := fc.Daily
	if days > 0 && days < len(daily) {
		daily = daily[:days]
	}
	return &ForecastReport{City: city, Daily: daily}, nil
}

// HotCities lists the configured quick-pick cities.
func (s *Service) HotCities() []*gazetteer.City {
	return s.gaz.HotCities()
}
