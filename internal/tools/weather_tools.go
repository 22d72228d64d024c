package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nimbusai/nimbus/internal/advice"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/weather"
)

// Forecaster fetches a 7-day forecast for a gazetteer location id.
// *weather.Client satisfies it.
type Forecaster interface {
	Forecast(ctx context.Context, locationID string) (*weather.Forecast, error)
}

// NewWeatherRegistry creates a registry populated with the weather
// assistant's tools.
func NewWeatherRegistry(gaz *gazetteer.Gazetteer, wx Forecaster, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	b := &weatherTools{gaz: gaz, wx: wx}
	b.register(r)
	return r
}

type weatherTools struct {
	gaz *gazetteer.Gazetteer
	wx  Forecaster
}

func (b *weatherTools) register(r *Registry) {
	r.Register(&Tool{
		Name:        "extract_city",
		Description: "Find the city mentioned in a piece of user text. Use this first when the user names a place.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The user text to scan for a city name",
				},
			},
			"required": []string{"text"},
		},
		Handler: b.handleExtractCity,
	})

	r.Register(&Tool{
		Name:        "get_weather_today",
		Description: "Get today's weather for a city. Pass the city name reported by extract_city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cityName": map[string]any{
					"type":        "string",
					"description": "City name, e.g. 北京",
				},
				"locationId": map[string]any{
					"type":        "string",
					"description": "Provider location id, when already known",
				},
			},
		},
		Handler: b.handleWeatherToday,
	})

	r.Register(&Tool{
		Name:        "get_weather_forecast",
		Description: "Get the multi-day forecast for a city, up to 7 days.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cityName": map[string]any{
					"type":        "string",
					"description": "City name, e.g. 北京",
				},
				"locationId": map[string]any{
					"type":        "string",
					"description": "Provider location id, when already known",
				},
				"days": map[string]any{
					"type":        "integer",
					"description": "Number of days to return (1-7, default 7)",
				},
			},
		},
		Handler: b.handleWeatherForecast,
	})

	r.Register(&Tool{
		Name:        "get_clothing_advice",
		Description: "Turn a day's weather into clothing advice. Omit the weather to reuse the result of get_weather_today.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dailyWeather": map[string]any{
					"type":        "object",
					"description": "One day of weather as returned by get_weather_today",
				},
			},
		},
		Handler: b.handleClothingAdvice,
	})
}

type extractCityInput struct {
	Text string `json:"text"`
}

func (b *weatherTools) handleExtractCity(_ context.Context, rc *RunContext, input json.RawMessage) (string, error) {
	var in extractCityInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid extract_city input: %w", err)
		}
	}

	text := strings.TrimSpace(in.Text)
	city, ok := b.gaz.ExtractFromText(text)
	if !ok {
		city, ok = b.gaz.FindByName(text)
	}
	// A miss is a successful result: the model reads the candidate list
	// and asks the user to pick, rather than treating it as a failure.
	if !ok {
		out, err := json.Marshal(map[string]any{
			"found":      false,
			"candidates": b.gaz.HotCityNames(),
		})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	rc.City = city
	out, err := json.Marshal(map[string]any{
		"found":      true,
		"cityName":   city.Name,
		"locationId": city.LocationID,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type weatherInput struct {
	CityName   string `json:"cityName"`
	LocationID string `json:"locationId"`
	Days       int    `json:"days"`
}

// resolveCity turns tool input into a gazetteer record: name first,
// then location id. Missing or unresolvable input is a failure; the
// model is expected to pass the city extract_city reported.
func (b *weatherTools) resolveCity(in weatherInput) (*gazetteer.City, error) {
	name := strings.TrimSpace(in.CityName)
	if name != "" {
		if c, ok := b.gaz.FindByName(name); ok {
			return c, nil
		}
	}
	if in.LocationID != "" {
		if c, ok := b.gaz.FindByLocationID(in.LocationID); ok {
			return c, nil
		}
	}

	query := name
	if query == "" {
		query = in.LocationID
	}
	return nil, &ErrCityNotFound{Query: query, Candidates: b.gaz.HotCityNames()}
}

func (b *weatherTools) fetchForecast(ctx context.Context, op string, city *gazetteer.City) (*weather.Forecast, error) {
	fc, err := b.wx.Forecast(ctx, city.LocationID)
	if err != nil {
		return nil, &ErrProviderFailure{Op: op, Err: err}
	}
	if !fc.IsSuccess() {
		return nil, &ErrProviderFailure{Op: op, Code: fc.Code}
	}
	return fc, nil
}

func (b *weatherTools) handleWeatherToday(ctx context.Context, rc *RunContext, input json.RawMessage) (string, error) {
	var in weatherInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid get_weather_today input: %w", err)
		}
	}

	city, err := b.resolveCity(in)
	if err != nil {
		return "", err
	}
	fc, err := b.fetchForecast(ctx, "get_weather_today", city)
	if err != nil {
		return "", err
	}
	today := fc.Today()
	if today == nil {
		return "", &ErrNoData{City: city.Name}
	}

	rc.City = city
	rc.Forecast = fc
	rc.Weather = today

	out, err := json.Marshal(map[string]any{
		"city":    city.Name,
		"weather": today,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *weatherTools) handleWeatherForecast(ctx context.Context, rc *RunContext, input json.RawMessage) (string, error) {
	var in weatherInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid get_weather_forecast input: %w", err)
		}
	}

	city, err := b.resolveCity(in)
	if err != nil {
		return "", err
	}
	fc, err := b.fetchForecast(ctx, "get_weather_forecast", city)
	if err != nil {
		return "", err
	}
	if len(fc.Daily) == 0 {
		return "", &ErrNoData{City: city.Name}
	}

	daily := fc.Daily
	if in.Days > 0 && in.Days < len(daily) {
		daily = daily[:in.Days]
	}

	rc.City = city
	rc.Forecast = fc

	out, err := json.Marshal(map[string]any{
		"city":  city.Name,
		"daily": daily,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type clothingAdviceInput struct {
	DailyWeather *weather.DailyWeather `json:"dailyWeather"`
}

func (b *weatherTools) handleClothingAdvice(_ context.Context, rc *RunContext, input json.RawMessage) (string, error) {
	var in clothingAdviceInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return "", fmt.Errorf("invalid get_clothing_advice input: %w", err)
		}
	}

	day := in.DailyWeather
	if day == nil {
		day = rc.Weather
	}

	adv := advice.Generate(day)
	rc.Advice = adv

	out, err := json.Marshal(adv)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
