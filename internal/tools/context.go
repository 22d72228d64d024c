package tools

import (
	"github.com/nimbusai/nimbus/internal/advice"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/weather"
)

// RunContext accumulates intermediate tool results across one agent
// run. Later tools fall back to it when the model omits an argument
// (e.g. get_weather_today without a city reuses the last extraction),
// and the final answer surfaces it as structured payload. A RunContext
// belongs to a single run and is not safe for concurrent use.
type RunContext struct {
	City     *gazetteer.City
	Weather  *weather.DailyWeather
	Forecast *weather.Forecast
	Advice   *advice.ClothingAdvice
}

// NewRunContext returns an empty per-run context.
func NewRunContext() *RunContext {
	return &RunContext{}
}
