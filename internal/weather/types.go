package weather

import (
	"strconv"
	"strings"
)

// DailyWeather is one day of a provider forecast. The provider delivers
// every numeric field as a string; derived accessors parse on demand.
type DailyWeather struct {
	FxDate         string `json:"fxDate"`
	Sunrise        string `json:"sunrise,omitempty"`
	Sunset         string `json:"sunset,omitempty"`
	Moonrise       string `json:"moonrise,omitempty"`
	Moonset        string `json:"moonset,omitempty"`
	TempMax        string `json:"tempMax"`
	TempMin        string `json:"tempMin"`
	IconDay        string `json:"iconDay,omitempty"`
	TextDay        string `json:"textDay"`
	IconNight      string `json:"iconNight,omitempty"`
	TextNight      string `json:"textNight,omitempty"`
	WindDirDay     string `json:"windDirDay,omitempty"`
	Wind360Day     string `json:"wind360Day,omitempty"`
	WindScaleDay   string `json:"windScaleDay,omitempty"`
	WindSpeedDay   string `json:"windSpeedDay,omitempty"`
	WindDirNight   string `json:"windDirNight,omitempty"`
	Wind360Night   string `json:"wind360Night,omitempty"`
	WindScaleNight string `json:"windScaleNight,omitempty"`
	WindSpeedNight string `json:"windSpeedNight,omitempty"`
	Precip         string `json:"precip,omitempty"`
	UVIndex        string `json:"uvIndex,omitempty"`
	Humidity       string `json:"humidity,omitempty"`
	Pressure       string `json:"pressure,omitempty"`
	Vis            string `json:"vis,omitempty"`
	Cloud          string `json:"cloud,omitempty"`
}

// TempMaxValue returns the high temperature, or 0 when unparseable.
func (d *DailyWeather) TempMaxValue() int {
	v, err := strconv.Atoi(d.TempMax)
	if err != nil {
		return 0
	}
	return v
}

// TempMinValue returns the low temperature, or 0 when unparseable.
func (d *DailyWeather) TempMinValue() int {
	v, err := strconv.Atoi(d.TempMin)
	if err != nil {
		return 0
	}
	return v
}

// AverageTemp is the midpoint of the daily high and low.
func (d *DailyWeather) AverageTemp() int {
	return (d.TempMaxValue() + d.TempMinValue()) / 2
}

// IsRainy reports whether the daytime description mentions rain or snow.
func (d *DailyWeather) IsRainy() bool {
	return strings.Contains(d.TextDay, "雨") || strings.Contains(d.TextDay, "雪")
}

// Forecast is the provider's multi-day forecast response.
type Forecast struct {
	Code       string         `json:"code"`
	UpdateTime string         `json:"updateTime,omitempty"`
	FxLink     string         `json:"fxLink,omitempty"`
	Daily      []DailyWeather `json:"daily"`
	Refer      *Refer         `json:"refer,omitempty"`
}

// Refer carries provider attribution.
type Refer struct {
	Sources []string `json:"sources,omitempty"`
	License []string `json:"license,omitempty"`
}

// IsSuccess reports whether the provider accepted the request.
func (f *Forecast) IsSuccess() bool {
	return f.Code == "200"
}

// Today returns the first daily entry, or nil when the forecast is empty.
func (f *Forecast) Today() *DailyWeather {
	if len(f.Daily) == 0 {
		return nil
	}
	return &f.Daily[0]
}

// Tomorrow returns the second daily entry, or nil when absent.
func (f *Forecast) Tomorrow() *DailyWeather {
	if len(f.Daily) < 2 {
		return nil
	}
	return &f.Daily[1]
}
