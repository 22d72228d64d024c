package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/weather"
)

const testCSV = `China-City-List v202409
Location_ID,Location_Name_EN,Location_Name_ZH,ISO_3166_2,Country_Region_EN,Country_Region_ZH,Adm1_Name_EN,Adm1_Name_ZH,Adm2_Name_EN,Adm2_Name_ZH,Timezone,Latitude,Longitude,Adcode
101010100,Beijing,北京,CN-BJ,China,中国,Beijing,北京,Beijing,北京,UTC+8,39.90498,116.40528,110000
101020100,Shanghai,上海,CN-SH,China,中国,Shanghai,上海,Shanghai,上海,UTC+8,31.23171,121.47264,310000
`

func testGazetteer(t *testing.T) *gazetteer.Gazetteer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	gaz, err := gazetteer.Load(path, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return gaz
}

// fakeForecaster serves a canned forecast, or an error.
type fakeForecaster struct {
	forecast *weather.Forecast
	err      error

	lastLocationID string
}

func (f *fakeForecaster) Forecast(_ context.Context, locationID string) (*weather.Forecast, error) {
	f.lastLocationID = locationID
	return f.forecast, f.err
}

func sunnyForecast() *weather.Forecast {
	return &weather.Forecast{
		Code: "200",
		Daily: []weather.DailyWeather{
			{FxDate: "2026-09-01", TempMax: "26", TempMin: "18", TextDay: "晴"},
			{FxDate: "2026-09-02", TempMax: "24", TempMin: "17", TextDay: "多云"},
			{FxDate: "2026-09-03", TempMax: "22", TempMin: "15", TextDay: "小雨"},
		},
	}
}

func TestExtractCity(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)
	rc := NewRunContext()

	out, trace, err := r.Execute(context.Background(), rc, "extract_city",
		json.RawMessage(`{"text":"北京今天适合穿什么"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trace.Status != StatusSuccess {
		t.Errorf("trace status = %q", trace.Status)
	}

	var payload struct {
		Found      bool   `json:"found"`
		CityName   string `json:"cityName"`
		LocationID string `json:"locationId"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !payload.Found || payload.CityName != "北京" || payload.LocationID != "101010100" {
		t.Errorf("payload = %+v", payload)
	}
	if rc.City == nil || rc.City.Name != "北京" {
		t.Errorf("run context city = %+v", rc.City)
	}
}

// A text with no recognizable city is still a successful tool result;
// the payload says so and offers candidates for the model to relay.
func TestExtractCityMiss(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)
	rc := NewRunContext()

	out, trace, err := r.Execute(context.Background(), rc, "extract_city",
		json.RawMessage(`{"text":"今天天气如何"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trace.Status != StatusSuccess {
		t.Errorf("trace status = %q", trace.Status)
	}

	var payload struct {
		Found      bool     `json:"found"`
		Candidates []string `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if payload.Found {
		t.Error("found = true for unrecognizable text")
	}
	if len(payload.Candidates) == 0 {
		t.Error("miss should offer candidate cities")
	}
	if rc.City != nil {
		t.Errorf("run context city = %+v, want none", rc.City)
	}
}

func TestWeatherTodayByName(t *testing.T) {
	wx := &fakeForecaster{forecast: sunnyForecast()}
	r := NewWeatherRegistry(testGazetteer(t), wx, nil)
	rc := NewRunContext()

	out, _, err := r.Execute(context.Background(), rc, "get_weather_today",
		json.RawMessage(`{"cityName":"上海"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if wx.lastLocationID != "101020100" {
		t.Errorf("queried location %q, want 101020100", wx.lastLocationID)
	}
	if !strings.Contains(out, `"tempMax":"26"`) {
		t.Errorf("output missing today's weather: %s", out)
	}
	if rc.Weather == nil || rc.Weather.FxDate != "2026-09-01" {
		t.Errorf("run context weather = %+v", rc.Weather)
	}
}

// An earlier extraction does not stand in for the city input: the
// weather tools resolve only what the call itself names.
func TestWeatherTodayIgnoresRunContextCity(t *testing.T) {
	wx := &fakeForecaster{forecast: sunnyForecast()}
	gaz := testGazetteer(t)
	r := NewWeatherRegistry(gaz, wx, nil)
	rc := NewRunContext()
	rc.City, _ = gaz.FindByName("北京")

	_, _, err := r.Execute(context.Background(), rc, "get_weather_today", nil)

	var notFound *ErrCityNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ErrCityNotFound", err)
	}
	if wx.lastLocationID != "" {
		t.Errorf("queried location %q, want no query", wx.lastLocationID)
	}
}

func TestWeatherTodayErrors(t *testing.T) {
	tests := []struct {
		name    string
		wx      *fakeForecaster
		input   string
		wantErr any
	}{
		{
			name:    "unknown city",
			wx:      &fakeForecaster{forecast: sunnyForecast()},
			input:   `{"cityName":"不存在"}`,
			wantErr: new(*ErrCityNotFound),
		},
		{
			name:    "no city anywhere",
			wx:      &fakeForecaster{forecast: sunnyForecast()},
			input:   `{}`,
			wantErr: new(*ErrCityNotFound),
		},
		{
			name:    "transport failure",
			wx:      &fakeForecaster{err: errors.New("connect refused")},
			input:   `{"cityName":"北京"}`,
			wantErr: new(*ErrProviderFailure),
		},
		{
			name:    "provider code",
			wx:      &fakeForecaster{forecast: &weather.Forecast{Code: "402"}},
			input:   `{"cityName":"北京"}`,
			wantErr: new(*ErrProviderFailure),
		},
		{
			name:    "empty forecast",
			wx:      &fakeForecaster{forecast: &weather.Forecast{Code: "200"}},
			input:   `{"cityName":"北京"}`,
			wantErr: new(*ErrNoData),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewWeatherRegistry(testGazetteer(t), tt.wx, nil)
			_, _, err := r.Execute(context.Background(), NewRunContext(), "get_weather_today",
				json.RawMessage(tt.input))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.As(err, tt.wantErr) {
				t.Errorf("err = %v, want %T", err, tt.wantErr)
			}
		})
	}
}

func TestWeatherForecastLimitsDays(t *testing.T) {
	wx := &fakeForecaster{forecast: sunnyForecast()}
	r := NewWeatherRegistry(testGazetteer(t), wx, nil)

	out, _, err := r.Execute(context.Background(), NewRunContext(), "get_weather_forecast",
		json.RawMessage(`{"cityName":"北京","days":2}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var payload struct {
		City  string                 `json:"city"`
		Daily []weather.DailyWeather `json:"daily"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if payload.City != "北京" {
		t.Errorf("city = %q", payload.City)
	}
	if len(payload.Daily) != 2 {
		t.Errorf("len(daily) = %d, want 2", len(payload.Daily))
	}
}

func TestClothingAdviceFromRunContext(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)
	rc := NewRunContext()
	rc.Weather = &weather.DailyWeather{TempMax: "10", TempMin: "2", TextDay: "晴"}

	out, _, err := r.Execute(context.Background(), rc, "get_clothing_advice", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "天气凉爽") {
		t.Errorf("advice output = %s", out)
	}
	if rc.Advice == nil {
		t.Error("run context advice not recorded")
	}
}

func TestClothingAdviceWithoutWeather(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)

	out, _, err := r.Execute(context.Background(), NewRunContext(), "get_clothing_advice", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "暂无天气数据") {
		t.Errorf("advice output = %s", out)
	}
}

func TestUnknownTool(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)

	_, trace, err := r.Execute(context.Background(), NewRunContext(), "open_pod_bay_doors", nil)

	var unknown *ErrUnknownTool
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want ErrUnknownTool", err)
	}
	if trace.Status != StatusError {
		t.Errorf("trace status = %q", trace.Status)
	}
}

func TestTraceSummariesClipped(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)

	long := strings.Repeat("京", 400)
	_, trace, _ := r.Execute(context.Background(), NewRunContext(), "extract_city",
		json.RawMessage(`{"text":"`+long+`"}`))

	if n := len([]rune(trace.InputSummary)); n > summaryMaxChars+3 {
		t.Errorf("input summary length %d exceeds the limit", n)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewWeatherRegistry(testGazetteer(t), &fakeForecaster{}, nil)

	list := r.List()
	if len(list) != 4 {
		t.Fatalf("len(List()) = %d, want 4", len(list))
	}
	names := make(map[string]bool)
	for _, entry := range list {
		names[entry["name"].(string)] = true
	}
	for _, want := range []string{"extract_city", "get_weather_today", "get_weather_forecast", "get_clothing_advice"} {
		if !names[want] {
			t.Errorf("List() missing %s", want)
		}
	}
}
