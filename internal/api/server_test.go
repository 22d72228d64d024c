package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nimbusai/nimbus/internal/agent"
	"github.com/nimbusai/nimbus/internal/archive"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/session"
	"github.com/nimbusai/nimbus/internal/tools"
	"github.com/nimbusai/nimbus/internal/weather"
	"github.com/nimbusai/nimbus/internal/weatherquery"
)

const testCSV = `Location_ID,Location_Name_EN,Location_Name_ZH,ISO_3166_2,Country_Region_EN,Country_Region_ZH,Adm1_Name_EN,Adm1_Name_ZH,Adm2_Name_EN,Adm2_Name_ZH,Timezone,Latitude,Longitude,Adcode
101010100,Beijing,北京,CN-BJ,China,中国,Beijing,北京,Beijing,北京,UTC+8,39.90498,116.40528,110000
`

// scriptedLLM replays canned completions; the script restarts when
// exhausted so each HTTP request in a test gets the same behavior.
type scriptedLLM struct {
	responses []string
	next      int
}

func (s *scriptedLLM) Complete(context.Context, string) (string, error) {
	if len(s.responses) == 0 {
		return "", errors.New("no scripted responses")
	}
	resp := s.responses[s.next%len(s.responses)]
	s.next++
	return resp, nil
}

func (s *scriptedLLM) Ping(context.Context) error { return nil }

type stubForecaster struct {
	forecast *weather.Forecast
	err      error
}

func (f *stubForecaster) Forecast(context.Context, string) (*weather.Forecast, error) {
	return f.forecast, f.err
}

func sunnyForecast() *weather.Forecast {
	return &weather.Forecast{
		Code: "200",
		Daily: []weather.DailyWeather{
			{FxDate: "2026-09-01", TempMax: "26", TempMin: "18", TextDay: "晴"},
			{FxDate: "2026-09-02", TempMax: "24", TempMin: "17", TextDay: "多云"},
		},
	}
}

type serverOptions struct {
	llm     *scriptedLLM
	wx      *stubForecaster
	archive bool
}

func newTestServer(t *testing.T, opts serverOptions) (*Server, *httptest.Server) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cities.csv")
	if err := os.WriteFile(path, []byte(testCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	gaz, err := gazetteer.Load(path, []string{"北京"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if opts.llm == nil {
		opts.llm = &scriptedLLM{responses: []string{`{"type":"final","content":"好的"}`}}
	}
	if opts.wx == nil {
		opts.wx = &stubForecaster{forecast: sunnyForecast()}
	}

	registry := tools.NewWeatherRegistry(gaz, opts.wx, nil)
	store := session.NewStore(10, 2*time.Hour, nil)
	loop := agent.NewLoop(opts.llm, registry, store, nil)
	query := weatherquery.NewService(gaz, opts.wx, nil)

	srv := NewServer("127.0.0.1:0", loop, query, nil)
	if opts.archive {
		arch, err := archive.NewStore(filepath.Join(t.TempDir(), "archive.db"))
		if err != nil {
			t.Fatalf("archive: %v", err)
		}
		t.Cleanup(func() { arch.Close() })
		srv.SetArchive(arch)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func TestHealthAndVersion(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})

	health := getJSON(t, ts.URL+"/health", http.StatusOK)
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}

	version := getJSON(t, ts.URL+"/version", http.StatusOK)
	if version["version"] == nil {
		t.Errorf("version = %v", version)
	}
}

func TestWeatherToday(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})

	body := getJSON(t, ts.URL+"/weather/北京", http.StatusOK)
	wx, ok := body["weather"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if wx["tempMax"] != "26" {
		t.Errorf("weather = %v", wx)
	}
	if body["advice"] == nil {
		t.Error("advice missing")
	}
}

func TestWeatherUnknownCity(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})
	getJSON(t, ts.URL+"/weather/不存在的城市", http.StatusNotFound)
}

func TestWeatherProviderDown(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{wx: &stubForecaster{err: errors.New("timeout")}})
	getJSON(t, ts.URL+"/weather/北京", http.StatusBadGateway)
}

func TestWeatherForecastDays(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})

	body := getJSON(t, ts.URL+"/weather/北京/forecast?days=1", http.StatusOK)
	daily, ok := body["daily"].([]any)
	if !ok || len(daily) != 1 {
		t.Errorf("daily = %v", body["daily"])
	}

	getJSON(t, ts.URL+"/weather/北京/forecast?days=zero", http.StatusBadRequest)
}

func TestHotCities(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})

	body := getJSON(t, ts.URL+"/weather/cities", http.StatusOK)
	cities, ok := body["cities"].([]any)
	if !ok || len(cities) != 1 {
		t.Errorf("cities = %v", body["cities"])
	}
}

func TestChat(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{llm: &scriptedLLM{responses: []string{
		`{"type":"final","content":"今天穿外套"}`,
	}}})

	resp, err := http.Post(ts.URL+"/nimbus/agent/chat", "application/json",
		strings.NewReader(`{"message":"北京穿什么","sessionId":"s1"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result agent.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.Content != "今天穿外套" {
		t.Errorf("result = %+v", result)
	}
	if result.SessionID != "s1" || result.TraceID == "" {
		t.Errorf("ids = %q, %q", result.SessionID, result.TraceID)
	}
}

func TestChatBadRequests(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})

	tests := []struct {
		name string
		body string
	}{
		{name: "empty message", body: `{"message":"  "}`},
		{name: "malformed json", body: `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/nimbus/agent/chat", "application/json",
				strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestChatArchivesTurns(t *testing.T) {
	srv, ts := newTestServer(t, serverOptions{archive: true})

	resp, err := http.Post(ts.URL+"/nimbus/agent/chat", "application/json",
		strings.NewReader(`{"message":"你好","sessionId":"s1","userId":"u1"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	turns, err := srv.arch.Turns(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 1 || turns[0].UserMessage != "你好" {
		t.Errorf("turns = %+v", turns)
	}

	body := getJSON(t, ts.URL+"/nimbus/agent/sessions?userId=u1", http.StatusOK)
	sessions, ok := body["sessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Errorf("sessions = %v", body["sessions"])
	}
}

func TestSessionsWithoutArchive(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{})
	getJSON(t, ts.URL+"/nimbus/agent/sessions", http.StatusServiceUnavailable)
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	event string
	data  string
}

func readSSE(t *testing.T, body *bufio.Scanner) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	for body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.event != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	return events
}

func TestChatStream(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{llm: &scriptedLLM{responses: []string{
		`{"type":"final","content":"北京今天天气凉爽，建议穿风衣或夹克。"}`,
	}}})

	resp, err := http.Post(ts.URL+"/nimbus/agent/chat/stream?mode=stable", "application/json",
		strings.NewReader(`{"message":"北京穿什么"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := readSSE(t, bufio.NewScanner(resp.Body))
	if len(events) < 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].event != "meta" {
		t.Errorf("first event = %q, want meta", events[0].event)
	}
	if events[len(events)-1].event != "done" {
		t.Errorf("last event = %q, want done", events[len(events)-1].event)
	}

	var content strings.Builder
	for _, ev := range events {
		if ev.event != "delta" {
			continue
		}
		var delta streamDelta
		if err := json.Unmarshal([]byte(ev.data), &delta); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		content.WriteString(delta.Content)
	}
	if got := content.String(); got != "北京今天天气凉爽，建议穿风衣或夹克。" {
		t.Errorf("reassembled content = %q", got)
	}
}

func TestChatStreamAgentFailure(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{llm: &scriptedLLM{responses: []string{
		"not json at all",
	}}})

	resp, err := http.Post(ts.URL+"/nimbus/agent/chat/stream?mode=stable", "application/json",
		strings.NewReader(`{"message":"北京穿什么"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	events := readSSE(t, bufio.NewScanner(resp.Body))
	var sawError bool
	for _, ev := range events {
		if ev.event == "error" {
			sawError = true
			var se streamError
			if err := json.Unmarshal([]byte(ev.data), &se); err != nil {
				t.Fatalf("decode error event: %v", err)
			}
			if se.Message != "Invalid model output." {
				t.Errorf("error message = %q", se.Message)
			}
		}
	}
	if !sawError {
		t.Errorf("no error event in %+v", events)
	}
	if events[len(events)-1].event != "done" {
		t.Errorf("last event = %q, want done", events[len(events)-1].event)
	}
}

func TestChatWebSocket(t *testing.T) {
	_, ts := newTestServer(t, serverOptions{llm: &scriptedLLM{responses: []string{
		`{"type":"final","content":"穿短袖"}`,
	}}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/nimbus/agent/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ChatRequest{Message: "北京穿什么", SessionID: "ws1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var sawMeta, sawDone bool
	var content strings.Builder
	for !sawDone {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch frame.Event {
		case "meta":
			sawMeta = true
		case "delta":
			var delta streamDelta
			if err := json.Unmarshal(frame.Data, &delta); err != nil {
				t.Fatalf("decode delta: %v", err)
			}
			content.WriteString(delta.Content)
		case "done":
			sawDone = true
		case "error":
			t.Fatalf("unexpected error frame: %s", frame.Data)
		}
	}
	if !sawMeta {
		t.Error("no meta frame")
	}
	if content.String() != "穿短袖" {
		t.Errorf("content = %q", content.String())
	}
}
