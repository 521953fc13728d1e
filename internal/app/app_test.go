package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lectrify/lectrify/internal/config"
	"github.com/lectrify/lectrify/internal/sink"
	"github.com/lectrify/lectrify/pkg/audio"
	audiomock "github.com/lectrify/lectrify/pkg/audio/mock"
	"github.com/lectrify/lectrify/pkg/provider/analysis"
	analysismock "github.com/lectrify/lectrify/pkg/provider/analysis/mock"
	transcribemock "github.com/lectrify/lectrify/pkg/provider/transcribe/mock"
)

const testRate = 10

// frame builds a 2s frame whose samples all sit at the given peak.
func frame(peak float32, ts time.Duration) audio.Frame {
	samples := make([]float32, 2*testRate)
	for i := range samples {
		samples[i] = peak
	}
	return audio.Frame{Samples: samples, SampleRate: testRate, Timestamp: ts}
}

// utterance returns speech frames followed by enough silence to close the
// segment, starting at the given stream offset.
func utterance(start time.Duration, speechFrames int) []audio.Frame {
	var out []audio.Frame
	ts := start
	for range speechFrames {
		out = append(out, frame(0.8, ts))
		ts += 2 * time.Second
	}
	out = append(out, frame(0.01, ts))
	return out
}

func testConfig(sinkURL string) *config.Config {
	return &config.Config{
		Themes: []string{"geography"},
		Sink: config.SinkConfig{
			URL:    sinkURL,
			Secret: "s3cret",
			Code:   "ROOM42",
		},
		Pipeline: config.PipelineConfig{
			CallTimeout: 5 * time.Second,
			Retry:       config.RetryConfig{MaxAttempts: 1},
		},
	}
}

// recordingDeliverer is a sink test double that counts deliveries.
type recordingDeliverer struct {
	mu        sync.Mutex
	questions []sink.Question
}

func (d *recordingDeliverer) Deliver(_ context.Context, q sink.Question) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.questions = append(d.questions, q)
	return "ok", nil
}

func (d *recordingDeliverer) delivered() []sink.Question {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sink.Question(nil), d.questions...)
}

// runApp runs a.Run in the background and returns a stop function that
// cancels the context and waits for Run to return.
func runApp(t *testing.T, a *App) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestRunDispatchesQuestionEndToEnd(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode sink payload: %v", err)
		}
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transcriber := &transcribemock.Transcriber{Text: "what is the capital of finland"}
	analyzer := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "What is the capital of Finland?"},
		Relevant:   true,
		Options: analysis.OptionSet{
			Correct:   "Helsinki",
			Incorrect: []string{"Oslo", "Stockholm", "Tallinn"},
		},
	}
	src := &audiomock.Source{Frames: utterance(0, 2)}

	a, err := New(testConfig(srv.URL), &Providers{Transcriber: transcriber, Analyzer: analyzer}, WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := runApp(t, a)

	var body map[string]any
	select {
	case body = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sink delivery")
	}
	if err := stop(); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}

	if body["secret"] != "s3cret" || body["code"] != "ROOM42" {
		t.Errorf("payload auth fields = %v / %v", body["secret"], body["code"])
	}
	quiz, ok := body["quizData"].(map[string]any)
	if !ok {
		t.Fatalf("quizData missing from payload: %v", body)
	}
	if quiz["question"] != "What is the capital of Finland?" {
		t.Errorf("question = %v", quiz["question"])
	}
	answers, _ := quiz["answers"].([]any)
	if len(answers) != 4 {
		t.Fatalf("answers = %v, want 4 entries", answers)
	}
	idx := int(quiz["correctAnswerIdx"].(float64))
	if answers[idx] != "Helsinki" {
		t.Errorf("answers[%d] = %v, want Helsinki", idx, answers[idx])
	}

	if got := analyzer.RelevanceCalls; len(got) != 1 || got[0].Themes[0] != "geography" {
		t.Errorf("RelevanceCalls = %+v", got)
	}
	if got := a.Pipeline().Transcript().Snapshot(); got != "" {
		t.Errorf("transcript = %q after dispatch, want empty", got)
	}
}

func TestRunDropsIrrelevantQuestion(t *testing.T) {
	transcriber := &transcribemock.Transcriber{Text: "should we order pizza after class"}
	analyzer := &analysismock.Provider{
		Extraction: analysis.Extraction{Found: true, Question: "Should we order pizza?"},
		Relevant:   false,
	}
	deliverer := &recordingDeliverer{}
	src := &audiomock.Source{Frames: utterance(0, 1)}

	a, err := New(testConfig("https://quiz.invalid"), &Providers{Transcriber: transcriber, Analyzer: analyzer},
		WithSource(src), WithDeliverer(deliverer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := runApp(t, a)

	waitFor(t, func() bool {
		_, relevance, _ := analyzer.CallCounts()
		return relevance == 1
	})
	if err := stop(); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}

	if got := deliverer.delivered(); len(got) != 0 {
		t.Errorf("delivered %d questions for an irrelevant one, want 0", len(got))
	}
	if len(analyzer.OptionsCalls) != 0 {
		t.Errorf("OptionsCalls = %d, want 0", len(analyzer.OptionsCalls))
	}
}

func TestRunAccumulatesTranscriptAcrossSegments(t *testing.T) {
	transcriber := &transcribemock.Transcriber{
		Texts: []string{"the capital of finland", "is what exactly"},
	}
	analyzer := &analysismock.Provider{
		Extractions: []analysis.Extraction{
			{Found: false},
			{Found: true, Question: "What is the capital of Finland?"},
		},
		Relevant: true,
		Options: analysis.OptionSet{
			Correct:   "Helsinki",
			Incorrect: []string{"Oslo", "Stockholm", "Tallinn"},
		},
	}
	deliverer := &recordingDeliverer{}

	frames := utterance(0, 1)
	frames = append(frames, utterance(10*time.Second, 1)...)
	src := &audiomock.Source{Frames: frames}

	a, err := New(testConfig("https://quiz.invalid"), &Providers{Transcriber: transcriber, Analyzer: analyzer},
		WithSource(src), WithDeliverer(deliverer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := runApp(t, a)

	waitFor(t, func() bool { return len(deliverer.delivered()) == 1 })
	if err := stop(); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}

	if len(analyzer.ExtractCalls) != 2 {
		t.Fatalf("ExtractCalls = %d, want 2", len(analyzer.ExtractCalls))
	}
	second := analyzer.ExtractCalls[1].Transcript
	if !strings.Contains(second, "the capital of finland") || !strings.Contains(second, "is what exactly") {
		t.Errorf("second extraction transcript = %q, want both utterances", second)
	}
}

func TestRunReturnsErrorWhenCaptureFails(t *testing.T) {
	src := &audiomock.Source{StartError: errors.New("no capture device")}

	a, err := New(testConfig("https://quiz.invalid"),
		&Providers{Transcriber: &transcribemock.Transcriber{}, Analyzer: &analysismock.Provider{}},
		WithSource(src), WithDeliverer(&recordingDeliverer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run = nil, want capture start error")
	}
}

func TestNewRequiresProviders(t *testing.T) {
	if _, err := New(testConfig("https://quiz.invalid"), nil); err == nil {
		t.Error("New(nil providers) = nil error")
	}
	if _, err := New(testConfig("https://quiz.invalid"), &Providers{}); err == nil {
		t.Error("New(empty providers) = nil error")
	}
}

func TestApplyDiff(t *testing.T) {
	level := &slog.LevelVar{}
	a, err := New(testConfig("https://quiz.invalid"),
		&Providers{Transcriber: &transcribemock.Transcriber{}, Analyzer: &analysismock.Provider{}},
		WithSource(&audiomock.Source{}), WithDeliverer(&recordingDeliverer{}), WithLogLevel(level))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a.ApplyDiff(config.ConfigDiff{
		ThemesChanged:   true,
		NewThemes:       []string{"history"},
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
	})

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", got)
	}
}

func TestAdminServerRoutes(t *testing.T) {
	cfg := testConfig("https://quiz.invalid")
	cfg.Server.ListenAddr = "127.0.0.1:0"

	a, err := New(cfg,
		&Providers{Transcriber: &transcribemock.Transcriber{}, Analyzer: &analysismock.Provider{}},
		WithSource(&audiomock.Source{}), WithDeliverer(&recordingDeliverer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.server == nil {
		t.Fatal("admin server not built despite listen_addr")
	}

	for _, tt := range []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
	} {
		req := httptest.NewRequest("GET", tt.path, nil)
		rec := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
