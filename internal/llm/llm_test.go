package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/autograder/internal/analysis"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{"plain", `{"quality_score":0.8,"recognized_concepts":["x"],"detected_errors":[],"pedagogical_level":"apply"}`, 0.8, false},
		{"fenced", "```json\n{\"quality_score\":0.5}\n```", 0.5, false},
		{"bare fence", "```\n{\"quality_score\":0.25}\n```", 0.25, false},
		{"not json", "I think it deserves 8/10", 0, true},
		{"score out of range", `{"quality_score":8}`, 0, true},
		{"empty object", `{}`, 0, true},
		{"null", `null`, 0, true},
		{"score under another name", `{"score":0.9}`, 0, true},
		{"zero score", `{"quality_score":0}`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReport(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, analysis.ErrMalformedReport) {
					t.Fatalf("parseReport() error = %v, want ErrMalformedReport", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReport() error = %v", err)
			}
			if got.QualityScore != tt.want {
				t.Errorf("QualityScore = %v, want %v", got.QualityScore, tt.want)
			}
		})
	}
}

// fakeOpenAI serves the two endpoints the client uses.
func fakeOpenAI(t *testing.T, content string, prompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var req struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 && prompt != nil {
				*prompt = req.Messages[0].Content
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyze(t *testing.T) {
	var prompt string
	srv := fakeOpenAI(t, `{"quality_score":0.9,"recognized_concepts":["goroutines"],"detected_errors":["no channels"],"pedagogical_level":"understand"}`, &prompt)
	c := New(srv.URL+"/v1", "test-key", "test-model")

	rep, err := c.Analyze(context.Background(), analysis.ServiceRequest{
		Text:            "Goroutines are lightweight threads",
		PromptContext:   "What is a goroutine?",
		Rubric:          "Be precise",
		ReferenceAnswer: "A function running concurrently",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if rep.QualityScore != 0.9 || rep.PedagogicalLevel != "understand" {
		t.Errorf("unexpected report %+v", rep)
	}
	if len(rep.DetectedErrors) != 1 || rep.DetectedErrors[0] != "no channels" {
		t.Errorf("DetectedErrors = %v", rep.DetectedErrors)
	}
	for _, want := range []string{"What is a goroutine?", "Be precise", "A function running concurrently", "Goroutines are lightweight threads"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestAnalyzeMalformedContent(t *testing.T) {
	srv := fakeOpenAI(t, "great answer!", nil)
	c := New(srv.URL+"/v1", "test-key", "test-model")

	_, err := c.Analyze(context.Background(), analysis.ServiceRequest{Text: "x", PromptContext: "q"})
	if !errors.Is(err, analysis.ErrMalformedReport) {
		t.Errorf("Analyze() error = %v, want ErrMalformedReport", err)
	}
}

func TestPing(t *testing.T) {
	srv := fakeOpenAI(t, "", nil)
	if err := New(srv.URL+"/v1", "k", "m").Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	if err := New(down.URL+"/v1", "k", "m").Ping(context.Background()); err == nil {
		t.Error("Ping() should fail against a failing server")
	}
}
