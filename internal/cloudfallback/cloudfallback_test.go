package cloudfallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"lighthouse/internal/domain"
)

func TestAnalyze_FirstProviderWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(providerPayload{Concern: "high", Confidence: 0.9, Description: "fall detected"})
	}))
	defer srv.Close()

	c := New([]Provider{{Name: "primary", BaseURL: srv.URL}}, logrus.New())
	result, err := c.Analyze(context.Background(), "prompt", []byte("frame"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Concern != domain.ConcernHigh {
		t.Fatalf("expected high concern, got %s", result.Concern)
	}
}

func TestAnalyze_SkipsFailingProvider(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(providerPayload{Concern: "critical", Confidence: 0.95})
	}))
	defer good.Close()

	c := New([]Provider{{Name: "bad", BaseURL: bad.URL}, {Name: "good", BaseURL: good.URL}}, logrus.New())
	result, err := c.Analyze(context.Background(), "prompt", []byte("frame"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.ModelName != "good" {
		t.Fatalf("expected good provider to win, got %s", result.ModelName)
	}
}

func TestAnalyze_AllProvidersFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	c := New([]Provider{{Name: "bad", BaseURL: bad.URL}}, logrus.New())
	if _, err := c.Analyze(context.Background(), "prompt", []byte("frame")); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestAnalyze_ParseErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New([]Provider{{Name: "broken", BaseURL: srv.URL}}, logrus.New())
	result, err := c.Analyze(context.Background(), "prompt", []byte("frame"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Concern != domain.ConcernLow || result.Text != "parse error" {
		t.Fatalf("expected degraded low-concern parse-error result, got %+v", result)
	}
}
