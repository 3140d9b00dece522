package mlscorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScoreReturnsProbabilityOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scoreResponse{Probability: 0.73})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	got := client.Score(context.Background(), "K1", "M1", "buy", 10, 1, time.Now())
	assert.Equal(t, 0.73, got)
}

func TestScoreFailsSafeOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	got := client.Score(context.Background(), "K1", "M1", "buy", 10, 1, time.Now())
	assert.Equal(t, 0.0, got)
}

func TestScoreFailsSafeWhenDisabled(t *testing.T) {
	client := NewClient("", time.Second)
	got := client.Score(context.Background(), "K1", "M1", "buy", 10, 1, time.Now())
	assert.Equal(t, 0.0, got)
}

func TestScoreFailsSafeOnOutOfRangeProbability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scoreResponse{Probability: 1.5})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	got := client.Score(context.Background(), "K1", "M1", "buy", 10, 1, time.Now())
	assert.Equal(t, 0.0, got)
}
