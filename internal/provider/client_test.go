package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAddresses(t *testing.T) {
	var gotBody webhookAddressRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", time.Second)
	err := client.AppendAddresses(context.Background(), "wh-1", []string{"K1", "K2"})
	require.NoError(t, err)
	assert.Equal(t, "wh-1", gotBody.WebhookID)
	assert.Equal(t, []string{"K1", "K2"}, gotBody.AccountAddresses)
}

func TestGetAllWebhookAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(webhook{WebhookID: "wh-1", AccountAddresses: []string{"K1"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	addrs, err := client.GetAllWebhookAddresses(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"K1"}, addrs)
}

func TestDoJSONReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	err := client.AppendAddresses(context.Background(), "wh-1", []string{"K1"})
	require.Error(t, err)
}
