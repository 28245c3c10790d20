package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

const snapshotJSON = `[
	{"extension": ".id", "registration": "Rp100.000", "renewal": "Rp100.000", "transfer": "Rp50.000", "currency": "IDR",
	 "promo": {"registration": "Rp50.000", "start_date": "2024-06-01", "end_date": "2024-06-30", "terms": 2}},
	{"extension": ".com", "registration": 150000, "renewal": "150.000", "transfer": null}
]`

func newTestClient(url string, retries uint64) *Client {
	client := NewClient(url, 2*time.Second, retries, zerolog.Nop())
	client.BaseBackoff = time.Millisecond
	return client
}

func TestClient_FetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "IDR", r.URL.Query().Get("currency"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshotJSON))
	}))
	defer server.Close()

	entries, err := newTestClient(server.URL+"/api/domain-prices?currency=IDR", 0).FetchSnapshot(context.Background())

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".id", entries[0].Extension)
	assert.Equal(t, domain.FlexString("2"), entries[0].Promo.Terms)
	assert.Equal(t, domain.FlexString("150000"), entries[1].Registration)
	assert.True(t, entries[1].Transfer.IsEmpty())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(snapshotJSON))
	}))
	defer server.Close()

	entries, err := newTestClient(server.URL, 3).FetchSnapshot(context.Background())

	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 2).FetchSnapshot(context.Background())

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NonRetryableFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "not found", status: http.StatusNotFound, body: "missing", wantStatus: http.StatusNotFound, wantMsg: "unexpected status"},
		{name: "not json", status: http.StatusOK, body: "<html>oops</html>", wantStatus: http.StatusOK, wantMsg: "invalid JSON response"},
		{name: "empty array", status: http.StatusOK, body: "[]", wantStatus: http.StatusOK, wantMsg: "empty snapshot"},
		{name: "object instead of array", status: http.StatusOK, body: `{"error": "quota"}`, wantStatus: http.StatusOK, wantMsg: "invalid JSON response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, 3).FetchSnapshot(context.Background())

			var fetchErr *domain.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.wantStatus, fetchErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "must not retry")
		})
	}
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(snapshotJSON))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL, 3).FetchSnapshot(ctx)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, context.Canceled)
}
