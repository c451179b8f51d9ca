package service

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher(retries int) *Fetcher {
	return NewFetcher(FetchOptions{
		Timeout:        5 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	}, nil)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Header().Set("Content-Type", "application/xml; charset=utf-8")
			w.Write([]byte("<uscDoc/>"))
		}
	}))
	defer srv.Close()

	body, contentType, err := testFetcher(3).Fetch(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<uscDoc/>", string(body))
	assert.Equal(t, "application/xml; charset=utf-8", contentType)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := testFetcher(2).Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, _, err := testFetcher(3).Fetch(t.Context(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(FetchOptions{Timeout: time.Second, MaxRetries: 1, Delay: 50 * time.Millisecond}, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, _, err := f.Fetch(t.Context(), srv.URL)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
