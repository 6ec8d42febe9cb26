package asset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPSource_MissingBaseURL(t *testing.T) {
	_, err := NewHTTPSource("")
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestHTTPSource_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/silence/silence-5s.mp3", r.URL.Path)
		_, _ = w.Write([]byte("frames"))
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL + "/assets")
	require.NoError(t, err)

	data, err := src.Fetch(context.Background(), "silence/silence-5s.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("frames"), data)
}

func TestHTTPSource_Fetch_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), "prompts/missing.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSource_Fetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	data, err := src.Fetch(context.Background(), "tones/open.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_Fetch_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL, WithBaseBackoff(time.Millisecond), WithMaxRetries(2))
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), "tones/open.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSource_Fetch_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), "tones/open.mp3")
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSource_Fetch_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src, err := NewHTTPSource(server.URL, WithBaseBackoff(time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = src.Fetch(ctx, "tones/open.mp3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
