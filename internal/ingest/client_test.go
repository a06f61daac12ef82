package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONHandles500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), "test", srv.URL, &out)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue), "expected UpstreamError, got %v", err)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.Equal(t, "test", ue.Source)
	assert.Contains(t, ue.Body, "internal error")
}

func TestGetJSONHandles404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), "test", srv.URL, &out)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
}

func TestGetJSONHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), NewHTTPClient(200*time.Millisecond), "test", srv.URL, &out)
	require.Error(t, err)

	var ue *UpstreamError
	assert.False(t, errors.As(err, &ue), "timeout is a transport error, not an upstream status")
}

func TestGetJSONEmptyURL(t *testing.T) {
	var out map[string]any
	err := getJSON(context.Background(), NewHTTPClient(time.Second), "test", "", &out)
	assert.Error(t, err)
}

func TestPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := postJSON(context.Background(), NewHTTPClient(time.Second), "test", srv.URL, map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestDoJSONMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := getJSON(context.Background(), NewHTTPClient(time.Second), "test", srv.URL, &out)
	assert.ErrorContains(t, err, "decode response")
}
