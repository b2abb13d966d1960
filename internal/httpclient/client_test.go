package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_ReturnsErrorForFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := NewDefaultClient().Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)})
	require.Error(t, err)

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "down", string(httpErr.Response))
	assert.True(t, httpErr.Retryable())
	assert.True(t, ierr.IsHTTPClient(err))
}

func TestSend_DoesNotFollowRedirectsWhenDisabled(t *testing.T) {
	var followed atomic.Bool
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed.Store(true)
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: time.Second})
	resp, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.False(t, followed.Load())
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: 20 * time.Millisecond})
	_, err := client.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)

	_, isHTTP := IsHTTPError(err)
	assert.False(t, isHTTP)
	assert.True(t, ierr.IsHTTPClient(err))
}
