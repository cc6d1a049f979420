package imagegen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollinationsURL(t *testing.T) {
	p := NewPollinations(Config{BaseURL: "https://img.test/", Seed: func() string { return "42" }})
	assert.Equal(t,
		"https://img.test/prompt/a%20red%20fox?height=1024&nologo=true&seed=42&width=1024",
		p.URL("a red fox"))
}

func TestPollinationsGenerateReturnsDataURI(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	p := NewPollinations(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	uri, err := p.Generate(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, "/prompt/a%20red%20fox", gotPath)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", uri)
}

func TestPollinationsGenerateDefaultsToJPEG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0xff, 0xd8})
	}))
	defer srv.Close()

	p := NewPollinations(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	uri, err := p.Generate(context.Background(), "fox")
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", uri)
}

func TestPollinationsGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPollinations(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := p.Generate(context.Background(), "fox")
	require.Error(t, err)

	_, err = p.Generate(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestPollinationsGenerateTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewPollinations(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), Timeout: 30 * time.Millisecond})
	_, err := p.Generate(context.Background(), "fox")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
