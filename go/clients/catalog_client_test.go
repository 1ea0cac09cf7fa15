package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogClient_KnownGames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/games", r.URL.Path)
		assert.Equal(t, "wordle,mini,retired", r.URL.Query().Get("ids"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"games":[
			{"id":"wordle","name":"Wordle","active":true},
			{"id":"retired","name":"Old game","active":false}
		]}`))
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL+"/", "secret")
	known, err := client.KnownGames(context.Background(), []string{"wordle", "mini", "retired"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"wordle": true}, known)
}

func TestCatalogClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewCatalogClient(srv.URL, "").GetGames(context.Background(), []string{"wordle"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "maintenance")
}

func TestCatalogClient_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewCatalogClient(srv.URL, "").GetGames(context.Background(), []string{"wordle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}
