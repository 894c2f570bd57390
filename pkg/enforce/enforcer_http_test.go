package enforce_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisauth/aegis/pkg/enforce"
	"github.com/aegisauth/aegis/pkg/pdp"
)

// TestEnforcer_AgainstHTTPPDP exercises the whole chain, from registry
// resolution and context assembly through the real HTTP transport, against a fake
// PDP.
func TestEnforcer_AgainstHTTPPDP(t *testing.T) {
	t.Parallel()

	var got pdp.Query
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/allowed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"allow": true}`))
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	client := pdp.NewClient(server.URL, pdp.WithToken("sdk-token"))
	e := enforce.New(taskRegistry(t), client)

	allowed := e.IsAllowed(context.Background(), "user1", "retrieve", "/api/v1/boards/2/tasks/3")
	assert.True(t, allowed)

	assert.Equal(t, "user1", got.User.Key)
	assert.Equal(t, "retrieve", got.Action)
	assert.Equal(t, "task", got.Resource.Type)
	assert.Equal(t, "2", got.Resource.Context["list_id"])
	assert.Equal(t, "3", got.Resource.Context["task_id"])
}

// TestEnforcer_PDPDownFailsClosed checks the boolean contract under a dead
// transport: no panic, no error, a deterministic deny.
func TestEnforcer_PDPDownFailsClosed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := pdp.NewClient(server.URL)
	e := enforce.New(taskRegistry(t), client)

	assert.False(t, e.IsAllowed(context.Background(), "user1", "retrieve", "/api/v1/boards/2/tasks/3"))
}

func TestEnforcer_PDPDownFailsOpen(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := pdp.NewClient(server.URL)
	e := enforce.New(taskRegistry(t), client, enforce.WithFailPolicy(enforce.FailOpen))

	decision := e.Check(context.Background(), "user1", "retrieve", enforce.ByName("task"), nil)
	assert.True(t, decision.Allowed)
	assert.Equal(t, enforce.SourceFailPolicy, decision.Source)
	assert.ErrorIs(t, decision.Err, pdp.ErrUnavailable)
}
