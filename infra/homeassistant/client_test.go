package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/core/actions"
)

var _ actions.Actuator = (*Client)(nil)

func newServer(t *testing.T, calls *[]map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/states/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/states/sensor.soc":
			_, _ = w.Write([]byte(`{"entity_id":"sensor.soc","state":"63.5","attributes":{"unit_of_measurement":"%"}}`))
		case "/api/states/sensor.offline":
			_, _ = w.Write([]byte(`{"entity_id":"sensor.offline","state":"unavailable","attributes":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/api/services/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["_path"] = r.URL.Path
		*calls = append(*calls, body)
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientState(t *testing.T) {
	var calls []map[string]any
	srv := newServer(t, &calls)
	c := New(Config{URL: srv.URL + "/", Token: "secret"})
	ctx := context.Background()

	v, err := c.State(ctx, "sensor.soc", "")
	require.NoError(t, err)
	assert.Equal(t, "63.5", v)

	unit, err := c.State(ctx, "sensor.soc", "unit_of_measurement")
	require.NoError(t, err)
	assert.Equal(t, "%", unit)

	_, err = c.State(ctx, "sensor.offline", "")
	assert.True(t, errors.Is(err, actions.ErrStateUnavailable))

	_, err = c.State(ctx, "sensor.missing", "")
	assert.True(t, errors.Is(err, actions.ErrStateUnavailable))
}

func TestClientStateUnauthorized(t *testing.T) {
	var calls []map[string]any
	srv := newServer(t, &calls)
	c := New(Config{URL: srv.URL, Token: "wrong"})
	_, err := c.State(context.Background(), "sensor.soc", "")
	assert.Error(t, err)
}

func TestClientCallService(t *testing.T) {
	var calls []map[string]any
	srv := newServer(t, &calls)
	c := New(Config{URL: srv.URL, Token: "secret"})

	err := c.CallService(context.Background(), "switch/turn_on", map[string]any{"entity_id": "switch.boiler"})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/services/switch/turn_on", calls[0]["_path"])
	assert.Equal(t, "switch.boiler", calls[0]["entity_id"])

	assert.Error(t, c.CallService(context.Background(), "bogus", nil))
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{URL: "http://ha"}.Validate())
	assert.NoError(t, Config{URL: "http://ha", Token: "t"}.Validate())
}
