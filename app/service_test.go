package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/config"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/infra/prices"
	"github.com/kilianp07/flexplan/infra/store"
)

type haStub struct {
	mu    sync.Mutex
	calls []string
}

func (h *haStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls = append(h.calls, r.Method+" "+r.URL.Path)
	h.mu.Unlock()
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(map[string]any{"state": "off", "attributes": map[string]any{}})
		return
	}
	_, _ = w.Write([]byte("[]"))
}

func writePrices(t *testing.T, from time.Time, hours int) string {
	t.Helper()
	var doc struct {
		Prices []prices.Point `json:"prices"`
	}
	for i := 0; i < hours; i++ {
		doc.Prices = append(doc.Prices, prices.Point{Start: from.Add(time.Duration(i) * time.Hour), Price: float64(i%6) / 10})
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTestService(t *testing.T, pricePath string, opts ...func(*config.Config)) (*Service, *haStub) {
	t.Helper()
	ha := &haStub{}
	srv := httptest.NewServer(ha)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.HomeAssistant.URL = srv.URL
	cfg.HomeAssistant.Token = "token"
	cfg.Prices.File = pricePath
	cfg.Prices.Timezone = "UTC"
	cfg.Store.Type = "memory"
	cfg.Archive.Backend = "none"
	cfg.Devices = []model.Device{{
		Name:  "wp",
		Type:  model.DeviceHeatPump,
		Start: model.ActionSet{Entity: []model.EntityAction{{Service: "switch/turn_on", EntityID: "switch.wp"}}},
		Stop:  model.ActionSet{Entity: []model.EntityAction{{Service: "switch/turn_off", EntityID: "switch.wp"}}},
	}}
	for _, o := range opts {
		o(cfg)
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Actions.Reschedule(context.Background(), nil)
		_ = svc.Close()
	})
	return svc, ha
}

func TestServiceRefreshSchedulesActions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	svc, _ := newTestService(t, writePrices(t, now, 24))
	ctx := context.Background()

	out := svc.Refresh(ctx)
	require.Equal(t, model.StatusOK, out.Status, "err: %v", out.Err)
	require.NotEmpty(t, out.Value.Entries)

	plan, ok, err := svc.Optimizer.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.Value.Revision, plan.Revision)
	assert.Greater(t, svc.Reschedule(ctx), 0)
}

func TestServiceRefreshWithoutPrices(t *testing.T) {
	stale := time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Hour)
	svc, _ := newTestService(t, writePrices(t, stale, 24))
	ctx := context.Background()

	out := svc.Refresh(ctx)
	assert.Equal(t, model.StatusDataUnavailable, out.Status)
	assert.ErrorIs(t, out.Err, planner.ErrNoPrices)
	assert.NoError(t, svc.refreshJob(ctx))
	assert.NoError(t, svc.batteryJob(ctx))

	_, err := svc.Verify(ctx)
	assert.ErrorIs(t, err, planner.ErrNoPlan)
	assert.NoError(t, svc.verifyJob(ctx))
}

func TestServiceVerifyCorrectsDevices(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	svc, ha := newTestService(t, writePrices(t, now, 24))
	ctx := context.Background()
	require.Equal(t, model.StatusOK, svc.Refresh(ctx).Status)

	sum, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)

	ha.mu.Lock()
	defer ha.mu.Unlock()
	assert.NotEmpty(t, ha.calls)
}

func TestServiceSQLiteBackendArchivesPlans(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	dbPath := filepath.Join(t.TempDir(), "flexplan.db")
	svc, _ := newTestService(t, writePrices(t, now, 24), func(c *config.Config) {
		c.Store.Type = "sqlite"
		c.Store.Conf = map[string]any{"path": dbPath}
		c.Archive.Backend = "sqlite"
	})
	ctx := context.Background()

	require.NoError(t, svc.refreshJob(ctx))
	require.NoError(t, svc.refreshJob(ctx))
	plans, err := svc.Archive.Query(ctx, store.ArchiveQuery{})
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestStateTopics(t *testing.T) {
	devices := []model.Device{{
		Name:  "boiler",
		Start: model.ActionSet{MQTT: []model.MQTTAction{{Topic: "boiler/set", TopicGet: "boiler/state", Payload: "ON"}}},
		Stop:  model.ActionSet{MQTT: []model.MQTTAction{{Topic: "boiler/set", Payload: "OFF"}}},
	}}
	assert.Equal(t, []string{"boiler/state", "boiler/set"}, stateTopics(devices))
}
