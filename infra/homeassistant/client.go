// Package homeassistant drives devices through the Home Assistant REST API.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/infra/logger"
)

// Config holds the Home Assistant connection settings.
type Config struct {
	URL        string `json:"url"`
	Token      string `json:"token"`
	TimeoutSec int    `json:"timeout_sec"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 10
	}
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("homeassistant.url is required")
	}
	if c.Token == "" {
		return fmt.Errorf("homeassistant.token is required")
	}
	return nil
}

// Client implements actions.Actuator over the REST API with a long lived
// access token.
type Client struct {
	base string
	http *http.Client
	log  logger.Logger
}

// New creates a Client. The token is sent as a bearer token on every request.
func New(cfg Config) *Client {
	cfg.SetDefaults()
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = time.Duration(cfg.TimeoutSec) * time.Second
	return &Client{base: strings.TrimSuffix(cfg.URL, "/"), http: hc, log: logger.New("homeassistant")}
}

type entityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// State returns the state of an entity, or one of its attributes when
// attribute is set. Unknown and unavailable states are reported as
// actions.ErrStateUnavailable.
func (c *Client) State(ctx context.Context, entityID, attribute string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/states/"+entityID, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", actions.ErrStateUnavailable, entityID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %s: status %d", actions.ErrStateUnavailable, entityID, resp.StatusCode)
	}
	var st entityState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("decode state %s: %w", entityID, err)
	}
	if attribute != "" {
		v, ok := st.Attributes[attribute]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: %s has no attribute %s", actions.ErrStateUnavailable, entityID, attribute)
		}
		return fmt.Sprint(v), nil
	}
	switch st.State {
	case "unknown", "unavailable", "":
		return "", fmt.Errorf("%w: %s is %q", actions.ErrStateUnavailable, entityID, st.State)
	}
	return st.State, nil
}

// CallService calls a service given as "domain/service".
func (c *Client) CallService(ctx context.Context, service string, data map[string]any) error {
	domain, name, ok := strings.Cut(service, "/")
	if !ok {
		domain, name, ok = strings.Cut(service, ".")
	}
	if !ok || domain == "" || name == "" {
		return fmt.Errorf("invalid service %q", service)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/services/%s/%s", c.base, domain, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", service, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: status %d", service, resp.StatusCode)
	}
	c.log.Debugw("service called", map[string]any{"service": service, "data": data})
	return nil
}
