// Package prices fetches day-ahead prices and turns them into a slotted
// price horizon.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/infra/logger"
)

// Config configures the price client.
type Config struct {
	URL  string `json:"url"`
	Area string `json:"area"`
	// File reads prices from a local JSON document instead of URL.
	File string `json:"file"`
	// PerMWh divides the upstream prices by 1000.
	PerMWh       bool   `json:"per_mwh"`
	Timezone     string `json:"timezone"`
	SlotMinutes  int    `json:"slot_minutes"`
	LockMinutes  int    `json:"lock_minutes"`
	HorizonHours int    `json:"horizon_hours"`
	APIKey       string `json:"api_key"`
	TokenURL     string `json:"token_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TimeoutSec   int    `json:"timeout_sec"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = int(model.DefaultSlotDuration / time.Minute)
	}
	if c.LockMinutes <= 0 {
		c.LockMinutes = 120
	}
	if c.HorizonHours <= 0 {
		c.HorizonHours = 48
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 15
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" && c.File == "" {
		return fmt.Errorf("prices.url or prices.file is required")
	}
	if c.ClientID != "" && c.TokenURL == "" {
		return fmt.Errorf("prices.token_url is required with client_id")
	}
	if c.SlotMinutes > 0 && 60%c.SlotMinutes != 0 && c.SlotMinutes%60 != 0 {
		return fmt.Errorf("prices.slot_minutes must divide or be a multiple of an hour")
	}
	return nil
}

// Point is one upstream price interval.
type Point struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price"`
}

type response struct {
	Prices []Point `json:"prices"`
}

// Client implements planner.PriceSource.
type Client struct {
	cfg  Config
	loc  *time.Location
	http *http.Client
	log  logger.Logger
}

// New creates a Client. Client credentials take precedence over an API key.
func New(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("prices timezone: %w", err)
	}
	ctx := context.Background()
	var hc *http.Client
	switch {
	case cfg.ClientID != "":
		cc := clientcredentials.Config{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret, TokenURL: cfg.TokenURL}
		hc = cc.Client(ctx)
	case cfg.APIKey != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}))
	default:
		hc = &http.Client{}
	}
	hc.Timeout = time.Duration(cfg.TimeoutSec) * time.Second
	return &Client{cfg: cfg, loc: loc, http: hc, log: logger.New("prices")}, nil
}

// Horizon returns the prices from the slot containing now onwards. The
// series stops at the first slot without a price.
func (c *Client) Horizon(ctx context.Context, now time.Time) (model.PriceHorizon, error) {
	slot := time.Duration(c.cfg.SlotMinutes) * time.Minute
	start := now.In(c.loc).Truncate(slot)
	end := start.Add(time.Duration(c.cfg.HorizonHours) * time.Hour)

	points, err := c.fetch(ctx, start, end)
	if err != nil {
		return model.PriceHorizon{}, fmt.Errorf("%w: %v", planner.ErrNoPrices, err)
	}
	prices := Expand(points, start, end, slot)
	if len(prices) == 0 {
		return model.PriceHorizon{}, fmt.Errorf("%w: no price for %s", planner.ErrNoPrices, start.Format(time.RFC3339))
	}
	if c.cfg.PerMWh {
		for i := range prices {
			prices[i] /= 1000
		}
	}
	lock := model.SlotsFor(time.Duration(c.cfg.LockMinutes)*time.Minute, slot)
	lock = min(lock, len(prices))
	c.log.Infof("received %d price slots from %s", len(prices), start.Format(time.RFC3339))
	return model.PriceHorizon{Start: start, SlotDuration: slot, Prices: prices, LockEndSlot: lock}, nil
}

func (c *Client) fetch(ctx context.Context, start, end time.Time) ([]Point, error) {
	var body io.ReadCloser
	if c.cfg.File != "" {
		f, err := os.Open(c.cfg.File)
		if err != nil {
			return nil, err
		}
		body = f
	} else {
		q := url.Values{}
		q.Set("start", start.UTC().Format(time.RFC3339))
		q.Set("end", end.UTC().Format(time.RFC3339))
		if c.cfg.Area != "" {
			q.Set("area", c.cfg.Area)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("price api status %d", resp.StatusCode)
		}
		body = resp.Body
	}
	defer func() { _ = body.Close() }()
	var r response
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	return r.Prices, nil
}

// Expand maps price intervals onto consecutive slots starting at start. A
// point without End covers one hour. Expansion stops at the first
// uncovered slot or at end.
func Expand(points []Point, start, end time.Time, slot time.Duration) []float64 {
	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	var out []float64
	j := 0
	for t := start; t.Before(end); t = t.Add(slot) {
		for j < len(sorted) && !pointEnd(sorted[j]).After(t) {
			j++
		}
		if j >= len(sorted) || sorted[j].Start.After(t) {
			break
		}
		out = append(out, sorted[j].Price)
	}
	return out
}

func pointEnd(p Point) time.Time {
	if p.End.IsZero() {
		return p.Start.Add(time.Hour)
	}
	return p.End
}
