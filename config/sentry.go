package config

// SentryConfig enables error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN              string            `json:"dsn"`
	Environment      string            `json:"environment"`
	Release          string            `json:"release"`
	TracesSampleRate float64           `json:"traces_sample_rate"`
	Tags             map[string]string `json:"tags"`
}

func (c *SentryConfig) SetDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
}
