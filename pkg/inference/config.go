package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// Config is shared by every provider. Fields a provider has no use for
// are ignored, e.g. Gemini ignores BaseURL.
type Config struct {
	BaseURL string
	APIKey  string // empty is fine for local servers
	Model   string

	// Used when a ChatRequest leaves them zero.
	MaxTokens   int
	Temperature float64

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient replaces the pooled client built from Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Option func(*Config)

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option { return func(c *Config) { c.Temperature = t } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithRetry sets how many extra attempts follow a throttled or 5xx answer.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig targets OpenAI with short replies suited to speech.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   300,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		MaxRetries:  1,
		RetryDelay:  100 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
