package llmutils

import (
	"net/http"
	"time"

	"github.com/ghiac/vaultcoach/model"
	"github.com/sashabaranov/go-openai"
)

// UserIDHeader carries the calling athlete's id to the model gateway so
// usage can be attributed per user
const UserIDHeader = "X-User-ID"

// userIDTransport adds UserIDHeader from the request context
type userIDTransport struct {
	next http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *userIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if userID, ok := model.GetUserIDFromContext(req.Context()); ok {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set(UserIDHeader, userID)
	}
	return t.next.RoundTrip(req)
}

// WithUserIDHeader returns a copy of base whose requests carry UserIDHeader
func WithUserIDHeader(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}

	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}

	return &http.Client{
		Transport:     &userIDTransport{next: next},
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
}

// ClientConfig configures the OpenAI-compatible chat client
type ClientConfig struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single completion request; zero means no limit
	Timeout time.Duration
	// HTTPClient is an optional base client (proxy, custom TLS)
	HTTPClient *http.Client
}

// NewOpenAIClient creates a client that tags every request with the user id
// found in its context
func NewOpenAIClient(cfg ClientConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	config.HTTPClient = WithUserIDHeader(base)

	return openai.NewClientWithConfig(config)
}
