// Package stripe wraps the Stripe API calls the service makes.
package stripe

import (
	"go.uber.org/zap"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
)

type Client struct {
	api *client.API
	log *zap.Logger
}

func New(secretKey string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: client.New(secretKey, nil), log: log}
}

// NewWithURL points every call at baseURL. Tests use it with an httptest
// server standing in for Stripe.
func NewWithURL(secretKey, baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	api := client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{api: api, log: log}
}
