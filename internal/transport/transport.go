// internal/transport/transport.go
package transport

import (
	"context"
	"fmt"

	"campaign-workers/internal/common/config"
	"campaign-workers/internal/common/logger"
)

// Result reports a successful delivery.
type Result struct {
	MessageID string `json:"messageId"`
	Provider  string `json:"provider"`
}

// Transport sends one email via an external mail relay. A failed send is a
// per-recipient outcome: the worker records it on the item and moves on, it
// never aborts the job.
type Transport interface {
	SendEmail(ctx context.Context, to, subject, html string) (*Result, error)
}

// New builds the configured transport implementation.
func New(ctx context.Context, cfg config.TransportConfig, log logger.Logger) (Transport, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPTransport(cfg, log), nil
	case "ses":
		return NewSESTransport(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Provider)
	}
}
