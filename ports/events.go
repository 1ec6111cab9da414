package ports

import (
	"context"

	"github.com/layer-3/evmauth/core"
)

// EventPublisher publishes access decisions for auditing
type EventPublisher interface {
	PublishDecision(ctx context.Context, decision core.Decision) error
}
