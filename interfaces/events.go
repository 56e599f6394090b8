package interfaces

import (
	"context"

	"github.com/customeros/mailvault/dto"
)

// EventPublisher emits run lifecycle events to external consumers. A nil or
// disabled publisher is valid; callers must treat publishing as best-effort.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event dto.RunEvent) error
	PublishVerificationEvent(ctx context.Context, event dto.VerificationEvent) error
	Close() error
}
