package core

import (
	"context"

	"power-service/internal/types"
)

// MessagingClient defines the Redis operations PowerSystem needs, so tests
// can substitute a mock.
type MessagingClient interface {
	Connect() error
	StartListening() error
	Close() error

	PublishPowerState(state types.State, alarm bool) error
	PublishVersionInfo(version string) error

	// Policy config store (config.Store)
	GetConfigField(ctx context.Context, field string) (string, error)
	SetConfigField(ctx context.Context, field, value string) error
}
