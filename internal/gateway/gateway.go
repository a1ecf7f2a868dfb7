package gateway

import (
	"context"

	"github.com/rahul/aitester/internal/agent"
)

// Messenger defines the interface for chat gateways.
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx ends.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner executes one instruction as a full session.
type Runner interface {
	Run(ctx context.Context, instruction string) (*agent.Session, error)
}
