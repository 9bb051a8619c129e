package chathub

import (
	"context"

	"pairlive/backend/internal/models"
)

// Client is one realtime connection registered with the hub.
type Client interface {
	// GetUserID returns the user the connection is authenticated as.
	GetUserID() string
	// GetSendChannel returns the channel the hub writes outbound events to.
	GetSendChannel() chan<- models.Event
	// Run starts the connection's read and write pumps.
	Run()
	// Close stops the write pump. Safe to call more than once.
	Close()
}

// EventHandler consumes the inbound events of one connection.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev models.Event)
	HandleDisconnect(ctx context.Context)
}
