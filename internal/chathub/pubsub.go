package chathub

import (
	"context"
	"encoding/json"

	"pairlive/backend/internal/models"

	"go.uber.org/zap"
)

// StartPubSubListener subscribes to the broker and feeds every envelope into
// DeliverCh. It returns once the subscription is confirmed.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	pubsub := m.Broker.SubscribeEvents(ctx)
	if _, err := pubsub.Receive(ctx); err != nil {
		m.Logger.Error("failed to subscribe to realtime events", zap.Error(err))
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env models.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					m.Logger.Warn("dropping malformed realtime envelope", zap.Error(err))
					continue
				}
				select {
				case m.DeliverCh <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}
