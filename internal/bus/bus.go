// Package bus is the cross-instance fanout fabric. A gateway instance
// publishes room events here and re-delivers whatever it receives to its own
// local sockets only, so no instance ever talks to another directly.
package bus

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrBusUnavailable = errors.New("event bus unavailable")

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope wraps an Event with the connection id it originated from.
// Receiving gateways suppress delivery back to that connection; events
// published by workers carry an empty Origin.
type Envelope struct {
	Event  Event  `json:"event"`
	Origin string `json:"origin,omitempty"`
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

type Subscription interface {
	// Events is closed when the subscription is closed.
	Events() <-chan Envelope
	Close() error
}

type Bus interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}
