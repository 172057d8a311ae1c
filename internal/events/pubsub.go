// Package events publishes run lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// RunCompleted is the payload published when a crawl run finishes.
type RunCompleted struct {
	RunID         string `json:"run_id"`
	LocationQuery string `json:"location_query"`
	Status        string `json:"status"`
	TotalSeen     int    `json:"total_seen"`
	WithMenuURL   int    `json:"with_menu_url"`
	CompletedAt   string `json:"completed_at"`
}

// PubSubPublisher publishes JSON payloads to Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPubSub creates a PubSubPublisher over an existing client.
func NewPubSub(client *pubsub.Client) (*PubSubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish marshals the payload to JSON and publishes it to the topic,
// blocking until the server acknowledges.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.client.Topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
