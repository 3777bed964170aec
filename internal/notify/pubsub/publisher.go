// Package pubsub implements a Google Cloud Pub/Sub change-event publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/agriveille/prefecture-crawler/internal/logging"
	"go.uber.org/zap"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Publisher around an existing topic handle. The caller keeps
// ownership of the client.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Connect builds a Pub/Sub client for the project and verifies the topic
// exists, failing fast on startup misconfiguration.
func Connect(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil || !ok {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("failed to close pubsub client after topic check", zap.Error(closeErr))
		}
		if err != nil {
			return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish marshals the payload to JSON and publishes it. The topic argument is
// ignored; the destination is fixed at construction.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client when owned.
func (p *Publisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			logging.L.Warn("failed to close pubsub client", zap.Error(err))
		}
	}
}
