package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubQueue publishes directory messages to a Google Cloud Pub/Sub
// topic. Publish results are awaited so failures surface to the caller;
// the crawl loop absorbs them as recoverable listener errors.
type PubSubQueue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubQueue creates a Pub/Sub client and verifies the topic exists.
// Authentication uses Application Default Credentials.
func NewPubSubQueue(ctx context.Context, projectID, topicID string) (*PubSubQueue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubQueue{client: client, topic: topic}, nil
}

// Enqueue marshals the message to JSON and publishes it, waiting for the
// server acknowledgement.
func (q *PubSubQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal directory message: %w", err)
	}

	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"action": string(msg.Action)},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish directory message: %w", err)
	}
	return nil
}

// Close stops the topic publisher and closes the client connection.
func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
