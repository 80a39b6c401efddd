package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/queue"
)

// NotifyingGateway wraps an object-store gateway and publishes a bucket
// notification for every successful Put and Copy. It stands in for native
// S3 bucket notifications when running against MinIO without event wiring,
// the filesystem backend, or in tests.
type NotifyingGateway struct {
	objectstore.Gateway

	pub   queue.Publisher
	topic string
	log   hclog.Logger
}

// NewNotifyingGateway wraps inner so every write lands on the notification
// topic.
func NewNotifyingGateway(inner objectstore.Gateway, pub queue.Publisher, topic string, log hclog.Logger) *NotifyingGateway {
	return &NotifyingGateway{
		Gateway: inner,
		pub:     pub,
		topic:   topic,
		log:     log.Named("notify-bridge"),
	}
}

// Put writes the object, then publishes its notification. A failed publish
// fails the call: writes whose notifications are lost would stall the
// pipeline, and re-running a Put is idempotent.
func (g *NotifyingGateway) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := g.Gateway.Put(ctx, bucket, key, body, contentType); err != nil {
		return err
	}
	return g.notify(ctx, bucket, key)
}

// Copy copies the object, then publishes a notification for the destination.
func (g *NotifyingGateway) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := g.Gateway.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		return err
	}
	return g.notify(ctx, dstBucket, dstKey)
}

func (g *NotifyingGateway) notify(ctx context.Context, bucket, key string) error {
	payload, err := NewNotification(bucket, key).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode notification for %s/%s: %w", bucket, key, err)
	}
	if err := g.pub.Publish(ctx, g.topic, key, payload); err != nil {
		return fmt.Errorf("failed to publish notification for %s/%s: %w", bucket, key, err)
	}
	g.log.Debug("published write notification", "bucket", bucket, "key", key)
	return nil
}
