package queue

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"

	"github.com/vellum-io/vellum/internal/config"
)

// clientOpts translates the kafka config block into franz-go options shared
// by producers and consumers.
func clientOpts(cfg *config.KafkaConfig) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
	}
	if cfg.EnableTLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if cfg.SASLUsername != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.SASLUsername,
			Pass: cfg.SASLPassword,
		}.AsMechanism()))
	}
	return opts
}

// KafkaPublisher publishes messages through a shared kgo client.
type KafkaPublisher struct {
	client *kgo.Client
	log    hclog.Logger
}

// NewKafkaPublisher builds a producer client with durable-acks settings.
func NewKafkaPublisher(cfg *config.KafkaConfig, log hclog.Logger) (*KafkaPublisher, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	opts := append(clientOpts(cfg),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{
		client: client,
		log:    log.Named("kafka-publisher"),
	}, nil
}

// Publish sends one record synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	p.log.Debug("published message", "topic", topic, "key", key, "bytes", len(value))
	return nil
}

// Close releases the producer client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// KafkaConsumer is a consumer-group member that delivers records one at a
// time and commits after the handler succeeds.
type KafkaConsumer struct {
	client *kgo.Client
	log    hclog.Logger
	stopCh chan struct{}
}

// NewKafkaConsumer builds a consumer-group client for the given topics.
func NewKafkaConsumer(cfg *config.KafkaConfig, group string, topics []string, log hclog.Logger) (*KafkaConsumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if group == "" {
		group = cfg.ConsumerGroup
	}

	// New consumers start from latest; tests consume from the beginning so
	// records published before the group joins are still seen.
	offset := kgo.NewOffset().AtEnd()
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart()
	}

	opts := append(clientOpts(cfg),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(offset),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),

		// Commit manually after successful processing.
		kgo.DisableAutoCommit(),

		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20),
	)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaConsumer{
		client: client,
		log:    log.Named("kafka-consumer"),
		stopCh: make(chan struct{}),
	}, nil
}

// Start polls until the context is cancelled or Stop is called. Handler
// failures are logged and the record is left uncommitted for redelivery;
// one bad record never stops the loop.
func (c *KafkaConsumer) Start(ctx context.Context, h Handler) error {
	c.log.Info("starting consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer stopped by context")
			return ctx.Err()

		case <-c.stopCh:
			c.log.Info("consumer stopped")
			return nil

		default:
			fetches := c.client.PollFetches(ctx)

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					c.log.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				for _, record := range p.Records {
					msg := Message{
						Topic:   record.Topic,
						Key:     string(record.Key),
						Value:   record.Value,
						Headers: headerMap(record.Headers),
					}
					if err := h(ctx, msg); err != nil {
						c.log.Error("failed to process record",
							"topic", record.Topic,
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err,
						)
						continue
					}

					if err := c.client.CommitRecords(ctx, record); err != nil {
						c.log.Warn("failed to commit offset",
							"topic", record.Topic,
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
					}
				}
			})
		}
	}
}

// Stop gracefully stops the consumer.
func (c *KafkaConsumer) Stop() {
	select {
	case <-c.stopCh:
		// Already stopped.
	default:
		close(c.stopCh)
		c.client.Close()
	}
}

func headerMap(headers []kgo.RecordHeader) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return m
}
