// Package kafka publishes cart change events. Records are keyed by cart ID so
// one cart's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "cart-service.cart-changed"

// producer is the subset of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type Publisher struct {
	client producer
	topic  string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("cart-service"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func newPublisher(client producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.CartID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", ev.Type, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
