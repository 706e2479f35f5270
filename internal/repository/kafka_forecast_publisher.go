package repository

import (
	"context"

	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	pkgkafka "StockCast/pkg/kafka"
)

// KafkaForecastPublisher publishes forecast events keyed by symbol so one
// symbol's events stay ordered on a partition.
type KafkaForecastPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaForecastPublisher(producer *pkgkafka.Producer, topic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, topic: topic}
}

func (p *KafkaForecastPublisher) Publish(ctx context.Context, ev *models.ForecastPublished) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:   []byte(ev.Symbol),
		Value: ev,
		Headers: map[string]string{
			"event":     "forecast.published",
			"timeframe": ev.Timeframe,
		},
	}})
}

func (p *KafkaForecastPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopForecastPublisher drops events; used when Kafka is disabled.
type NopForecastPublisher struct{}

func (NopForecastPublisher) Publish(context.Context, *models.ForecastPublished) error { return nil }
func (NopForecastPublisher) Close() error                                             { return nil }

var (
	_ domrepo.ForecastPublisher = (*KafkaForecastPublisher)(nil)
	_ domrepo.ForecastPublisher = NopForecastPublisher{}
)
