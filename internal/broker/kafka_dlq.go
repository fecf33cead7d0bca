package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/XSpiritWizardX/product-scraper/config"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
)

type deadLetter struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaDLQClient publishes permanently failed URLs to a dead-letter topic so
// an operator can inspect or replay them. Disabled entirely when kafka is
// not configured; every method is then a no-op.
type KafkaDLQClient struct {
	serviceName string
	kafkaWriter *kafka.Writer
}

func NewKafkaDLQ(serviceName string, kafkaCfg *config.KafkaConfig) *KafkaDLQClient {
	if kafkaCfg == nil || !kafkaCfg.Enabled {
		return &KafkaDLQClient{}
	}
	cfg := kafkaCfg.Producer
	return &KafkaDLQClient{
		serviceName: serviceName,
		kafkaWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Addr...),
			Topic:        cfg.DeadLetterTopicName,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.MaxAttempts,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAsks),
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					slog.Error("failed to send messages to dlq.", slog.String("err", err.Error()))
				}
			},
		},
	}
}

func (c *KafkaDLQClient) SendUrlToDLQ(url string, failure error) {
	if c == nil || c.kafkaWriter == nil {
		return
	}
	body, err := jsoniter.Marshal(deadLetter{
		URL:       url,
		Error:     failure.Error(),
		Service:   c.serviceName,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("marshaling error.", slog.String("err", err.Error()))
		return
	}
	err = c.kafkaWriter.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(url),
		Value: body,
	})
	if err != nil {
		slog.Error("failed to send url to dlq.", slog.String("url", url),
			slog.String("err", err.Error()))
	}
}

func (c *KafkaDLQClient) Close() {
	if c == nil || c.kafkaWriter == nil {
		return
	}
	if err := c.kafkaWriter.Close(); err != nil {
		slog.Error("failed to close kafka writer.", slog.String("err", err.Error()))
	}
}
