package notify

import (
	"context"
	"fmt"
	"time"

	"flatwatch/internal/logger"

	"github.com/IBM/sarama"
)

// KafkaNotifier publishes each report as one JSON message to a topic.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   logger.Logger
	now      func() time.Time
}

// NewKafkaNotifier connects a sync producer to the given brokers.
func NewKafkaNotifier(brokers []string, topic string, logger logger.Logger) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 0

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		logger.Errorf("Failed to create Kafka producer: %v", err)
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Infof("Kafka producer created. Brokers: %v, Topic: %s", brokers, topic)
	return newKafkaNotifier(p, topic, logger), nil
}

func newKafkaNotifier(p sarama.SyncProducer, topic string, logger logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: p,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := k.now()
	data, err := encodeMessage(subject, body, now)
	if err != nil {
		k.logger.Errorf("Failed to marshal report: %v", err)
		return fmt.Errorf("marshal report: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("subject"), Value: []byte(subject)},
			{Key: []byte("timestamp"), Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	})
	if err != nil {
		k.logger.Errorf("Failed to send message: %v", err)
		return fmt.Errorf("send kafka message: %w", err)
	}

	k.logger.Infof("Message sent to partition %d at offset %d", partition, offset)
	return nil
}

func (k *KafkaNotifier) Close() error {
	k.logger.Infof("Closing Kafka producer...")
	return k.producer.Close()
}
