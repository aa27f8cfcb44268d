package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

const KafkaSinkName = "kafka"

type KafkaConfig struct {
	Host  string
	Port  string
	Topic string
}

type KafkaSink struct {
	topic    string
	producer *kafka.Producer
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.Topic == "" {
		return nil, errors.New("kafka host, port and topic are required")
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaSink{topic: cfg.Topic, producer: producer}, nil
}

func (k *KafkaSink) Name() string {
	return KafkaSinkName
}

// Write waits for the broker's delivery report; the record is keyed by object
// key so a compacted topic keeps one copy per record.
func (k *KafkaSink) Write(ctx context.Context, objectKey string, payload []byte) error {
	if k.producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	deliveryChan := make(chan kafka.Event, 1)
	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(objectKey),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaSink) Close() error {
	if k.producer != nil {
		k.producer.Flush(5000)
		k.producer.Close()
	}
	return nil
}
