package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-watchlist/pkg/config"
)

const snapshotKey = "watchlist"

var _ repository.SnapshotSink = (*KafkaPublisher)(nil)

// KafkaPublisher forwards every broadcast payload to a topic. All messages
// share one key so consumers see snapshots in broadcast order.
type KafkaPublisher struct {
	writer KafkaWriter
	logger *zap.Logger
}

func NewKafkaPublisher(writer KafkaWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// NewKafkaWriter builds an async writer tuned for small, frequent payloads.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    10,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true, // fire and forget, errors surface in the writer's logger
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snapshotKey),
		Value: payload,
	})
}

// Close flushes buffered messages.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Error closing Kafka writer", zap.Error(err))
		return err
	}
	p.logger.Info("Kafka writer closed cleanly")
	return nil
}

// OpenKafkaPublisher provisions the snapshot topic and returns a publisher
// writing to it. Provisioning failures are logged; the broker may auto-create.
func OpenKafkaPublisher(ctx context.Context, cfg config.KafkaConfig, dialer KafkaDialer, logger *zap.Logger) *KafkaPublisher {
	if err := ProvisionTopic(ctx, dialer, cfg.Brokers, cfg.Topic); err != nil {
		logger.Warn("Snapshot topic not provisioned", zap.String("topic", cfg.Topic), zap.Error(err))
	} else {
		logger.Info("Snapshot topic ready", zap.String("topic", cfg.Topic))
	}
	return NewKafkaPublisher(NewKafkaWriter(cfg.Brokers, cfg.Topic), logger)
}

// ProvisionTopic creates topic on the cluster controller with a single
// partition, which keeps snapshots totally ordered. An existing topic is fine.
func ProvisionTopic(ctx context.Context, dialer KafkaDialer, brokers []string, topic string) error {
	conn, err := dialAny(ctx, dialer, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	broker, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("locate controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port)))
	if err != nil {
		return fmt.Errorf("dial controller %d: %w", broker.ID, err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return nil
	}
	return err
}

func dialAny(ctx context.Context, dialer KafkaDialer, brokers []string) (KafkaConn, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no brokers configured")
	}
	var errs []error
	for _, addr := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no reachable broker: %w", errors.Join(errs...))
}
