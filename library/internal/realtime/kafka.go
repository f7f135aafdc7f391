package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Astemirdum/library-admin/pkg/circuit_breaker"
	"github.com/Astemirdum/library-admin/pkg/kafka"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// KafkaHub pushes changes through a kafka topic. Every process joins with
// its own consumer group, so each one sees every change.
type KafkaHub struct {
	reg      *registry
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup
	cb       circuit_breaker.CircuitBreaker
	topic    string
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger
}

func NewKafkaHub(cfg kafka.Config, log *zap.Logger) (*KafkaHub, error) {
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka.NewProducer")
	}
	consumer, err := kafka.NewConsumer(cfg, kafka.RealtimeGroupPrefix+uuid.NewString())
	if err != nil {
		_ = producer.Close()
		return nil, errors.Wrap(err, "kafka.NewConsumer")
	}
	h := newKafkaHub(producer, consumer, log)
	h.start()
	return h, nil
}

func newKafkaHub(producer sarama.SyncProducer, consumer sarama.ConsumerGroup, log *zap.Logger) *KafkaHub {
	log = log.Named("realtime")
	return &KafkaHub{
		reg:      newRegistry(log),
		producer: producer,
		consumer: consumer,
		cb:       circuit_breaker.New(20, 10*time.Second, 0.5, 5),
		topic:    kafka.ChangesTopic,
		done:     make(chan struct{}),
		log:      log,
	}
}

func (h *KafkaHub) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		kafka.Consume(ctx, h.consumer, NewConsumer(h.reg.dispatch, h.log), h.log, h.topic)
	}()
}

func (h *KafkaHub) Channel(name string) Channel {
	return h.reg.newChannel(name)
}

func (h *KafkaHub) RemoveChannel(ch Channel) error {
	return h.reg.remove(ch)
}

func (h *KafkaHub) Live() bool { return true }

// Publish sends the change keyed by library, keeping per-library order.
func (h *KafkaHub) Publish(_ context.Context, c Change) error {
	if c.CommitAt.IsZero() {
		c.CommitAt = time.Now().UTC()
	}
	if c.Schema == "" {
		c.Schema = SchemaPublic
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: h.topic,
		Key:   sarama.StringEncoder(c.LibraryID),
		Value: sarama.ByteEncoder(data),
	}
	return h.cb.Call(func() error {
		_, _, err := h.producer.SendMessage(msg)
		return err
	})
}

// Dispatch delivers a change to local channels without going through kafka.
func (h *KafkaHub) Dispatch(c Change) int {
	return h.reg.dispatch(c)
}

func (h *KafkaHub) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.reg.closeAll()
	var err error
	if h.consumer != nil {
		err = multierr.Append(err, h.consumer.Close())
	}
	if h.cancel != nil {
		<-h.done
	}
	return multierr.Append(err, h.producer.Close())
}
