package realtime

import (
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type dispatch func(change Change) int

type Consumer struct {
	dispatchHandler dispatch
	log             *zap.Logger
	ready           chan bool
	once            sync.Once
}

func NewConsumer(dispatch dispatch, log *zap.Logger) *Consumer {
	return &Consumer{
		dispatchHandler: dispatch,
		log:             log.Named("consumer"),
		ready:           make(chan bool),
	}
}

// Ready is closed once the first session is set up.
func (consumer *Consumer) Ready() <-chan bool {
	return consumer.ready
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	consumer.once.Do(func() { close(consumer.ready) })
	return nil
}

func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var change Change
			if err := json.Unmarshal(message.Value, &change); err != nil {
				consumer.log.Error("json.Unmarshal", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			n := consumer.dispatchHandler(change)
			consumer.log.Debug("change dispatched",
				zap.String("table", string(change.Table)),
				zap.String("event", string(change.Event)),
				zap.String("library_id", change.LibraryID),
				zap.Int("deliveries", n),
				zap.Time("timestamp", message.Timestamp))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
