package notify

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/pkg/kafka"
)

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// Publisher enqueues events for the notification consumer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer, topic: kafka.NotificationTopic}
}

func (p *Publisher) Notify(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.To),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err = p.producer.SendMessage(msg); err != nil {
		return errors.Wrap(err, "SendMessage")
	}
	return nil
}

// Direct delivers in-process when no broker is configured.
type Direct struct {
	sender Sender
}

func NewDirect(sender Sender) *Direct {
	return &Direct{sender: sender}
}

func (d *Direct) Notify(ctx context.Context, ev Event) error {
	return d.sender.Send(ctx, ev)
}

// Consumer turns notification events into emails.
type Consumer struct {
	sender Sender
	log    *zap.Logger
}

func NewConsumer(sender Sender, log *zap.Logger) *Consumer {
	return &Consumer{
		sender: sender,
		log:    log.Named("consumer"),
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				c.log.Warn("message channel was closed")
				return nil
			}
			c.handle(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle never blocks the partition: broken payloads and failed sends are logged and skipped.
func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var ev Event
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		c.log.Error("unmarshal event", zap.Error(err))
		return
	}
	if ev.To == "" {
		c.log.Debug("event without recipient", zap.String("kind", string(ev.Kind)))
		return
	}
	if err := c.sender.Send(ctx, ev); err != nil {
		c.log.Error("send", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	c.log.Debug("Message claimed:",
		zap.String("kind", string(ev.Kind)),
		zap.Time("timestamp", message.Timestamp),
		zap.String("topic", message.Topic))
}
