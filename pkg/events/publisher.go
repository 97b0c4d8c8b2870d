package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/exp/slog"
)

const (
	TopicPaymentSettled = "payment.settled"
	TopicVoucherIssued  = "voucher.issued"
)

// PaymentSettledEvent is published when a transaction settles at the gateway
type PaymentSettledEvent struct {
	TransactionID    string    `json:"transactionId"`
	GatewayReference string    `json:"gatewayReference"`
	PhoneNumber      string    `json:"phoneNumber"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	SettledAt        time.Time `json:"settledAt"`
}

// VoucherIssuedEvent is published once a voucher is minted and bound
type VoucherIssuedEvent struct {
	TransactionID string    `json:"transactionId"`
	VoucherCode   string    `json:"voucherCode"`
	PackageID     string    `json:"packageId"`
	PhoneNumber   string    `json:"phoneNumber"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// Publisher emits billing lifecycle events for downstream consumers
// (reporting, loyalty). Publishing is best-effort and never blocks the
// purchase flow.
type Publisher interface {
	PublishPaymentSettled(event PaymentSettledEvent)
	PublishVoucherIssued(event VoucherIssuedEvent)
	Close() error
}

// KafkaPublisher publishes events through a sarama sync producer
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{producer: producer}, nil
}

// PublishPaymentSettled publishes a payment.settled event
func (p *KafkaPublisher) PublishPaymentSettled(event PaymentSettledEvent) {
	p.publish(TopicPaymentSettled, event.TransactionID, event)
}

// PublishVoucherIssued publishes a voucher.issued event
func (p *KafkaPublisher) PublishVoucherIssued(event VoucherIssuedEvent) {
	p.publish(TopicVoucherIssued, event.TransactionID, event)
}

func (p *KafkaPublisher) publish(topic, key string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "topic", topic, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		slog.Error("Failed to publish event", "topic", topic, "key", key, "error", err)
	}
}

// Close shuts down the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher discards all events. Used when Kafka is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards events
func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) PublishPaymentSettled(PaymentSettledEvent) {}
func (*NoopPublisher) PublishVoucherIssued(VoucherIssuedEvent)   {}
func (*NoopPublisher) Close() error                              { return nil }
