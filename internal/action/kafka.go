package action

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// KafkaDriver produces measurements and alerts onto a Kafka topic.
type KafkaDriver struct {
	brokers []string
	topic   string

	producer sarama.SyncProducer

	statusTracker
}

// NewKafkaDriver creates the driver.
func NewKafkaDriver(brokers []string, topic string) (*KafkaDriver, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.Newf("kafka driver requires brokers and a topic").
			Component("action").
			Category(errors.CategoryValidation).
			Build()
	}
	return &KafkaDriver{
		brokers:       brokers,
		topic:         topic,
		statusTracker: newStatusTracker("kafka"),
	}, nil
}

// Initialize builds the synchronous producer. Idempotent.
func (d *KafkaDriver) Initialize(ctx context.Context) error {
	if d.producer != nil {
		return nil
	}
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = DefaultCallTimeout
	config.Net.DialTimeout = DefaultCallTimeout

	producer, err := sarama.NewSyncProducer(d.brokers, config)
	if err != nil {
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("brokers", d.brokers).
			Build()
	}
	d.producer = producer
	d.setConnected(true)
	return nil
}

func (d *KafkaDriver) UpdateDisplay(ctx context.Context, data *MeasurementData) error {
	return d.send("measurement", map[string]any{"type": "measurement", "data": data}, data.SourceNodeID)
}

func (d *KafkaDriver) ShowAlert(ctx context.Context, alert *AlertData) error {
	return d.send("alert", map[string]any{"type": "alert", "data": alert}, alert.AlertType)
}

func (d *KafkaDriver) ClearDisplay(ctx context.Context) error {
	return d.send("clear", map[string]any{"type": "clear", "timestamp": time.Now()}, "")
}

func (d *KafkaDriver) send(kind string, payload any, key string) error {
	if d.producer == nil {
		return errors.Newf("kafka driver not initialized").
			Component("action").
			Category(errors.CategoryState).
			Build()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Value: sarama.ByteEncoder(body),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := d.producer.SendMessage(msg); err != nil {
		d.recordFailure(err)
		// Drop the producer so the next Initialize reconnects.
		_ = d.producer.Close()
		d.producer = nil
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("topic", d.topic).
			Context("kind", kind).
			Build()
	}
	d.recordDelivery()
	return nil
}

func (d *KafkaDriver) Shutdown(ctx context.Context) error {
	d.setConnected(false)
	if d.producer == nil {
		return nil
	}
	err := d.producer.Close()
	d.producer = nil
	return err
}

func (d *KafkaDriver) GetStatus() DriverStatus {
	return d.snapshot()
}

func (d *KafkaDriver) DriverType() string {
	return "kafka"
}

func (d *KafkaDriver) SupportsRealtime() bool {
	return true
}
