package action

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// MQTTDriver publishes measurements and alerts on an MQTT topic. Alerts go
// to <topic>/alert so subscribers can filter on severity paths.
type MQTTDriver struct {
	broker   string
	topic    string
	username string
	password string

	client mqtt.Client

	statusTracker
}

// NewMQTTDriver creates the driver.
func NewMQTTDriver(broker, topic, username, password string) (*MQTTDriver, error) {
	if broker == "" || topic == "" {
		return nil, errors.Newf("mqtt driver requires broker and topic").
			Component("action").
			Category(errors.CategoryValidation).
			Build()
	}
	return &MQTTDriver{
		broker:        broker,
		topic:         topic,
		username:      username,
		password:      password,
		statusTracker: newStatusTracker("mqtt"),
	}, nil
}

// Initialize connects to the broker. Idempotent: a connected client is kept.
func (d *MQTTDriver) Initialize(ctx context.Context) error {
	if d.client != nil && d.client.IsConnected() {
		return nil
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.broker)
	opts.SetClientID("photoacoustic-analyzer")
	opts.SetUsername(d.username)
	opts.SetPassword(d.password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(DefaultCallTimeout) {
		err := fmt.Errorf("mqtt connection timeout")
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryTimeout).
			Context("broker", d.broker).
			Build()
	}
	if err := token.Error(); err != nil {
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("broker", d.broker).
			Build()
	}
	d.client = client
	d.setConnected(true)
	return nil
}

func (d *MQTTDriver) UpdateDisplay(ctx context.Context, data *MeasurementData) error {
	return d.publish(d.topic, data)
}

func (d *MQTTDriver) ShowAlert(ctx context.Context, alert *AlertData) error {
	return d.publish(d.topic+"/alert", alert)
}

func (d *MQTTDriver) ClearDisplay(ctx context.Context) error {
	// Publishing a retained empty payload clears the last value for
	// late subscribers.
	if d.client == nil || !d.client.IsConnected() {
		return nil
	}
	token := d.client.Publish(d.topic, 0, true, []byte{})
	token.WaitTimeout(DefaultCallTimeout)
	return token.Error()
}

func (d *MQTTDriver) publish(topic string, payload any) error {
	if d.client == nil || !d.client.IsConnected() {
		err := fmt.Errorf("not connected to mqtt broker")
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryState).
			Context("broker", d.broker).
			Build()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := d.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(DefaultCallTimeout) {
		err := fmt.Errorf("mqtt publish timeout")
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryTimeout).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("topic", topic).
			Build()
	}
	d.recordDelivery()
	return nil
}

func (d *MQTTDriver) Shutdown(ctx context.Context) error {
	d.setConnected(false)
	if d.client != nil && d.client.IsConnected() {
		d.client.Disconnect(250)
	}
	d.client = nil
	return nil
}

func (d *MQTTDriver) GetStatus() DriverStatus {
	return d.snapshot()
}

func (d *MQTTDriver) DriverType() string {
	return "mqtt"
}

func (d *MQTTDriver) SupportsRealtime() bool {
	return true
}
