package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
)

// RedisDriverMode selects how measurements reach Redis.
type RedisDriverMode string

const (
	// RedisModePublish sends measurements over pub/sub.
	RedisModePublish RedisDriverMode = "publish"
	// RedisModeSet writes measurements to a key with expiry.
	RedisModeSet RedisDriverMode = "set"
)

// RedisDriver delivers measurements to Redis, either as pub/sub messages on
// a channel or as expiring keyed values.
type RedisDriver struct {
	address string
	channel string
	mode    RedisDriverMode
	expiry  time.Duration

	client *redis.Client

	statusTracker
}

// NewRedisDriver creates the driver. An empty mode defaults to publish.
func NewRedisDriver(address, channel string, mode RedisDriverMode, expiry time.Duration) (*RedisDriver, error) {
	if address == "" || channel == "" {
		return nil, errors.Newf("redis driver requires address and channel").
			Component("action").
			Category(errors.CategoryValidation).
			Build()
	}
	switch mode {
	case RedisModePublish, RedisModeSet:
	case "":
		mode = RedisModePublish
	default:
		return nil, errors.Newf("unknown redis driver mode %q", mode).
			Component("action").
			Category(errors.CategoryValidation).
			Build()
	}
	return &RedisDriver{
		address:       address,
		channel:       channel,
		mode:          mode,
		expiry:        expiry,
		statusTracker: newStatusTracker("redis"),
	}, nil
}

// NewRedisDriverWithClient injects a prebuilt client; used by tests with a
// mock.
func NewRedisDriverWithClient(client *redis.Client, channel string, mode RedisDriverMode, expiry time.Duration) *RedisDriver {
	return &RedisDriver{
		channel:       channel,
		mode:          mode,
		expiry:        expiry,
		client:        client,
		statusTracker: newStatusTracker("redis"),
	}
}

// Initialize connects and pings the server. Idempotent: an established
// connection is reused.
func (d *RedisDriver) Initialize(ctx context.Context) error {
	if d.client == nil {
		d.client = redis.NewClient(&redis.Options{Addr: d.address})
	}
	if err := d.client.Ping(ctx).Err(); err != nil {
		d.recordFailure(err)
		return errors.New(err).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("address", d.address).
			Build()
	}
	d.setConnected(true)
	return nil
}

func (d *RedisDriver) UpdateDisplay(ctx context.Context, data *MeasurementData) error {
	return d.send(ctx, map[string]any{"type": "measurement", "data": data})
}

func (d *RedisDriver) ShowAlert(ctx context.Context, alert *AlertData) error {
	return d.send(ctx, map[string]any{"type": "alert", "data": alert})
}

func (d *RedisDriver) ClearDisplay(ctx context.Context) error {
	if d.client == nil || d.mode != RedisModeSet {
		return nil
	}
	if err := d.client.Del(ctx, d.channel).Err(); err != nil {
		d.recordFailure(err)
		return err
	}
	return nil
}

func (d *RedisDriver) send(ctx context.Context, payload any) error {
	if d.client == nil {
		return errors.Newf("redis driver not initialized").
			Component("action").
			Category(errors.CategoryState).
			Build()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	switch d.mode {
	case RedisModeSet:
		err = d.client.Set(ctx, d.channel, body, d.expiry).Err()
	default:
		err = d.client.Publish(ctx, d.channel, body).Err()
	}
	if err != nil {
		d.recordFailure(err)
		return errors.New(fmt.Errorf("redis %s failed: %w", d.mode, err)).
			Component("action").
			Category(errors.CategoryNetwork).
			Context("channel", d.channel).
			Build()
	}
	d.recordDelivery()
	return nil
}

func (d *RedisDriver) Shutdown(ctx context.Context) error {
	d.setConnected(false)
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func (d *RedisDriver) GetStatus() DriverStatus {
	return d.snapshot()
}

func (d *RedisDriver) DriverType() string {
	return "redis"
}

func (d *RedisDriver) SupportsRealtime() bool {
	return true
}
