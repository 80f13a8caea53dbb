package notify

import (
	"context"
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Event is the payload published on the Redis channel.
type Event struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// Redis publishes every message as an Event on one pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	source  string
	now     func() time.Time
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password, channel, source string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return &Redis{client: client, channel: channel, source: source, now: time.Now}, nil
}

func (r *Redis) Send(ctx context.Context, msg string) error {
	payload, err := r.encode(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) encode(msg string) ([]byte, error) {
	payload, err := json.Marshal(Event{Time: r.now().UTC(), Source: r.source, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
