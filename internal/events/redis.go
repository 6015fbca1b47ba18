package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dseinapp/dsein-server/internal/store"
)

// Options configures the Redis bridge.
type Options struct {
	URL     string
	Channel string
	Logger  *slog.Logger
}

// outboxSize bounds the events waiting to be published.
const outboxSize = 1024

// RedisPublisher publishes events to a Redis channel and feeds events read
// from that channel into a local sink. Every replica, including the
// publisher, receives each event exactly once through its subscription.
// Emit only queues; Run publishes in the background.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger

	publishTimeout time.Duration
	maxBackoff     time.Duration

	outbox  chan any
	dropped atomic.Int64

	mu   sync.Mutex
	sink store.EventEmitter
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, opts Options) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connected to redis", "addr", opt.Addr, "channel", channel)
	return newPublisher(client, channel, logger), nil
}

func newPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:         client,
		channel:        channel,
		logger:         logger,
		publishTimeout: 3 * time.Second,
		maxBackoff:     30 * time.Second,
		outbox:         make(chan any, outboxSize),
	}
}

// Emit implements store.EventEmitter. It never blocks: when the outbox is
// full the event is dropped.
func (p *RedisPublisher) Emit(event any) {
	select {
	case p.outbox <- event:
	default:
		if p.dropped.Add(1) == 1 {
			p.logger.Warn("event outbox full, dropping events", "size", outboxSize)
		}
	}
}

// Dropped returns how many events Emit discarded.
func (p *RedisPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// drain publishes queued events until ctx is cancelled. An event that
// cannot be published is delivered to the local sink so clients on this
// replica still see it.
func (p *RedisPublisher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.outbox:
			p.publish(ctx, event)
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, event any) {
	payload, err := encode(event)
	if err != nil {
		p.logger.Warn("dropping event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("redis publish failed, delivering locally", "error", err)
		if sink := p.currentSink(); sink != nil {
			sink.Emit(event)
		}
	}
}

func (p *RedisPublisher) currentSink() store.EventEmitter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// Run publishes queued events, subscribes to the channel and forwards every
// event to sink until ctx is cancelled. A dropped subscription is
// re-established with exponential backoff capped at 30s.
func (p *RedisPublisher) Run(ctx context.Context, sink store.EventEmitter) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()

	go p.drain(ctx)

	backoff := time.Second
	for {
		err := p.subscribe(ctx, sink)
		if ctx.Err() != nil {
			return
		}

		p.logger.Warn("redis subscription lost, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.maxBackoff)
	}
}

func (p *RedisPublisher) subscribe(ctx context.Context, sink store.EventEmitter) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	p.logger.Info("subscribed to redis events", "channel", p.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("channel %s closed", p.channel)
			}
			event, err := decode([]byte(msg.Payload))
			if err != nil {
				p.logger.Warn("dropping malformed event", "error", err)
				continue
			}
			sink.Emit(event)
		}
	}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
