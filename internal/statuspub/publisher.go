// Package statuspub mirrors published endpoint statuses to Redis.
//
// Every change is published as a JSON message on a channel, and the latest status of each
// endpoint is kept in a hash keyed by alias.
package statuspub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/go-linkwatch/internal/config"
	"github.com/arloliu/go-linkwatch/linkwatch"
	"github.com/arloliu/go-linkwatch/logger"
)

const (
	queueSize    = 256
	writeTimeout = 3 * time.Second
)

// Client is the subset of redis.Cmdable the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Source resolves a handle to its endpoint.
type Source interface {
	Info(h linkwatch.Handle) (linkwatch.EndpointInfo, bool)
}

// Message is the JSON payload published on every status change.
type Message struct {
	Handle  uint64    `json:"handle"`
	Alias   string    `json:"alias"`
	Kind    string    `json:"kind"`
	Address string    `json:"address"`
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
}

// Publisher forwards status changes to Redis from its own goroutine, so the engine's status
// callback never waits on the network. Changes that overflow the queue are dropped.
type Publisher struct {
	client  Client
	src     Source
	channel string
	hashKey string
	logger  logger.Logger

	queue chan Message
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewClient creates a Redis client from cfg and checks it with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

// New creates a publisher and starts its worker.
func New(client Client, src Source, cfg config.RedisConfig, l logger.Logger) *Publisher {
	if l == nil {
		l = logger.GetLogger()
	}

	p := &Publisher{
		client:  client,
		src:     src,
		channel: cfg.Channel,
		hashKey: cfg.HashKey,
		logger:  l.With("component", "statuspub"),
		queue:   make(chan Message, queueSize),
		done:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Observe queues a status change. It has the linkwatch.StatusHandler signature.
func (p *Publisher) Observe(h linkwatch.Handle, state linkwatch.State) {
	msg := Message{
		Handle: uint64(h),
		Alias:  strconv.FormatUint(uint64(h), 10),
		Status: state.String(),
		Time:   time.Now().UTC(),
	}
	if info, ok := p.src.Info(h); ok {
		if info.Alias != "" {
			msg.Alias = info.Alias
		}
		msg.Kind = info.Kind.String()
		msg.Address = info.Address
	}

	select {
	case <-p.done:
	case p.queue <- msg:
	default:
		p.logger.Warn("status queue full, change dropped", "handle", msg.Handle, "status", msg.Status)
	}
}

// Close stops the worker after the queued changes are written.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		case <-p.done:
			for {
				select {
				case msg := <-p.queue:
					p.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) write(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to encode status", "handle", msg.Handle, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.client.HSet(ctx, p.hashKey, msg.Alias, data).Err(); err != nil {
		p.logger.Warn("failed to store status", "key", p.hashKey, "alias", msg.Alias, "error", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish status", "channel", p.channel, "alias", msg.Alias, "error", err)
	}
}
