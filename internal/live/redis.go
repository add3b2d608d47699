package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	channelPrefix    = "echoes:"
	reconnectBackoff = time.Second
)

// RedisBroker fans notifications out to every instance sharing a Redis
// server. Local subscribers are notified immediately; the receive loop
// forwards notifications published by other instances.
type RedisBroker struct {
	*LocalBroker

	pool       *redis.Pool
	log        *zap.SugaredLogger
	instanceId string

	mu      sync.Mutex
	psc     *redis.PubSubConn
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisBroker pings the pool and starts the receive loop.
func NewRedisBroker(pool *redis.Pool, logger *zap.SugaredLogger) (*RedisBroker, error) {
	ping := pool.Get()
	_, err := ping.Do("PING")
	ping.Close()
	if err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := newRedisBroker(pool, logger)
	b.start()

	return b, nil
}

func newRedisBroker(pool *redis.Pool, logger *zap.SugaredLogger) *RedisBroker {
	return &RedisBroker{
		LocalBroker: NewLocalBroker(),
		pool:        pool,
		log:         logger,
		instanceId:  uuid.NewString(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (b *RedisBroker) start() {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()

	go b.receive()
}

func (b *RedisBroker) Publish(ctx context.Context, topic string) error {
	if err := b.LocalBroker.Publish(ctx, topic); err != nil {
		return err
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("PUBLISH", channelPrefix+topic, b.instanceId); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

func (b *RedisBroker) subscribe() (*redis.PubSubConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.stop:
		return nil, ErrClosed
	default:
	}

	psc := &redis.PubSubConn{Conn: b.pool.Get()}
	if err := psc.PSubscribe(channelPrefix + "*"); err != nil {
		psc.Close()
		return nil, err
	}
	b.psc = psc

	return psc, nil
}

func (b *RedisBroker) release(psc *redis.PubSubConn) {
	b.mu.Lock()
	b.psc = nil
	b.mu.Unlock()

	psc.Close()
}

func (b *RedisBroker) receive() {
	defer close(b.done)

	for {
		psc, err := b.subscribe()
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			b.log.Errorw("redis psubscribe failed", "error", err)
			if !b.wait(reconnectBackoff) {
				return
			}
			continue
		}

		if !b.forward(psc) {
			return
		}
	}
}

// forward relays messages until the connection fails or the broker is
// closed. It reports whether the loop should reconnect.
func (b *RedisBroker) forward(psc *redis.PubSubConn) bool {
	defer b.release(psc)

	for {
		switch msg := psc.Receive().(type) {
		case redis.Message:
			if string(msg.Data) == b.instanceId {
				continue
			}
			topic := strings.TrimPrefix(msg.Channel, channelPrefix)
			if err := b.LocalBroker.Publish(context.Background(), topic); err != nil {
				return false
			}
		case redis.Subscription:
			if msg.Kind == "punsubscribe" && msg.Count == 0 {
				return false
			}
		case error:
			select {
			case <-b.stop:
				return false
			default:
			}
			b.log.Warnw("redis receive failed, reconnecting", "error", msg)
			return b.wait(reconnectBackoff)
		}
	}
}

// wait sleeps for d and reports false if the broker closed meanwhile.
func (b *RedisBroker) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-b.stop:
		return false
	}
}

// Close stops the receive loop, then closes local subscriptions and the
// pool.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	select {
	case <-b.stop:
		b.mu.Unlock()
		return nil
	default:
	}
	close(b.stop)
	if b.psc != nil {
		b.psc.PUnsubscribe()
	}
	running := b.running
	b.mu.Unlock()

	if running {
		<-b.done
	}

	b.LocalBroker.Close()
	return b.pool.Close()
}
