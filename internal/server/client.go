package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/live"
	"github.com/npezzotti/go-echoes/internal/stats"
	"github.com/npezzotti/go-echoes/internal/types"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// subscription is one live stream owned by a client.
type subscription struct {
	close func()
}

type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	log       *zap.SugaredLogger
	stats     stats.StatsProvider
	accountId string
	send      chan *ServerMessage
	ctx       context.Context
	cancel    context.CancelFunc
	subs      map[string]*subscription
	subsLock  sync.Mutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(accountId string, conn *websocket.Conn, hub *Hub, l *zap.SugaredLogger, su stats.StatsProvider) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:      conn,
		hub:       hub,
		log:       l.With("account_id", accountId),
		stats:     su,
		accountId: accountId,
		send:      make(chan *ServerMessage, 256),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[string]*subscription),
		stop:      make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Errorw("failed to serialize message", "error", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.sendMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warnw("ws: read", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debugw("error parsing message", "error", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.Timestamp = Now()

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch {
	case msg.Subscribe != nil:
		c.subscribe(msg)
	case msg.Unsubscribe != nil:
		c.unsubscribe(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// subscribe opens a stream for the requested topic, replacing any stream
// already open for it.
func (c *Client) subscribe(msg *ClientMessage) {
	topic := msg.Subscribe.Topic
	svc := c.hub.services

	switch topic {
	case TopicFeed:
		start := feed.WindowStart(time.Now().UTC())
		if msg.Subscribe.WindowStart != nil {
			start = msg.Subscribe.WindowStart.UTC()
		}
		c.queueMessage(NoErrAccepted(msg.Id))
		c.addSubscription(topic, forward(c, topic, svc.Feed.Subscribe(c.ctx, start), func(v []types.Echo) *ServerMessage {
			return SnapshotMessage(topic, v)
		}))
	case TopicJournal:
		c.queueMessage(NoErrAccepted(msg.Id))
		c.addSubscription(topic, forward(c, topic, svc.Journal.Subscribe(c.ctx, c.accountId), func(v []types.Vibe) *ServerMessage {
			return SnapshotMessage(topic, v)
		}))
	case TopicFriends:
		c.queueMessage(NoErrAccepted(msg.Id))
		c.addSubscription(topic, forward(c, topic, svc.Friends.Subscribe(c.ctx, c.accountId), func(v []types.Friend) *ServerMessage {
			return SnapshotMessage(topic, v)
		}))
	case TopicSession:
		c.queueMessage(NoErrAccepted(msg.Id))
		c.queueMessage(SessionMessage(types.SessionState{Loading: true}))
		c.addSubscription(topic, forward(c, topic, svc.Accounts.WatchSession(c.ctx, c.accountId), SessionMessage))
	default:
		c.queueMessage(ErrUnknownTopic(msg.Id))
	}
}

// forward relays every snapshot of stream to the client and reports a
// failed stream as a subscription error.
func forward[T any](c *Client, topic string, stream *live.Stream[T], wrap func(T) *ServerMessage) *subscription {
	go func() {
		for v := range stream.Updates() {
			c.queueMessage(wrap(v))
		}

		if err := stream.Err(); err != nil {
			c.log.Warnw("subscription failed", "topic", topic, "error", err)
			c.queueMessage(SubscriptionErrorMessage(topic, err))
		}
	}()

	return &subscription{close: stream.Close}
}

func (c *Client) unsubscribe(msg *ClientMessage) {
	if !c.removeSubscription(msg.Unsubscribe.Topic) {
		c.queueMessage(ErrNotSubscribed(msg.Id))
		return
	}

	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) addSubscription(topic string, sub *subscription) {
	c.subsLock.Lock()
	old, ok := c.subs[topic]
	c.subs[topic] = sub
	c.subsLock.Unlock()

	if ok {
		old.close()
		return
	}
	c.stats.Incr(stats.ActiveSubscriptions)
}

func (c *Client) removeSubscription(topic string) bool {
	c.subsLock.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.subsLock.Unlock()

	if !ok {
		return false
	}

	sub.close()
	c.stats.Decr(stats.ActiveSubscriptions)
	return true
}

func (c *Client) closeAllSubscriptions() {
	c.subsLock.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.subsLock.Unlock()

	for _, sub := range subs {
		sub.close()
		c.stats.Decr(stats.ActiveSubscriptions)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warnw("write message", "error", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.hub.deRegisterClient(c)
	c.cancel()
	c.closeAllSubscriptions()
	c.stopClient()
}
