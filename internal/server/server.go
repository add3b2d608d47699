package server

import (
	"context"
	"sync"

	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/friends"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/stats"
	"go.uber.org/zap"
)

// Services are the stream sources a client can subscribe to.
type Services struct {
	Accounts *account.Service
	Feed     *feed.Feed
	Journal  *journal.Journal
	Friends  *friends.Store
}

type stopReq struct {
	done chan struct{}
}

// Hub tracks connected clients so they can be stopped together.
type Hub struct {
	log            *zap.SugaredLogger
	services       Services
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

func NewHub(logger *zap.SugaredLogger, services Services, su stats.StatsProvider) *Hub {
	su.RegisterMetric(stats.ActiveClients)
	su.RegisterMetric(stats.ActiveSubscriptions)

	return &Hub{
		log:            logger,
		services:       services,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.registerChan:
			h.log.Debugw("adding connection", "account_id", client.accountId)
			h.addClient(client)
		case client := <-h.deRegisterChan:
			h.log.Debugw("removing connection", "account_id", client.accountId)
			h.removeClient(client)
		case req := <-h.stop:
			h.log.Info("stopping clients")
			h.clientsLock.Lock()
			for c := range h.clients {
				c.stopClient()
			}
			h.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.registerChan <- c:
	case <-h.done:
		c.stopClient()
	}
}

func (h *Hub) deRegisterClient(c *Client) {
	select {
	case h.deRegisterChan <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[c] = struct{}{}
	h.stats.Incr(stats.ActiveClients)
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.stats.Decr(stats.ActiveClients)
	}
}

// Shutdown stops every connected client and the hub loop.
func (h *Hub) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
