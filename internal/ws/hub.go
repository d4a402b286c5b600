// Package ws streams newly committed history records to WebSocket clients,
// one subscription scope per connection.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/metrics"
)

// Hub channel buffer sizes and connection caps.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
	maxClients      = 1000
	maxScopeClients = 50
)

// scopeBroadcast is sent through the broadcast channel to the Run goroutine.
type scopeBroadcast struct {
	scope string
	msg   []byte
}

// Hub manages active WebSocket clients and broadcasts messages.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	scopeCount map[string]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan scopeBroadcast
	shutdown   chan struct{} // signals Run to begin graceful drain
	done       chan struct{} // closed when Run has finished draining
	count      atomic.Int64
	log        *logrus.Logger
	seq        *EventSequence
	buffer     *EventBuffer
}

// NewHub creates a new Hub instance whose replay buffer is bounded by buf.
func NewHub(log *logrus.Logger, buf BufferConfig) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		scopeCount: make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan scopeBroadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		seq:        NewEventSequence(),
		buffer:     NewEventBuffer(buf),
	}
}

const (
	// drainTimeout is how long the hub waits for clients to flush after shutdown.
	drainTimeout = 3 * time.Second

	bufferSweepInterval = 10 * time.Minute
)

// Run starts the hub event loop. It exits when Shutdown is called or the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	sweep := time.NewTicker(bufferSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-sweep.C:
			h.buffer.Evict()

		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}

			h.updateCount()
			h.log.WithField("total", len(h.clients)).Debug("ws.client_unregistered")

		case b := <-h.broadcast:
			for client := range h.clients {
				if client.Scope != b.scope {
					continue
				}

				select {
				case client.send <- b.msg:
				default:
					// Slow consumer.
					h.remove(client)
				}
			}

			h.updateCount()
		}
	}
}

func (h *Hub) add(client *Client) {
	if len(h.clients) >= maxClients {
		h.log.Warn("ws.global_limit_reached")
		client.closeSend()

		return
	}

	if h.scopeCount[client.Scope] >= maxScopeClients {
		h.log.WithField("scope", client.Scope).Warn("ws.scope_limit_reached")
		client.closeSend()

		return
	}

	h.clients[client] = true
	h.scopeCount[client.Scope]++
	h.updateCount()
	h.log.WithFields(logrus.Fields{
		"scope": client.Scope,
		"total": len(h.clients),
	}).Debug("ws.client_registered")
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	client.closeSend()

	h.scopeCount[client.Scope]--
	if h.scopeCount[client.Scope] <= 0 {
		delete(h.scopeCount, client.Scope)
	}
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// maxBroadcastPayload is the maximum allowed message size (4 KB).
const maxBroadcastPayload = 4096

// BroadcastToScope sends a message to the clients subscribed to scope.
// Oversized payloads are dropped with a warning.
func (h *Hub) BroadcastToScope(scope string, msg []byte) {
	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"scope":        scope,
			"payload_size": len(msg),
			"max_size":     maxBroadcastPayload,
		}).Warn("ws.payload_dropped")

		return
	}

	select {
	case h.broadcast <- scopeBroadcast{scope: scope, msg: msg}:
	default:
		h.log.Warn("ws.broadcast_full")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("ws.register_full")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
		// Run loop already exited; client cleanup happened in Run shutdown.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// BroadcastEvent assigns a sequence ID, buffers the event for replay, and
// broadcasts it to every client of scope.
func (h *Hub) BroadcastEvent(eventType, scope string, data json.RawMessage) {
	evt := Event{
		Type:  eventType,
		ID:    h.seq.Next(scope),
		Scope: scope,
		Data:  data,
		Time:  time.Now(),
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("ws.marshal_failed")

		return
	}

	h.buffer.Append(scope, &evt)
	h.BroadcastToScope(scope, msg)
}

// Shutdown sends a shutdown frame to every connected client, waits for their
// write pumps to flush, then closes all connections.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

// drainClients sends a close frame to every client and waits for buffers to flush.
func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("ws.draining")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

wait:
	for {
		allDrained := true

		for client := range h.clients {
			if len(client.send) > 0 {
				allDrained = false

				break
			}
		}

		if allDrained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("ws.drain_timeout")

			break wait
		case <-ticker.C:
		}
	}

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.scopeCount = make(map[string]int)
	h.updateCount()
}

// ReplayEvents sends buffered events since lastEventID to the client.
// Returns false if the requested ID is no longer buffered.
func (h *Hub) ReplayEvents(client *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID(client.Scope)
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest {
		return false
	}

	for _, evt := range h.buffer.Since(client.Scope, lastEventID) {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}

		select {
		case client.send <- msg:
		default:
			return true // channel full, stop replay
		}
	}

	return true
}
