// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package ws broadcasts analysis lifecycle events to WebSocket
// subscribers. The hub owns the client set; clients never touch it
// directly.
package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/truthlens/truthlens/internal/logging"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/models"
)

// Lifecycle event types pushed to subscribers.
const (
	EventAnalysisStarted   = "analysis_started"
	EventAnalysisCompleted = "analysis_completed"
	EventPing              = "ping"
	EventPong              = "pong"
)

// Message is one event on the wire.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// AnalysisStartedData accompanies analysis_started.
type AnalysisStartedData struct {
	ID        string `json:"id"`
	Uploader  string `json:"uploader"`
	Filename  string `json:"filename"`
	MediaKind string `json:"media_kind"`
	Timestamp string `json:"timestamp"`
}

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Run it under the supervisor before serving
// WebSocket upgrades.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub until ctx is canceled, then closes every client
// and returns ctx.Err(). Lifecycle events take priority over
// broadcasts so the client set is consistent before fan-out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// fanOut delivers one message to every client in id order. Clients
// whose send buffer is full are dropped: a stalled subscriber must not
// block analysis broadcasts.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- msg:
			metrics.WSEventsSent.Inc()
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue hands a message to the hub loop without blocking the caller.
func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("event_type", msg.Type).Msg("broadcast channel full, dropping event")
	}
}

// AnalysisStarted announces that an upload entered the pipeline.
func (h *Hub) AnalysisStarted(id, uploader, filename, mediaKind string) {
	h.enqueue(Message{
		Type: EventAnalysisStarted,
		Data: AnalysisStartedData{
			ID:        id,
			Uploader:  uploader,
			Filename:  filename,
			MediaKind: mediaKind,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// AnalysisCompleted pushes the finished record to all subscribers.
func (h *Hub) AnalysisCompleted(rec *models.AnalysisRecord) {
	h.enqueue(Message{Type: EventAnalysisCompleted, Data: rec})
}
