// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/truthlens/truthlens/internal/models"
)

// testClient builds a hub client without a network connection; the
// hub only ever touches the send channel.
func testClient(buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), send: make(chan Message, buffer)}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return h, cancel
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	h, _ := startHub(t)

	a := testClient(4)
	b := testClient(4)
	h.register <- a
	h.register <- b
	waitForClients(t, h, 2)

	h.AnalysisStarted("id-1", "alice", "photo.jpg", "image")

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != EventAnalysisStarted {
				t.Errorf("event type = %q", msg.Type)
			}
			data, ok := msg.Data.(AnalysisStartedData)
			if !ok {
				t.Fatalf("data type = %T", msg.Data)
			}
			if data.ID != "id-1" || data.MediaKind != "image" {
				t.Errorf("payload = %+v", data)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client never received the event")
		}
	}
}

func TestHubDropsStalledClient(t *testing.T) {
	h, _ := startHub(t)

	stalled := testClient(1)
	healthy := testClient(8)
	h.register <- stalled
	h.register <- healthy
	waitForClients(t, h, 2)

	// Two events overflow the stalled client's single-slot buffer.
	h.AnalysisCompleted(&models.AnalysisRecord{ID: "r1"})
	h.AnalysisCompleted(&models.AnalysisRecord{ID: "r2"})
	waitForClients(t, h, 1)

	if _, open := <-stalled.send; open {
		// First buffered message is fine; the channel must be closed
		// after it drains.
		if _, open := <-stalled.send; open {
			t.Error("stalled client send channel left open")
		}
	}

	if len(healthy.send) != 2 {
		t.Errorf("healthy client got %d events, want 2", len(healthy.send))
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h, _ := startHub(t)

	c := testClient(1)
	h.register <- c
	waitForClients(t, h, 1)
	h.unregister <- c
	waitForClients(t, h, 0)

	select {
	case _, open := <-c.send:
		if open {
			t.Error("send channel should be closed after unregister")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	c := testClient(1)
	h.register <- c
	waitForClients(t, h, 1)

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on cancel")
	}
	if h.ClientCount() != 0 {
		t.Errorf("clients remaining after shutdown: %d", h.ClientCount())
	}
}

func TestServeWSDeliversEvents(t *testing.T) {
	h, _ := startHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	h.AnalysisCompleted(&models.AnalysisRecord{ID: "rec-7", TrustScore: 81})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			ID         string `json:"id"`
			TrustScore int    `json:"trust_score"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != EventAnalysisCompleted || msg.Data.ID != "rec-7" || msg.Data.TrustScore != 81 {
		t.Errorf("received %+v", msg)
	}
}
