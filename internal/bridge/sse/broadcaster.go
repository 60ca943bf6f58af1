// Package sse streams library change events to browser clients as
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// ClientBuffer is the number of messages queued per client before the
	// client is considered stale and dropped.
	ClientBuffer = 32
	// KeepAlive is the interval of comment frames that keep idle
	// connections open through proxies.
	KeepAlive = 25 * time.Second
)

// Client is one connected event stream.
type Client struct {
	ID       string
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Broadcaster fans messages out to every connected client. Each client is
// written only by its own handler goroutine.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a new client.
func (b *Broadcaster) AddClient() *Client {
	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:       fmt.Sprintf("client-%d", b.nextID),
		messages: make(chan []byte, ClientBuffer),
		done:     make(chan struct{}),
	}
	b.clients[client.ID] = client
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", count).
		Msg("SSE client connected")
	return client
}

// RemoveClient unregisters a client. It is safe to call more than once.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	_, exists := b.clients[client.ID]
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	client.close()
	if exists {
		log.Debug().
			Str("clientId", client.ID).
			Int("totalClients", count).
			Msg("SSE client disconnected")
	}
}

// Broadcast queues data as JSON for every client. A client whose queue is
// full is dropped instead of blocking the others.
func (b *Broadcaster) Broadcast(data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}

	b.mu.RLock()
	var stale []*Client
	for _, client := range b.clients {
		select {
		case client.messages <- payload:
		default:
			stale = append(stale, client)
		}
	}
	b.mu.RUnlock()

	for _, client := range stale {
		log.Warn().Str("clientId", client.ID).Msg("SSE client is not reading, dropping it")
		b.RemoveClient(client)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE streams events to one client until the request ends or the
// client is dropped.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.AddClient()
	defer b.RemoveClient(client)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":%q}\n\n", client.ID)
	flusher.Flush()

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case msg := <-client.messages:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				log.Debug().Str("clientId", client.ID).Err(err).Msg("Failed to write to SSE client")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
