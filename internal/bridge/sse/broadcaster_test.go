package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// TestAddRemoveClient tests registration bookkeeping.
func (s *BroadcasterSuite) TestAddRemoveClient() {
	client := s.broadcaster.AddClient()
	s.NotEmpty(client.ID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.done:
	default:
		s.Fail("done channel should be closed")
	}

	// Removing twice is harmless.
	s.broadcaster.RemoveClient(client)
}

// TestBroadcastQueuesJSON tests messages are queued per client.
func (s *BroadcasterSuite) TestBroadcastQueuesJSON() {
	a := s.broadcaster.AddClient()
	b := s.broadcaster.AddClient()

	s.broadcaster.Broadcast(map[string]string{"type": "prompt_created", "id": "p1"})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.messages:
			s.JSONEq(`{"type":"prompt_created","id":"p1"}`, string(msg))
		default:
			s.Fail("message not queued", c.ID)
		}
	}
}

// TestBroadcastNoClients must not panic.
func (s *BroadcasterSuite) TestBroadcastNoClients() {
	s.broadcaster.Broadcast(map[string]string{"type": "test"})
}

// TestStaleClientIsDropped tests a client that stops reading is removed.
func (s *BroadcasterSuite) TestStaleClientIsDropped() {
	stale := s.broadcaster.AddClient()
	for i := 0; i <= ClientBuffer; i++ {
		s.broadcaster.Broadcast(map[string]int{"index": i})
	}

	s.Equal(0, s.broadcaster.ClientCount())
	select {
	case <-stale.done:
	default:
		s.Fail("stale client should be closed")
	}
}

func TestClientUniqueIDs(t *testing.T) {
	b := NewBroadcaster()
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		client := b.AddClient()
		assert.False(t, ids[client.ID], "ID %s should be unique", client.ID)
		ids[client.ID] = true
	}
}

func TestBroadcasterConcurrentAddRemove(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := b.AddClient()
			b.Broadcast(map[string]int{"index": i})
			if i%2 == 0 {
				b.RemoveClient(client)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, b.ClientCount(), 25)
}

// TestHandleSSE streams the greeting and broadcast events over HTTP.
func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	assert.Contains(t, readData(), `"type":"connected"`)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b.Broadcast(map[string]string{"type": "prompt_deleted", "id": "p9"})
	assert.JSONEq(t, `{"type":"prompt_deleted","id":"p9"}`, readData())

	cancel()
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}
