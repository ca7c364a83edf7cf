package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// LogChunk is a batch of fresh lines from one stage log
type LogChunk struct {
	RunID string   `json:"run_id"`
	File  string   `json:"file"`
	Lines []string `json:"lines"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to localhost; the SSE endpoint is equally open
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LogStreamer fans stage log lines out to websocket clients. Slow
// clients are dropped rather than allowed to stall the run loop.
type LogStreamer struct {
	clients map[*wsClient]struct{}
	mu      sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan LogChunk
	// runID filters the stream; empty receives every run
	runID string
}

// NewLogStreamer creates an empty streamer
func NewLogStreamer() *LogStreamer {
	return &LogStreamer{clients: make(map[*wsClient]struct{})}
}

// Publish sends a chunk to every subscribed client
func (ls *LogStreamer) Publish(chunk LogChunk) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for c := range ls.clients {
		if c.runID != "" && c.runID != chunk.RunID {
			continue
		}
		select {
		case c.send <- chunk:
		default:
			// Client cannot keep up; cut it loose
			close(c.send)
			delete(ls.clients, c)
		}
	}
}

func (ls *LogStreamer) add(c *wsClient) {
	ls.mu.Lock()
	ls.clients[c] = struct{}{}
	ls.mu.Unlock()
}

func (ls *LogStreamer) remove(c *wsClient) {
	ls.mu.Lock()
	if _, ok := ls.clients[c]; ok {
		delete(ls.clients, c)
		close(c.send)
	}
	ls.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (ls *LogStreamer) ClientCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.clients)
}

func (s *Server) logStreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := &wsClient{
			conn:  conn,
			send:  make(chan LogChunk, 64),
			runID: r.URL.Query().Get("run"),
		}
		s.logs.add(client)

		// Reader drains control frames and detects disconnect
		go func() {
			defer s.logs.remove(client)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			defer conn.Close()
			for chunk := range client.send {
				if err := conn.WriteJSON(chunk); err != nil {
					return
				}
			}
		}()
	}
}
