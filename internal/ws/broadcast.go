package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/dormouse/backend/internal/lifecycle"
	"github.com/dormouse/backend/internal/monitor"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans lifecycle events and usage samples out to connected
// supervisor clients. It implements lifecycle.Observer and monitor.Sink.
//
// Supervision is out of band: a connected client does not count as
// activity, and because the feed connection is hijacked from the primary
// server it survives dormancy, so a supervisor watching the feed sees the
// stopped event and, after a wake, the next activated one.
type Broadcaster struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	statusHook func() lifecycle.Snapshot
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
	}
}

// SetStatusHook configures the snapshot source for the on-connect status
// message. Must be called before clients connect.
func (b *Broadcaster) SetStatusHook(hook func() lifecycle.Snapshot) {
	b.statusHook = hook
}

// AddClient registers a connection and sends it the current status.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}
	go c.writePump()

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if b.statusHook != nil {
		msg := WSMessage{
			Type:    MsgStatus,
			Payload: StatusPayload{Snapshot: b.statusHook()},
		}
		data, _ := json.Marshal(msg)
		select {
		case c.send <- data:
		default:
		}
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// LifecycleEvent implements lifecycle.Observer.
func (b *Broadcaster) LifecycleEvent(ev lifecycle.Event) {
	b.broadcast(WSMessage{
		Type:    MsgEvent,
		Payload: EventPayload{Event: ev},
	})
}

// EmitUsage implements monitor.Sink.
func (b *Broadcaster) EmitUsage(s monitor.UsageSample) {
	b.broadcast(WSMessage{
		Type: MsgResources,
		Payload: ResourcesPayload{
			MemoryMB: s.MemoryMB(),
			CPULoad:  s.CPULoad1,
		},
	})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
