package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mschirtzinger/todosync/internal/notify"
)

// Client and server event names on the WebSocket.
const (
	EventJoinList    = "joinList"
	EventLeaveList   = "leaveList"
	EventJoinedList  = "joinedList"
	EventLeftList    = "leftList"
	EventItemUpdated = "itemUpdated"
	EventItemDeleted = "itemDeleted"
	EventError       = "error"
)

const (
	writeTimeout  = 5 * time.Second
	sendQueueSize = 64
)

var (
	errClientClosed = errors.New("client closed")
	errClientSlow   = errors.New("client send queue full")
)

// Message is the envelope for every WebSocket frame in either direction.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var eventNames = map[notify.EventType]string{
	notify.ItemUpdated: EventItemUpdated,
	notify.ItemDeleted: EventItemDeleted,
}

// client is one WebSocket connection. It subscribes to lists as a
// notify.Subscriber; outbound frames go through a single writer.
type client struct {
	id        string
	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Send queues the event without blocking. A client that cannot keep up
// gets an error and is dropped by the notifier.
func (c *client) Send(ev notify.Event) error {
	name, ok := eventNames[ev.Type]
	if !ok {
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return c.enqueue(name, ev.Item)
}

func (c *client) enqueue(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", event, err)
	}
	frame, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", event, err)
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errClientSlow
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

// handleWebSocket upgrades the connection and serves it until the client
// disconnects or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		writeError(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	s.addClient(c)

	ctx, cancel := context.WithCancel(s.ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	defer func() {
		cancel()
		c.close()
		<-writerDone
		s.hub.UnsubscribeAll(c)
		s.removeClient(c)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.enqueue(EventError, "malformed message")
			continue
		}

		switch msg.Event {
		case EventJoinList, EventLeaveList:
			var listID int64
			if err := json.Unmarshal(msg.Data, &listID); err != nil {
				_ = c.enqueue(EventError, fmt.Sprintf("%s expects a numeric list id", msg.Event))
				continue
			}
			if msg.Event == EventJoinList {
				s.hub.Subscribe(listID, c)
				_ = c.enqueue(EventJoinedList, listID)
			} else {
				s.hub.Unsubscribe(notify.Handle{ListID: listID, SubscriberID: c.ID()})
				_ = c.enqueue(EventLeftList, listID)
			}
		default:
			_ = c.enqueue(EventError, fmt.Sprintf("unknown event %q", msg.Event))
		}
	}
}

func (s *Server) addClient(c *client) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debugf("Client %s connected (total: %d)", c.id, count)
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debugf("Client %s disconnected (total: %d)", c.id, count)
}
