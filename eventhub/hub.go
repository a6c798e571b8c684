// Package eventhub is the localization service's event-publication
// surface: subscribers receive Connect, InfoUpdate, Disconnect, and
// PositionUpdate events as the service processes datagrams. It follows
// the teacher's websocket-hub shape (web/server.go's "/ws" wiring) but is
// transport-agnostic at its core — Subscribe/Publish works for in-process
// subscribers, and Hub additionally serves a websocket broadcast for
// remote ones.
package eventhub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventKind identifies which of the four service events a message is.
type EventKind string

const (
	EventConnect        EventKind = "connect"
	EventInfoUpdate     EventKind = "info_update"
	EventDisconnect     EventKind = "disconnect"
	EventPositionUpdate EventKind = "position_update"
)

// Event is a single published occurrence. Payload is one of
// ConnectPayload, InfoUpdatePayload, DisconnectPayload, or
// PositionUpdatePayload, keyed by Kind.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Payload interface{} `json:"payload"`
}

// ConnectPayload accompanies EventConnect.
type ConnectPayload struct {
	Address string  `json:"address"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	FOV     float64 `json:"fov"`
}

// InfoUpdatePayload accompanies EventInfoUpdate.
type InfoUpdatePayload struct {
	Address string  `json:"address"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	FOV     float64 `json:"fov"`
}

// DisconnectPayload accompanies EventDisconnect.
type DisconnectPayload struct {
	Address string `json:"address"`
}

// PositionUpdatePayload accompanies EventPositionUpdate.
type PositionUpdatePayload struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Rotation     float64 `json:"rotation"`
	Extrapolated bool    `json:"extrapolated"`
}

// Subscriber receives published events. Delivery is fire-and-forget:
// Publish calls Notify synchronously on the publishing goroutine and
// expects no reply, so a slow Notify delays the publisher.
type Subscriber interface {
	Notify(Event)
}

// SubscriberFunc adapts a plain function to a Subscriber.
type SubscriberFunc func(Event)

// Notify calls f.
func (f SubscriberFunc) Notify(e Event) { f(e) }

// Hub is the reader-writer-locked subscription list the service publishes
// through. The service holds no back-reference to subscriber owners;
// subscribers that need to call back into the service do so through its
// public handle, not through the hub.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int

	wsMu     sync.Mutex
	wsConns  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

// New returns an empty event hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[int]Subscriber),
		wsConns:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscription is a handle returned by Subscribe; pass it to Unsubscribe
// to stop receiving events.
type Subscription int

// Subscribe registers sub to receive every future published event.
func (h *Hub) Subscribe(sub Subscriber) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub
	return Subscription(id)
}

// Unsubscribe removes a previously registered subscriber.
func (h *Hub) Unsubscribe(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, int(sub))
}

// Publish delivers e to every in-process subscriber and every connected
// websocket client, in the order the service computed them.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.Notify(e)
	}

	h.broadcastWS(e)
}

func (h *Hub) broadcastWS(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("eventhub: marshal event: %v", err)
		return
	}

	h.wsMu.Lock()
	defer h.wsMu.Unlock()
	for conn := range h.wsConns {
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			conn.Close()
			delete(h.wsConns, conn)
		}
	}
}

// ServeWS upgrades r to a websocket connection and registers it to
// receive every future published event as JSON text frames.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("eventhub: upgrade: %v", err)
		return
	}

	h.wsMu.Lock()
	h.wsConns[conn] = struct{}{}
	h.wsMu.Unlock()

	go func() {
		defer func() {
			h.wsMu.Lock()
			delete(h.wsConns, conn)
			h.wsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
