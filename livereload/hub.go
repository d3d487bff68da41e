package livereload

import (
	"sync"

	"github.com/google/uuid"
)

// clientBuffer is how many undelivered messages a client may lag behind
// before further messages to it are dropped.
const clientBuffer = 8

// hub fans messages out to connected browsers.
type hub struct {
	mu      sync.Mutex
	clients map[string]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[string]chan []byte)}
}

func (h *hub) subscribe() (string, <-chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

// broadcast sends msg to every client without blocking and returns how
// many clients received it.
func (h *hub) broadcast(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ch := range h.clients {
		select {
		case ch <- msg:
			n++
		default:
		}
	}
	return n
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}
