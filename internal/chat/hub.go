// Package chat runs the two-party message channel over websockets.
package chat

import (
	"encoding/json"
	"sync"

	"livein/internal/core"
)

// Frame types exchanged over the websocket.
const (
	FrameJoin     = "join"
	FrameHistory  = "history"
	FrameMessage  = "message"
	FrameTyping   = "typing"
	FramePresence = "presence"
	FrameError    = "error"
)

// Frame is the single wire envelope for both directions. Fields are
// populated per frame type; unused fields are omitted.
type Frame struct {
	Type     string             `json:"type"`
	UID      string             `json:"uid,omitempty"`
	Name     string             `json:"name,omitempty"`
	Message  string             `json:"message,omitempty"`
	Messages []core.ChatMessage `json:"messages,omitempty"`
	Stored   *core.ChatMessage  `json:"stored,omitempty"`
	SenderID string             `json:"sender_id,omitempty"`
	Online   []string           `json:"online,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// peer wraps a connection's JSON encoder so concurrent broadcasts don't
// interleave frames.
type peer struct {
	mu      sync.Mutex
	uid     string
	encoder *json.Encoder
}

func newPeer(uid string, encoder *json.Encoder) *peer {
	return &peer{uid: uid, encoder: encoder}
}

func (p *peer) writeFrame(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(f)
}

// Hub tracks rooms by id. A household has exactly one room, but a peer
// may hold several connections (phone plus laptop).
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) room(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if ok {
		return r
	}
	r = newRoom(roomID)
	h.rooms[roomID] = r
	return r
}

type room struct {
	mu          sync.Mutex
	id          string
	subscribers map[*peer]struct{}
}

func newRoom(id string) *room {
	return &room{
		id:          id,
		subscribers: make(map[*peer]struct{}),
	}
}

func (r *room) join(p *peer) {
	r.mu.Lock()
	r.subscribers[p] = struct{}{}
	r.mu.Unlock()
}

func (r *room) leave(p *peer) {
	r.mu.Lock()
	delete(r.subscribers, p)
	r.mu.Unlock()
}

// online lists distinct uids with at least one live connection.
func (r *room) online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	var uids []string
	for p := range r.subscribers {
		if _, ok := seen[p.uid]; ok {
			continue
		}
		seen[p.uid] = struct{}{}
		uids = append(uids, p.uid)
	}
	return uids
}

// broadcast writes a frame to every subscriber, optionally excluding the
// originating peer.
func (r *room) broadcast(f Frame, exclude *peer) {
	r.mu.Lock()
	peers := make([]*peer, 0, len(r.subscribers))
	for p := range r.subscribers {
		if p == exclude {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.Unlock()

	for _, p := range peers {
		// Write errors surface on the peer's own read loop; a dead
		// subscriber shouldn't stop delivery to the rest.
		_ = p.writeFrame(f)
	}
}
