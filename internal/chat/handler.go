package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/net/websocket"

	"livein/internal/core"
)

// Messenger persists messages and serves history. The hub never touches
// storage directly; the service layer decides what a send entails.
type Messenger interface {
	Send(ctx context.Context, sender core.Identity, body string) (core.ChatMessage, error)
	History(ctx context.Context, limit int) ([]core.ChatMessage, error)
}

const historyLimit = 100

// Tolerate a few malformed frames before dropping the connection.
const maxDecodeErrors = 5

// NewHandler mounts the websocket endpoint. The first frame must be a
// join carrying the member's uid; everything before that is rejected.
func NewHandler(hub *Hub, messenger Messenger, household core.Household) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, hub, messenger, household)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

func handleConn(conn *websocket.Conn, hub *Hub, messenger Messenger, household core.Household) {
	defer conn.Close()

	ctx := context.Background()
	if req := conn.Request(); req != nil {
		ctx = req.Context()
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	// Wait for the join frame before admitting the connection.
	var join Frame
	if err := decoder.Decode(&join); err != nil {
		return
	}
	if join.Type != FrameJoin {
		_ = encoder.Encode(Frame{Type: FrameError, Error: "expected join frame"})
		return
	}
	member, ok := household.MemberByUID(join.UID)
	if !ok {
		_ = encoder.Encode(Frame{Type: FrameError, Error: "unknown member"})
		return
	}

	p := newPeer(member.UID, encoder)
	roomID := household.ID()
	r := hub.room(core.RoomID(household.Members[0].UID, household.Members[1].UID))
	r.join(p)
	defer func() {
		r.leave(p)
		r.broadcast(Frame{Type: FramePresence, Online: r.online()}, nil)
	}()

	slog.InfoContext(ctx, "Chat peer joined", "uid", member.UID, "room", r.id, "household", roomID)

	// Replay recent history to the joining peer only.
	history, err := messenger.History(ctx, historyLimit)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load chat history", "error", err, "room", r.id)
		_ = p.writeFrame(Frame{Type: FrameError, Error: "history unavailable"})
	} else {
		_ = p.writeFrame(Frame{Type: FrameHistory, Messages: history})
	}

	r.broadcast(Frame{Type: FramePresence, Online: r.online()}, nil)

	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = p.writeFrame(Frame{Type: FrameError, Error: "invalid frame payload"})
			if decodeErrors >= maxDecodeErrors {
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Type {
		case FrameMessage:
			sender := core.Identity{UID: member.UID, Name: member.Name}
			stored, err := messenger.Send(ctx, sender, frame.Message)
			if err != nil {
				slog.WarnContext(ctx, "Chat message rejected", "error", err, "uid", member.UID)
				_ = p.writeFrame(Frame{Type: FrameError, Error: err.Error()})
				continue
			}
			// Everyone gets the stored form, sender included, so all
			// clients render the same id and timestamp.
			r.broadcast(Frame{Type: FrameMessage, Stored: &stored}, nil)

		case FrameTyping:
			r.broadcast(Frame{Type: FrameTyping, SenderID: member.UID}, p)

		default:
			_ = p.writeFrame(Frame{Type: FrameError, Error: "unknown frame type"})
		}
	}
}
