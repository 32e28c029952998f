package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsInbound is one chat message from a websocket client.
type wsInbound struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// wsOutbound is one frame of a streamed reply. Token frames carry text;
// the final frame has Done=true; Error frames end the reply early.
type wsOutbound struct {
	Token string `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// streamTimeout bounds one reply generation end to end.
const streamTimeout = 5 * time.Minute

// handleWS serves a persistent chat socket. Each inbound message produces
// a stream of outbound frames; messages on the same socket are handled
// sequentially. The socket closes when the client disconnects or sends a
// malformed frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // LAN appliance, origin is not a trust boundary here
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return // disconnect or bad frame
		}
		if in.UserID == "" || in.SessionID == "" || in.Message == "" {
			_ = wsjson.Write(ctx, conn, wsOutbound{Error: "user_id, session_id, and message are required", Done: true})
			continue
		}

		if err := s.streamReply(ctx, conn, in); err != nil {
			return
		}
	}
}

// streamReply runs one turn and relays its chunks. Returns an error only
// when the socket itself is no longer writable.
func (s *Server) streamReply(ctx context.Context, conn *websocket.Conn, in wsInbound) error {
	turnCtx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	stream, err := s.engine.ChatStream(turnCtx, in.UserID, in.SessionID, in.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("stream start failed")
		return wsjson.Write(ctx, conn, wsOutbound{Error: "internal error", Done: true})
	}

	for chunk := range stream {
		switch {
		case chunk.Err != nil:
			return wsjson.Write(ctx, conn, wsOutbound{Error: chunk.Err.Error(), Done: true})
		case chunk.Done:
			return wsjson.Write(ctx, conn, wsOutbound{Done: true})
		default:
			if err := wsjson.Write(ctx, conn, wsOutbound{Token: chunk.Token}); err != nil {
				cancel() // stop generation, the client is gone
				return err
			}
		}
	}
	// Stream closed without a Done chunk (cancellation); finish the frame
	// sequence anyway so well-behaved clients unblock.
	return wsjson.Write(ctx, conn, wsOutbound{Done: true})
}
