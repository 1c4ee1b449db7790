package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/confidant/internal/session"
)

// chatRequest is the body of POST /chat and of each /ws/chat message.
type chatRequest struct {
	Prompt string `json:"prompt"`
}

// wsFrame is one websocket message sent to the client: an event, or the
// end-of-attempt marker.
type wsFrame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

// handleChat streams one chat attempt as server-sent events, one
// "data: <json>" record per event, flushed as it is written.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body := http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		events, err := g.chat.Handle(r.Context(), req.Prompt)
		if errors.Is(err, session.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if err != nil {
			g.logger.Error("chat request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "chat unavailable")
			return
		}
		defer g.metrics.streamOpened("sse")()

		flusher, _ := w.(http.Flusher)
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		// Keep draining after a write error; the session stops on ctx cancel.
		var writeErr error
		for ev := range events {
			if writeErr != nil {
				continue
			}
			if writeErr = writeSSE(w, ev); writeErr != nil {
				g.logger.Debug("sse write failed", "error", writeErr)
				continue
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w io.Writer, ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// handleChatWS serves chat attempts over a websocket. Each text message
// {"prompt": "..."} starts one attempt; its events are sent as JSON text
// frames followed by {"done": true}.
func (g *Gateway) handleChatWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()
		conn.SetReadLimit(g.config.MaxBodyBytes)
		defer g.metrics.streamOpened("websocket")()

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					_ = conn.Close(websocket.StatusNormalClosure, "")
				default:
					g.logger.Debug("websocket read failed", "error", err)
				}
				return
			}

			var req chatRequest
			if err := json.Unmarshal(data, &req); err != nil {
				if !g.sendWS(ctx, conn, wsFrame{Error: "invalid JSON message"}, wsFrame{Done: true}) {
					return
				}
				continue
			}

			if !g.serveAttempt(ctx, conn, req.Prompt) {
				return
			}
		}
	}
}

// serveAttempt relays one attempt to conn. It reports false once the
// connection is no longer writable.
func (g *Gateway) serveAttempt(ctx context.Context, conn *websocket.Conn, prompt string) bool {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := g.chat.Handle(attemptCtx, prompt)
	if err != nil {
		msg := "chat unavailable"
		if errors.Is(err, session.ErrInvalidArgument) {
			msg = "prompt is required"
		}
		return g.sendWS(ctx, conn, wsFrame{Error: msg}, wsFrame{Done: true})
	}

	ok := true
	for ev := range events {
		if !ok {
			continue
		}
		if !g.sendWS(ctx, conn, wsFrame{Content: ev.Content, Error: ev.Error}) {
			ok = false
			cancel()
		}
	}
	return ok && g.sendWS(ctx, conn, wsFrame{Done: true})
}

func (g *Gateway) sendWS(ctx context.Context, conn *websocket.Conn, frames ...wsFrame) bool {
	for _, f := range frames {
		if err := wsjson.Write(ctx, conn, f); err != nil {
			g.logger.Debug("websocket write failed", "error", err)
			return false
		}
	}
	return true
}
