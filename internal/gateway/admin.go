package gateway

import (
	"net/http"

	"github.com/flemzord/confidant/internal/history"
)

// handleProfile returns the profile the session personalizes prompts with.
func (g *Gateway) handleProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.chat.Profile())
	}
}

// handleGetHistory returns the in-memory history as a JSON array of turns.
func (g *Gateway) handleGetHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := g.chat.Snapshot()
		if h == nil {
			h = history.History{}
		}
		writeJSON(w, http.StatusOK, h)
	}
}

// handleClearHistory empties the history, in memory and in the store.
func (g *Gateway) handleClearHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.chat.Clear(r.Context()); err != nil {
			g.logger.Error("clear history failed", "error", err)
			writeError(w, http.StatusInternalServerError, "history not cleared")
			return
		}
		g.logger.Info("history cleared via api")
		w.WriteHeader(http.StatusNoContent)
	}
}
