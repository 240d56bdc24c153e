package engine

import (
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// handleSubscribeAll upgrades /ws/logs into a global log subscription.
func (s *Server) handleSubscribeAll(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn, nil)
}

// handleSubscribeService upgrades /ws/logs/{serviceID} into a
// subscription filtered to one mock service.
func (s *Server) handleSubscribeService(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("serviceID"))
	if err != nil {
		http.Error(w, "invalid service id", http.StatusBadRequest)
		return
	}
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn, &id)
}
