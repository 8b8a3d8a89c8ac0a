package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aurea-hq/underwriting/internal/app"
)

// handleAssessSSE streams one assessment as server-sent events. Each
// lifecycle event becomes one SSE message named after its kind; the stream
// ends after the done sentinel.
func (s *Server) handleAssessSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	req := app.AssessRequest{
		Address:  r.URL.Query().Get("address"),
		Postcode: r.URL.Query().Get("postcode"),
		UserID:   callerID(r),
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, errc := s.app.AssessStream(r.Context(), req)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("Failed to encode stream event.", "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
		flusher.Flush()
	}
	if err := <-errc; err != nil && !clientGone(r, err) {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonError(err))
		flusher.Flush()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// identity comes from the header, not the origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsRequest is the first client frame on the assessment websocket.
type wsRequest struct {
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
}

// handleAssessWS streams one assessment over a websocket. The client sends a
// single JSON request frame; the server answers with one JSON frame per
// lifecycle event and closes after done.
func (s *Server) handleAssessWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	var first wsRequest
	if err := conn.ReadJSON(&first); err != nil {
		s.writeWSError(conn, fmt.Errorf("invalid request frame: %w", err))
		return
	}
	req := app.AssessRequest{Address: first.Address, Postcode: first.Postcode, UserID: callerID(r)}
	if err := req.Validate(); err != nil {
		s.writeWSError(conn, err)
		return
	}

	events, errc := s.app.AssessStream(r.Context(), req)
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("Websocket write failed, client gone.", "error", err)
			return
		}
	}
	if err := <-errc; err != nil && !clientGone(r, err) {
		s.writeWSError(conn, err)
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) writeWSError(conn *websocket.Conn, err error) {
	_ = conn.WriteJSON(map[string]string{"kind": "error", "error": err.Error()})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
}

func jsonError(err error) []byte {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return data
}
