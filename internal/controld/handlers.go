package controld

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Flight operation responses always carry HTTP 200 with the structured
// outcome in the body; failure is expressed by the outcome's success
// field, not the status code. Only unparseable requests get a 400.

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Connect())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Disconnect())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Battery())
}

func (s *Server) handleTakeoff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Takeoff())
}

func (s *Server) handleLand(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Land())
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Emergency())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.ResetEmergency())
}

type moveRequest struct {
	Direction string `json:"direction"`
	Distance  int    `json:"distance"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeRequest(w, r, &req, func(q map[string]string) error {
		req.Direction = q["direction"]
		n, err := strconv.Atoi(q["distance"])
		if err != nil {
			return err
		}
		req.Distance = n
		return nil
	}) {
		return
	}

	writeJSON(w, http.StatusOK, s.ctrl.Move(req.Direction, req.Distance))
}

type rotateRequest struct {
	Direction string `json:"direction"`
	Degrees   int    `json:"degrees"`
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !decodeRequest(w, r, &req, func(q map[string]string) error {
		req.Direction = q["direction"]
		n, err := strconv.Atoi(q["degrees"])
		if err != nil {
			return err
		}
		req.Degrees = n
		return nil
	}) {
		return
	}

	writeJSON(w, http.StatusOK, s.ctrl.Rotate(req.Direction, req.Degrees))
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.StartStream())
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.StopStream())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"log":     s.ctrl.OperationLog(),
	})
}

// decodeRequest fills v from the JSON body, falling back to query
// parameters via fromQuery when no body is present. Returns false after
// writing a 400 when the request is unparseable.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any, fromQuery func(map[string]string) error) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			writeBadRequest(w, "invalid json body: "+err.Error())
			return false
		}
		return true
	}

	q := map[string]string{}
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			q[key] = vals[0]
		}
	}
	if err := fromQuery(q); err != nil {
		writeBadRequest(w, "invalid request parameters: "+err.Error())
		return false
	}
	return true
}
