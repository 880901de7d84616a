package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// CommandRequest is the body of POST /commands.
//
// Either Entity names a configured Home Assistant entity (unique id or
// name), or Protocol, Model, House and Unit address the receiver directly.
type CommandRequest struct {
	Entity   string `json:"entity,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Model    string `json:"model,omitempty"`
	House    string `json:"house,omitempty"`
	Unit     int    `json:"unit,omitempty"`
	Method   string `json:"method"`
	Param    int    `json:"param,omitempty"`
}

// CommandResponse is returned when a command is accepted.
type CommandResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// handleCommand schedules an RF command.
//
// The gateway cannot confirm that a receiver acted on the command, so a
// successful request answers 202 Accepted once the datagrams are queued.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	method, err := protocol.ParseMethod(req.Method)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if method == protocol.MethodDim && (req.Param < 0 || req.Param > 255) {
		writeBadRequest(w, "param must be between 0 and 255")
		return
	}

	ctx := r.Context()
	switch {
	case req.Entity != "":
		if s.bridge == nil {
			writeUnavailable(w, "home assistant bridge is not enabled")
			return
		}
		err = s.bridge.Command(ctx, req.Entity, method, req.Param)
	case req.Protocol != "" && req.House != "":
		err = s.session.Execute(ctx, controller.CommandRequest{
			Protocol: req.Protocol,
			Model:    req.Model,
			House:    req.House,
			Unit:     req.Unit,
			Method:   method,
			Param:    req.Param,
		})
	default:
		writeBadRequest(w, "entity or protocol and house are required")
		return
	}
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	resp := CommandResponse{ID: uuid.NewString(), Status: "accepted"}
	s.metrics.CommandSent()
	s.hub.Broadcast(ChannelCommandSent, map[string]any{
		"id":       resp.ID,
		"entity":   req.Entity,
		"protocol": req.Protocol,
		"model":    req.Model,
		"house":    req.House,
		"unit":     req.Unit,
		"method":   method,
		"param":    req.Param,
		"subject":  r.Context().Value(ctxKeySubject),
	})
	s.logger.Info("command accepted",
		"id", resp.ID,
		"entity", req.Entity,
		"protocol", req.Protocol,
		"method", method.String(),
	)

	writeJSON(w, http.StatusAccepted, resp)
}

// writeCommandError answers with the status classify picks, or 500 for
// anything unexpected.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	if rule, ok := classify(err); ok {
		writeError(w, rule.status, rule.code, err.Error())
		return
	}
	s.logger.Error("command failed", "error", err)
	writeInternalError(w, "failed to send command")
}
