package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

const maxCallbackBodySize = 1 << 20 // 1MB

// callbackPayload is the WorkTool message callback shape.
type callbackPayload struct {
	MessageID    string `json:"messageId"`
	Spoken       string `json:"spoken"`
	RawSpoken    string `json:"rawSpoken"`
	ReceivedName string `json:"receivedName"`
	GroupName    string `json:"groupName"`
	GroupRemark  string `json:"groupRemark"`
	RoomType     int    `json:"roomType"`
	AtMe         bool   `json:"atMe"`
	TextType     int    `json:"textType"`
}

type callbackResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleHandshake answers the WorkTool connectivity check.
func handleHandshake(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","message":"接口正常"}`))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	defer r.Body.Close()

	var payload callbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeCallbackResponse(w, callbackResponse{Code: 1, Message: "invalid payload"})
		return
	}

	msg := inboundFrom(payload)
	res, err := s.handler.HandleMessage(r.Context(), msg)
	if err != nil {
		// Ack anyway: a non-200 would only make the provider hammer us with
		// the same broken payload.
		log.Error().Err(err).Str("group", msg.GroupID).Msg("message handling failed")
		writeCallbackResponse(w, callbackResponse{Code: 1, Message: "processing failed"})
		return
	}

	if res.Reply != "" && s.deliverer != nil {
		group := payload.GroupName
		if group == "" {
			group = res.GroupID
		}
		if err := s.deliverer.SendGroupText(r.Context(), group, res.Reply); err != nil {
			log.Error().Err(err).Str("group", group).Msg("reply delivery failed")
		}
	}

	resp := callbackResponse{Code: 0, Message: "success"}
	if res.Reply != "" {
		resp.Data = map[string]any{"reply": res.Reply}
	}
	writeCallbackResponse(w, resp)
}

// inboundFrom maps the WorkTool callback onto the core message shape. The
// group remark, when present, is the stable group key; the display name
// changes whenever an admin renames the group.
func inboundFrom(p callbackPayload) contractx.InboundMessage {
	groupID := strings.TrimSpace(p.GroupRemark)
	if groupID == "" {
		groupID = strings.TrimSpace(p.GroupName)
	}
	text := p.RawSpoken
	if strings.TrimSpace(text) == "" {
		text = p.Spoken
	}
	return contractx.InboundMessage{
		MessageID: strings.TrimSpace(p.MessageID),
		GroupID:   groupID,
		GroupName: strings.TrimSpace(p.GroupName),
		Sender:    strings.TrimSpace(p.ReceivedName),
		Text:      text,
		AtBot:     p.AtMe,
	}
}

func writeCallbackResponse(w http.ResponseWriter, resp callbackResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode callback response")
	}
}
