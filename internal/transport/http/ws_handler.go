package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSHandler upgrades connections and speaks the session wire protocol:
// inbound join_quiz / submit_answer / next_question / end_quiz commands,
// outbound session_info on connect followed by hub events.
type WSHandler struct {
	service  *app.SessionService
	hub      *hub.Hub
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, h *hub.Hub, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		service: service,
		hub:     h,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Nickname string `json:"nickname"`
}

type submitPayload struct {
	ParticipantID string `json:"participantId"`
	QuestionID    string `json:"questionId"`
	OptionID      string `json:"optionId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS attaches one connection to a session. The connection first receives
// a session_info snapshot synthesized from current state, then the event
// stream. Expected user-facing rejections go back on this connection only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing session code", http.StatusBadRequest)
		return
	}

	if _, err := h.service.Snapshot(r.Context(), code); err != nil {
		// Invalid session code at connect time: refuse before upgrading.
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(code)

	// Snapshot after subscribing: anything that changes from here on also
	// reaches this connection as an event, so the client never observes
	// state older than what the snapshot reflects.
	snapshot, err := h.service.Snapshot(r.Context(), code)
	if err != nil {
		h.hub.Unsubscribe(sub)
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(event.Type), Payload: event.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: string(domain.EventSessionInfo), Payload: snapshot}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, code, sub, send, inbound)
	}

	close(closeSignals)
	<-pumpDone
	h.hub.Unsubscribe(sub)
	close(send)
	<-writerDone
	h.service.ReleaseConnection(code)
}

func (h *WSHandler) dispatch(r *http.Request, code string, sub *hub.Subscription, send chan<- outboundMessage, inbound inboundMessage) {
	switch inbound.Type {
	case "join_quiz":
		var payload joinPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Nickname == "" {
			send <- errorMessage("invalid join payload")
			return
		}
		view, err := h.service.Join(r.Context(), code, payload.Nickname)
		if err != nil {
			send <- errorMessage(err.Error())
			return
		}
		h.hub.BindParticipant(sub, view.ID)
		send <- outboundMessage{Type: "joined", Payload: view}

	case "submit_answer":
		var payload submitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid answer payload")
			return
		}
		// The answer_result event comes back through the hub, unicast to
		// this participant's subscription.
		if _, err := h.service.SubmitAnswer(r.Context(), code, payload.ParticipantID, payload.QuestionID, payload.OptionID); err != nil {
			send <- errorMessage(err.Error())
		}

	case "next_question":
		if err := h.service.Advance(r.Context(), code); err != nil {
			send <- errorMessage(err.Error())
		}

	case "end_quiz":
		if err := h.service.End(r.Context(), code); err != nil {
			send <- errorMessage(err.Error())
		}

	default:
		send <- errorMessage("unsupported message type")
	}
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}

// CreateSessionHandler is the host's bootstrap endpoint: POST a quiz id,
// receive the share code for the new session.
type CreateSessionHandler struct {
	service *app.SessionService
}

func NewCreateSessionHandler(service *app.SessionService) *CreateSessionHandler {
	return &CreateSessionHandler{service: service}
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	Code string `json:"code"`
}

func (h *CreateSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	code, err := h.service.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createSessionResponse{Code: code})
}
