package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.QuizService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
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

type startPayload struct {
	Bank  string `json:"bank"`
	Count *int   `json:"count"`
}

type answerPayload struct {
	MessageID string `json:"messageId"`
	Choice    int    `json:"choice"`
}

// ServeWS upgrades HTTP requests to websockets and joins the caller to a channel.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, channelID := q.Get("group"), q.Get("channel")
	userID, displayName := q.Get("user"), q.Get("name")
	if groupID == "" || channelID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing group, channel, user, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		userID:    userID,
		name:      displayName,
		groupID:   webScope(groupID),
		channelID: webScope(channelID),
		send:      make(chan outboundMessage[any], sendBuffer),
	}
	h.hub.join(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// Keep draining so the hub never blocks on this client.
				for range c.send {
				}
				return
			}
		}
	}()

	c.deliver(outboundMessage[any]{Type: "banks", Payload: h.service.ListBanks(c.groupID)})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, c, inbound)
	}

	h.hub.leave(c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, c *client, inbound inboundMessage) {
	ctx := r.Context()
	switch inbound.Type {
	case "start":
		var payload startPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.deliver(errorMessage("invalid start payload"))
				return
			}
		}
		res, err := h.service.Start(ctx, app.StartRequest{
			GroupID:   c.groupID,
			ChannelID: c.channelID,
			Bank:      payload.Bank,
			Count:     payload.Count,
		})
		if err != nil {
			c.deliver(errorMessage(startError(err)))
			return
		}
		_ = h.hub.Notify(ctx, c.channelID, fmt.Sprintf("Starting quiz %q with %d questions.", res.Bank, res.Total))

	case "stop":
		if err := h.service.Stop(ctx, c.channelID); err != nil {
			if errors.Is(err, domain.ErrNothingRunning) {
				c.deliver(errorMessage("Nothing running."))
				return
			}
			c.deliver(errorMessage(err.Error()))
			return
		}
		_ = h.hub.Notify(ctx, c.channelID, "🛑 Quiz stopped.")

	case "score":
		c.deliver(outboundMessage[any]{Type: "notice", Payload: noticePayload{Text: h.service.Scoreboard(ctx, c.channelID)}})

	case "list":
		c.deliver(outboundMessage[any]{Type: "banks", Payload: h.service.ListBanks(c.groupID)})

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.deliver(errorMessage("invalid answer payload"))
			return
		}
		resp := domain.Response{UserID: c.userID, Choice: payload.Choice, Token: payload.MessageID}
		if !h.hub.submit(c.channelID, payload.MessageID, resp) {
			c.deliver(outboundMessage[any]{Type: "outcome", Payload: outcomePayload{
				MessageID: payload.MessageID,
				Outcome:   domain.Outcome{Verdict: domain.VerdictAlreadyAdvanced},
			}})
		}

	default:
		c.deliver(errorMessage("unsupported message type"))
	}
}

func startError(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionExists):
		return "A quiz is already running in this channel. Stop it first."
	case errors.Is(err, domain.ErrEmptyBank):
		return "That bank has no questions."
	default:
		return err.Error()
	}
}

func errorMessage(text string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: text}}
}

// webScope prefixes web group and channel ids so they never address
// another host's chats in the shared stores.
func webScope(id string) string {
	return "web:" + id
}
