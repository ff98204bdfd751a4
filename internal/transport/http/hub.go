package http

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"channel-quiz-service/internal/domain"
	"github.com/google/uuid"
)

const (
	sendBuffer     = 32
	responseBuffer = 64
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type noticePayload struct {
	Text string `json:"text"`
}

type optionPayload struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

type questionPayload struct {
	MessageID string          `json:"messageId"`
	Index     int             `json:"index"`
	Total     int             `json:"total"`
	Prompt    string          `json:"prompt"`
	Kind      domain.Kind     `json:"kind"`
	Options   []optionPayload `json:"options"`
}

type closedPayload struct {
	MessageID string             `json:"messageId"`
	Reason    domain.CloseReason `json:"reason"`
}

type outcomePayload struct {
	MessageID string `json:"messageId"`
	domain.Outcome
}

// client is one websocket connection joined to a channel.
type client struct {
	userID    string
	name      string
	groupID   string
	channelID string
	send      chan outboundMessage[any]
}

// deliver drops the message when the client is not keeping up.
func (c *client) deliver(msg outboundMessage[any]) {
	select {
	case c.send <- msg:
	default:
		log.Printf("ws client %s in channel %s is slow, dropping %s", c.userID, c.channelID, msg.Type)
	}
}

type room struct {
	clients map[*client]struct{}
	windows map[string]chan domain.Response
}

// Hub fans quiz traffic out to websocket clients grouped by channel. It is the
// Presenter, Notifier and IdentityResolver of the web host.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	names map[string]string
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		names: make(map[string]string),
	}
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.roomLocked(c.channelID)
	r.clients[c] = struct{}{}
	h.names[c.userID] = c.name
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[c.channelID]
	if !ok {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 && len(r.windows) == 0 {
		delete(h.rooms, c.channelID)
	}
}

func (h *Hub) roomLocked(channelID string) *room {
	r, ok := h.rooms[channelID]
	if !ok {
		r = &room{
			clients: make(map[*client]struct{}),
			windows: make(map[string]chan domain.Response),
		}
		h.rooms[channelID] = r
	}
	return r
}

func (h *Hub) broadcast(channelID string, msg outboundMessage[any]) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[channelID]
	if !ok {
		return
	}
	for c := range r.clients {
		c.deliver(msg)
	}
}

// submit routes an answer into the open window of messageID. It reports false
// when the window is closed or unknown.
func (h *Hub) submit(channelID, messageID string, resp domain.Response) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[channelID]
	if !ok {
		return false
	}
	responses, ok := r.windows[messageID]
	if !ok {
		return false
	}
	select {
	case responses <- resp:
		return true
	default:
		return false
	}
}

func (h *Hub) Present(_ context.Context, channelID string, q domain.Question, index, total int) (domain.MessageRef, error) {
	ref := domain.MessageRef{ChannelID: channelID, MessageID: uuid.NewString()}
	options := make([]optionPayload, len(q.Options))
	for i, opt := range q.Options {
		options[i] = optionPayload{Letter: domain.OptionLetter(i), Text: opt}
	}
	h.broadcast(channelID, outboundMessage[any]{Type: "question", Payload: questionPayload{
		MessageID: ref.MessageID,
		Index:     index + 1,
		Total:     total,
		Prompt:    q.Prompt,
		Kind:      q.Kind,
		Options:   options,
	}})
	return ref, nil
}

func (h *Hub) OpenWindow(_ context.Context, ref domain.MessageRef, timeout time.Duration) (<-chan domain.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.roomLocked(ref.ChannelID)
	if _, ok := r.windows[ref.MessageID]; ok {
		return nil, fmt.Errorf("window %s already open", ref.MessageID)
	}
	responses := make(chan domain.Response, responseBuffer)
	r.windows[ref.MessageID] = responses
	log.Printf("window %s open in channel %s for %s", ref.MessageID, ref.ChannelID, timeout)
	return responses, nil
}

func (h *Hub) CloseWindow(_ context.Context, ref domain.MessageRef, reason domain.CloseReason) error {
	h.mu.Lock()
	if r, ok := h.rooms[ref.ChannelID]; ok {
		delete(r.windows, ref.MessageID)
	}
	h.mu.Unlock()
	h.broadcast(ref.ChannelID, outboundMessage[any]{Type: "closed", Payload: closedPayload{MessageID: ref.MessageID, Reason: reason}})
	return nil
}

// Acknowledge answers the responder only; other players just see the window close.
func (h *Hub) Acknowledge(_ context.Context, ref domain.MessageRef, resp domain.Response, outcome domain.Outcome) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[ref.ChannelID]
	if !ok {
		return domain.ErrInteractionExpired
	}
	delivered := false
	for c := range r.clients {
		if c.userID == resp.UserID {
			c.deliver(outboundMessage[any]{Type: "outcome", Payload: outcomePayload{MessageID: ref.MessageID, Outcome: outcome}})
			delivered = true
		}
	}
	if !delivered {
		return domain.ErrInteractionExpired
	}
	return nil
}

func (h *Hub) Notify(_ context.Context, channelID, text string) error {
	h.broadcast(channelID, outboundMessage[any]{Type: "notice", Payload: noticePayload{Text: text}})
	return nil
}

func (h *Hub) DisplayName(_ context.Context, userID string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if name, ok := h.names[userID]; ok && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("unknown user %s", userID)
}
