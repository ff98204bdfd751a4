package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"channel-quiz-service/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of *tgbotapi.BotAPI the quiz host uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type windowKey struct {
	chatID    int64
	messageID int
}

type openWindow struct {
	responses chan domain.Response
}

// Platform renders quiz traffic as Telegram messages with inline keyboards.
// It is the Presenter, Notifier, IdentityResolver and Authorizer of the bot host.
type Platform struct {
	api API

	mu      sync.Mutex
	windows map[windowKey]*openWindow
	options map[windowKey]int
	names   map[string]string
}

func NewPlatform(api API) *Platform {
	return &Platform{
		api:     api,
		windows: make(map[windowKey]*openWindow),
		options: make(map[windowKey]int),
		names:   make(map[string]string),
	}
}

func (p *Platform) Present(_ context.Context, channelID string, q domain.Question, index, total int) (domain.MessageRef, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return domain.MessageRef{}, err
	}
	sent, err := p.api.Send(tgbotapi.NewMessage(chatID, questionText(q, index, total)))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("send question: %w", err)
	}

	p.mu.Lock()
	p.options[windowKey{chatID, sent.MessageID}] = len(q.Options)
	p.mu.Unlock()
	return domain.MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// OpenWindow attaches the answer keyboard; buttons exist only while the window is open.
func (p *Platform) OpenWindow(_ context.Context, ref domain.MessageRef, timeout time.Duration) (<-chan domain.Response, error) {
	key, err := refKey(ref)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	options := p.options[key]
	delete(p.options, key)
	w := &openWindow{responses: make(chan domain.Response, 64)}
	p.windows[key] = w
	p.mu.Unlock()

	markup := answerKeyboard(key.messageID, options)
	if _, err := p.api.Request(tgbotapi.NewEditMessageReplyMarkup(key.chatID, key.messageID, markup)); err != nil {
		p.mu.Lock()
		delete(p.windows, key)
		p.mu.Unlock()
		return nil, fmt.Errorf("attach keyboard: %w", err)
	}
	log.Printf("window %d open in chat %d for %s", key.messageID, key.chatID, timeout)
	return w.responses, nil
}

func (p *Platform) CloseWindow(_ context.Context, ref domain.MessageRef, reason domain.CloseReason) error {
	key, err := refKey(ref)
	if err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.windows, key)
	p.mu.Unlock()

	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := p.api.Request(tgbotapi.NewEditMessageReplyMarkup(key.chatID, key.messageID, empty)); err != nil {
		return classify(err)
	}
	return nil
}

// Acknowledge answers the responder's button press and, for the response that
// closed the window, tells the chat.
func (p *Platform) Acknowledge(ctx context.Context, ref domain.MessageRef, resp domain.Response, outcome domain.Outcome) error {
	if resp.Token != "" {
		if _, err := p.api.Request(tgbotapi.NewCallback(resp.Token, verdictText(outcome))); err != nil {
			if err := classify(err); !errors.Is(err, domain.ErrInteractionExpired) {
				return err
			}
		}
	}
	if outcome.Verdict != domain.VerdictCorrect && outcome.Verdict != domain.VerdictIncorrect {
		return nil
	}
	name, err := p.DisplayName(ctx, resp.UserID)
	if err != nil {
		name = "User " + resp.UserID
	}
	return p.Notify(ctx, ref.ChannelID, announceText(name, resp.Choice, outcome))
}

func (p *Platform) Notify(_ context.Context, channelID, text string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	if _, err := p.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (p *Platform) DisplayName(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := p.names[userID]; ok && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("unknown user %s", userID)
}

// IsAdmin treats private chats as owned by the caller; elsewhere the caller
// must be a chat administrator or the creator.
func (p *Platform) IsAdmin(_ context.Context, caller domain.Caller) (bool, error) {
	if caller.Admin {
		return true, nil
	}
	chatID, err := parseChatID(caller.ChannelID)
	if err != nil {
		return false, err
	}
	userID, err := strconv.ParseInt(caller.UserID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid user id %q: %w", caller.UserID, err)
	}
	if chatID == userID {
		return true, nil
	}
	member, err := p.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.IsAdministrator() || member.IsCreator(), nil
}

// remember caches a user's display name for scoreboards.
func (p *Platform) remember(u *tgbotapi.User) {
	if u == nil {
		return
	}
	if name := displayName(u); name != "" {
		p.mu.Lock()
		p.names[strconv.FormatInt(u.ID, 10)] = name
		p.mu.Unlock()
	}
}

// submit routes a button press to its open window. It reports false when the
// window has already closed.
func (p *Platform) submit(chatID int64, messageID int, resp domain.Response) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[windowKey{chatID, messageID}]
	if !ok {
		return false
	}
	select {
	case w.responses <- resp:
		return true
	default:
		return false
	}
}

// chatScope is the prefix that keeps telegram chats apart from other hosts'
// channels in the shared session store and bank registry.
const chatScope = "tg:"

// channelKey turns a chat id into the channel and group id the quiz core sees.
func channelKey(chatID int64) string {
	return chatScope + strconv.FormatInt(chatID, 10)
}

func parseChatID(channelID string) (int64, error) {
	raw, ok := strings.CutPrefix(channelID, chatScope)
	if !ok {
		return 0, fmt.Errorf("channel %q is not a telegram chat", channelID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}
	return id, nil
}

func refKey(ref domain.MessageRef) (windowKey, error) {
	chatID, err := parseChatID(ref.ChannelID)
	if err != nil {
		return windowKey{}, err
	}
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return windowKey{}, fmt.Errorf("invalid message id %q: %w", ref.MessageID, err)
	}
	return windowKey{chatID, messageID}, nil
}

// classify maps Telegram's stale-interaction errors to domain.ErrInteractionExpired.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "query is too old"),
		strings.Contains(msg, "query ID is invalid"),
		strings.Contains(msg, "message is not modified"),
		strings.Contains(msg, "message to edit not found"):
		return domain.ErrInteractionExpired
	default:
		return err
	}
}
