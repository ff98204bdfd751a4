package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot turns Telegram updates into quiz commands and button presses.
type Bot struct {
	api      API
	platform *Platform
	service  *app.QuizService
	importer *app.Importer
	banks    *app.BankRegistry
}

func NewBot(api API, platform *Platform, service *app.QuizService, importer *app.Importer, banks *app.BankRegistry) *Bot {
	return &Bot{
		api:      api,
		platform: platform,
		service:  service,
		importer: importer,
		banks:    banks,
	}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	log.Println("starting telegram polling...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegram update %d panicked: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	b.platform.remember(cb.From)
	messageID, choice, ok := parseCallback(cb.Data)
	if !ok || cb.Message == nil || cb.From == nil {
		return
	}

	resp := domain.Response{
		UserID: strconv.FormatInt(cb.From.ID, 10),
		Choice: choice,
		Token:  cb.ID,
	}
	if b.platform.submit(cb.Message.Chat.ID, messageID, resp) {
		return
	}
	// Window already closed: answer the press here so the button stops spinning.
	closed := tgbotapi.NewCallback(cb.ID, verdictText(domain.Outcome{Verdict: domain.VerdictAlreadyAdvanced}))
	if _, err := b.api.Request(closed); err != nil {
		if err := classify(err); !errors.Is(err, domain.ErrInteractionExpired) {
			log.Printf("answer stale callback: %v", err)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.platform.remember(msg.From)
	chatID := channelKey(msg.Chat.ID)

	switch msg.Command() {
	case cmdStart:
		bank, count := parseStartArgs(msg.CommandArguments())
		res, err := b.service.Start(ctx, app.StartRequest{
			GroupID:   chatID,
			ChannelID: chatID,
			Bank:      bank,
			Count:     count,
		})
		if err != nil {
			b.reply(msg, startError(err))
			return
		}
		b.reply(msg, fmt.Sprintf("🎯 Starting quiz %q with %d questions. You have %s per question.", res.Bank, res.Total, b.service.Window()))

	case cmdStop:
		if err := b.service.Stop(ctx, chatID); err != nil {
			if errors.Is(err, domain.ErrNothingRunning) {
				b.reply(msg, "Nothing running.")
				return
			}
			b.reply(msg, err.Error())
			return
		}
		b.reply(msg, "🛑 Quiz stopped.")

	case cmdScore:
		b.reply(msg, b.service.Scoreboard(ctx, chatID))

	case cmdList:
		b.reply(msg, banksText(b.service.ListBanks(chatID), b.banks.LastUsed(chatID)))

	case cmdImport:
		b.handleImport(ctx, msg, chatID)

	case cmdHelp:
		b.reply(msg, helpText)
	}
}

func (b *Bot) handleImport(ctx context.Context, msg *tgbotapi.Message, chatID string) {
	doc := msg.Document
	if doc == nil && msg.ReplyToMessage != nil {
		doc = msg.ReplyToMessage.Document
	}
	if msg.From == nil {
		return
	}
	if doc == nil {
		b.reply(msg, "Attach a CSV file to /quiz_import or reply to one with it.")
		return
	}

	caller := domain.Caller{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		GroupID:   chatID,
		ChannelID: chatID,
	}
	// Resolve the download link only after the caller is known to be an admin.
	admin, err := b.platform.IsAdmin(ctx, caller)
	if err != nil {
		log.Printf("admin check in chat %s: %v", chatID, err)
	}
	if !admin {
		b.reply(msg, importError(domain.ErrForbidden))
		return
	}
	caller.Admin = true

	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		b.reply(msg, importError(fmt.Errorf("%w: %w", domain.ErrTransport, err)))
		return
	}

	res, err := b.importer.Import(ctx, app.ImportRequest{
		Caller:   caller,
		GroupID:  chatID,
		Name:     msg.CommandArguments(),
		URL:      url,
		FileName: doc.FileName,
	})
	if err != nil {
		log.Printf("import in chat %s failed: %v", chatID, err)
		b.reply(msg, importError(err))
		return
	}
	b.reply(msg, importText(res))
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		log.Printf("reply in chat %d: %v", msg.Chat.ID, err)
	}
}

func startError(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionExists):
		return "A quiz is already running here. Use /quiz_stop first."
	case errors.Is(err, domain.ErrBankNotFound):
		return "Unknown bank. Use /quiz_list to see what is available."
	case errors.Is(err, domain.ErrEmptyBank):
		return "That bank has no questions."
	default:
		return "Could not start the quiz: " + err.Error()
	}
}

func importError(err error) string {
	var parseErr *domain.ParseError
	var emptyErr *domain.EmptyResultError
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return "Only chat admins can import question banks."
	case errors.As(err, &parseErr):
		return fmt.Sprintf("Could not read that CSV. It needs question, answer and options (a..z or options) columns. Found: %s", strings.Join(parseErr.Headers, ", "))
	case errors.As(err, &emptyErr):
		return fmt.Sprintf("No valid questions in %d rows. Headers: %s", emptyErr.Rows, strings.Join(emptyErr.Headers, ", "))
	case errors.Is(err, domain.ErrTransport):
		return "Could not download the file. Please try again."
	case errors.Is(err, domain.ErrPersistence):
		return "The bank is usable now but could not be saved; it will be lost on restart."
	default:
		return "Import failed: " + err.Error()
	}
}
