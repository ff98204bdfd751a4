package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdStart  = "quiz_start"
	cmdStop   = "quiz_stop"
	cmdScore  = "quiz_score"
	cmdList   = "quiz_list"
	cmdImport = "quiz_import"
	cmdHelp   = "quiz_help"

	callbackPrefix = "quiz:"
	buttonsPerRow  = 5
	// Telegram rejects callback answers longer than this.
	maxCallbackText = 200
)

func questionText(q domain.Question, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ Question %d/%d\n\n%s\n", index+1, total, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "\n%s. %s", domain.OptionLetter(i), opt)
	}
	if q.Kind == domain.KindMulti {
		b.WriteString("\n\n(any one correct option counts)")
	}
	return b.String()
}

func answerKeyboard(messageID, options int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := 0; i < options; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(domain.OptionLetter(i), callbackData(messageID, i)))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func callbackData(messageID, choice int) string {
	return fmt.Sprintf("%s%d:%d", callbackPrefix, messageID, choice)
}

// parseCallback decodes quiz:<messageID>:<choice>.
func parseCallback(data string) (messageID, choice int, ok bool) {
	if !strings.HasPrefix(data, callbackPrefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(data, callbackPrefix), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	messageID, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	choice, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return messageID, choice, true
}

// parseStartArgs reads "[bank] [count]"; a trailing integer is the count.
func parseStartArgs(args string) (bank string, count *int) {
	fields := strings.Fields(args)
	if n := len(fields); n > 0 {
		if c, err := strconv.Atoi(fields[n-1]); err == nil {
			count = &c
			fields = fields[:n-1]
		}
	}
	return strings.Join(fields, " "), count
}

func verdictText(outcome domain.Outcome) string {
	var text string
	switch outcome.Verdict {
	case domain.VerdictCorrect:
		text = fmt.Sprintf("✅ Correct! Your score: %d", outcome.Score)
	case domain.VerdictIncorrect:
		text = fmt.Sprintf("❌ Wrong. Correct answer: %s", outcome.CorrectLetters)
	case domain.VerdictAlreadyAdvanced:
		text = "⌛ Too late, this question is closed."
	case domain.VerdictInvalid:
		text = "That option is not available."
	}
	if outcome.Rationale != "" && (outcome.Verdict == domain.VerdictCorrect || outcome.Verdict == domain.VerdictIncorrect) {
		text += "\n" + outcome.Rationale
	}
	return truncate(text, maxCallbackText)
}

func announceText(name string, choice int, outcome domain.Outcome) string {
	if outcome.Verdict == domain.VerdictCorrect {
		text := fmt.Sprintf("✅ %s picked %s. Correct!", name, domain.OptionLetter(choice))
		if outcome.Rationale != "" {
			text += "\n💡 " + outcome.Rationale
		}
		return text
	}
	text := fmt.Sprintf("❌ %s picked %s. Correct answer: %s", name, domain.OptionLetter(choice), outcome.CorrectLetters)
	if outcome.Rationale != "" {
		text += "\n💡 " + outcome.Rationale
	}
	return text
}

func banksText(banks []domain.BankSummary, last string) string {
	if len(banks) == 0 {
		return "No banks yet."
	}
	var b strings.Builder
	b.WriteString("📚 Banks:")
	for _, bank := range banks {
		fmt.Fprintf(&b, "\n• %s (%d)", bank.Name, bank.Size)
		if bank.Name == last {
			b.WriteString(" ⭐")
		}
	}
	return b.String()
}

func importText(res app.ImportResult) string {
	text := fmt.Sprintf("📥 Imported %q: %d questions", res.Name, res.Kept)
	if res.Dropped > 0 {
		text += fmt.Sprintf(" (%d of %d rows skipped)", res.Dropped, res.Rows)
	}
	return text + "."
}

const helpText = `Quiz commands:
/quiz_start [bank] [count] - start a quiz in this chat
/quiz_stop - stop the running quiz
/quiz_score - show the live scoreboard
/quiz_list - list question banks
/quiz_import [name] - admins: import a CSV (attach it or reply to it)
/quiz_help - show this help

CSV columns: question, a..z or options, answer (letters, numbers or text), optional type and explanation.`

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
