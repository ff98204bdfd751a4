// Package csvbank turns loosely formatted CSV exports into validated question banks.
package csvbank

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"channel-quiz-service/internal/domain"
)

// Meta describes the raw input for diagnostics.
type Meta struct {
	Rows    int      `json:"rows"`
	Headers []string `json:"headers"`
}

// Result is the outcome of a parse: the kept questions plus input metadata.
type Result struct {
	Items []domain.Question `json:"items"`
	Meta  Meta              `json:"meta"`
}

var (
	lineSplit    = regexp.MustCompile(`\r\n|\r|\n`)
	letterPrefix = regexp.MustCompile(`^[A-Za-z]\.\s+`)
	answerSplit  = regexp.MustCompile(`[;,]`)
	textSplit    = regexp.MustCompile(`[;,|]`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
)

var roleSynonyms = map[string][]string{
	"prompt":    {"question", "prompt", "stem"},
	"type":      {"type", "qtype"},
	"options":   {"options", "choices", "opts"},
	"answer":    {"answer", "answers", "key", "correct"},
	"rationale": {"explanation", "rationale", "why"},
}

// columns maps semantic roles to header positions; -1 means absent.
type columns struct {
	prompt    int
	kind      int
	options   int
	answer    int
	rationale int
	letters   []int
}

// Parse converts raw CSV text into presentable questions. Rows that fail
// validation are dropped without error; a header row missing a prompt,
// an answer, or any options source fails the whole parse.
func Parse(raw string) (Result, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")

	var lines []string
	for _, line := range lineSplit.Split(raw, -1) {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return Result{Items: []domain.Question{}}, nil
	}

	headers := splitRow(lines[0])
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}

	cols := mapColumns(headers)
	if cols.prompt < 0 || cols.answer < 0 || (cols.options < 0 && len(cols.letters) == 0) {
		return Result{}, &domain.ParseError{Headers: headers}
	}

	items := make([]domain.Question, 0, len(lines)-1)
	for _, line := range lines[1:] {
		q := buildQuestion(splitRow(line), cols)
		if domain.Presentable(q) {
			items = append(items, q)
		}
	}

	return Result{
		Items: items,
		Meta:  Meta{Rows: len(lines) - 1, Headers: headers},
	}, nil
}

func mapColumns(headers []string) columns {
	cols := columns{prompt: -1, kind: -1, options: -1, answer: -1, rationale: -1}
	find := func(role string) int {
		for i, h := range headers {
			for _, synonym := range roleSynonyms[role] {
				if h == synonym {
					return i
				}
			}
		}
		return -1
	}
	cols.prompt = find("prompt")
	cols.kind = find("type")
	cols.options = find("options")
	cols.answer = find("answer")
	cols.rationale = find("rationale")

	for i, h := range headers {
		if len(h) == 1 && h[0] >= 'a' && h[0] <= 'z' {
			cols.letters = append(cols.letters, i)
		}
	}
	sort.SliceStable(cols.letters, func(i, j int) bool {
		return headers[cols.letters[i]] < headers[cols.letters[j]]
	})
	if len(cols.letters) > domain.MaxOptions {
		cols.letters = cols.letters[:domain.MaxOptions]
	}
	return cols
}

func buildQuestion(cells []string, cols columns) domain.Question {
	cell := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	kind := strings.ToLower(cell(cols.kind))
	if kind == "" {
		kind = string(domain.KindSingle)
	}

	var rawOptions []string
	if packed := cell(cols.options); packed != "" {
		rawOptions = splitPacked(packed)
	} else {
		for _, idx := range cols.letters {
			if v := cell(idx); v != "" {
				rawOptions = append(rawOptions, v)
			}
		}
	}

	options := make([]string, 0, len(rawOptions))
	for _, opt := range rawOptions {
		opt = strings.TrimSpace(letterPrefix.ReplaceAllString(strings.TrimSpace(opt), ""))
		if opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) == 0 && (kind == "tf" || kind == "truefalse") {
		options = []string{"True", "False"}
	}
	if len(options) > domain.MaxOptions {
		options = options[:domain.MaxOptions]
	}

	return domain.Question{
		Prompt:    cell(cols.prompt),
		Kind:      domain.Kind(kind),
		Options:   options,
		Correct:   decodeAnswer(cell(cols.answer), options),
		Rationale: cell(cols.rationale),
	}
}

func splitPacked(packed string) []string {
	switch {
	case strings.Contains(packed, "|"):
		return strings.Split(packed, "|")
	case strings.Contains(packed, " ; "):
		return strings.Split(packed, " ; ")
	case strings.Contains(packed, ";"):
		return strings.Split(packed, ";")
	default:
		return []string{packed}
	}
}

// decodeAnswer accepts letters (A;C), 1-based numbers (1;3) or option text.
func decodeAnswer(answer string, options []string) []int {
	seen := make(map[int]bool)
	for _, token := range answerSplit.Split(strings.ToUpper(answer), -1) {
		token = strings.TrimSpace(token)
		idx := -1
		switch {
		case len(token) == 1 && token[0] >= 'A' && token[0] <= 'Z':
			idx = int(token[0] - 'A')
		case digitsOnly.MatchString(token):
			if n, err := strconv.Atoi(token); err == nil {
				idx = n - 1
			}
		}
		if idx >= 0 && idx < len(options) {
			seen[idx] = true
		}
	}

	if len(seen) == 0 && answer != "" {
		wanted := make(map[string]bool)
		for _, token := range textSplit.Split(answer, -1) {
			if token = strings.ToLower(strings.TrimSpace(token)); token != "" {
				wanted[token] = true
			}
		}
		for i, opt := range options {
			if wanted[strings.ToLower(opt)] {
				seen[i] = true
			}
		}
	}

	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// splitRow is a quote-aware comma splitter: a quote toggles quoted mode,
// a doubled quote inside quotes is literal, commas inside quotes are kept.
func splitRow(line string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuote && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}
