package domain

// Validate returns the shape problems that keep a question from being presented.
func Validate(q Question) []string {
	var issues []string
	if q.Prompt == "" {
		issues = append(issues, "missing prompt")
	}
	if len(q.Options) < 2 {
		issues = append(issues, "needs ≥2 options")
	}
	if len(q.Options) > MaxOptions {
		issues = append(issues, "≤25 options supported")
	}
	if len(q.Correct) == 0 {
		issues = append(issues, "missing answer(s)")
	}
	for _, idx := range q.Correct {
		if idx < 0 || idx >= len(q.Options) {
			issues = append(issues, "answer index out of range")
			break
		}
	}
	return issues
}

// Presentable reports whether Validate finds no issues.
func Presentable(q Question) bool {
	return len(Validate(q)) == 0
}
