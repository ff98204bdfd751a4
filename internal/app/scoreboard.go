package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"channel-quiz-service/internal/domain"
)

// EmptyScoreboard is shown when nobody has scored yet.
const EmptyScoreboard = "No scores yet."

// RankEntries orders entries by score descending; ties keep their input order.
func RankEntries(entries []domain.ScoreEntry) []domain.ScoreEntry {
	ranked := append([]domain.ScoreEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// RenderScoreboard renders a ranked, 1-indexed scoreboard with display names.
func RenderScoreboard(ctx context.Context, entries []domain.ScoreEntry, identities IdentityResolver) string {
	if len(entries) == 0 {
		return EmptyScoreboard
	}

	var b strings.Builder
	b.WriteString("🏆 Scoreboard")
	for i, entry := range RankEntries(entries) {
		fmt.Fprintf(&b, "\n%d. %s: %d", i+1, displayName(ctx, identities, entry.UserID), entry.Score)
	}
	return b.String()
}

func displayName(ctx context.Context, identities IdentityResolver, userID string) string {
	if identities != nil {
		if name, err := identities.DisplayName(ctx, userID); err == nil && name != "" {
			return name
		}
	}
	return "User " + userID
}
