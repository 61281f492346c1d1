package grading

import (
	"context"
	"strings"

	"github.com/pavelanni/autograder/internal/i18n"
)

// Recommendations builds the study advice stored on a graded attempt, in the
// language of ctx.
func Recommendations(ctx context.Context, s Summary, responses int, a Anomalies, malformed bool) []string {
	recs := []string{}
	if malformed {
		recs = append(recs, i18n.T(ctx, "RecMalformed"))
	}
	if len(s.WeakAreas) > 0 {
		topics := s.WeakAreas
		if len(topics) > 2 {
			topics = topics[:2]
		}
		recs = append(recs, i18n.Td(ctx, "RecReinforceTopics", map[string]any{"Topics": strings.Join(topics, ", ")}))
	}
	if responses > 0 && s.Correct*2 < responses {
		recs = append(recs, i18n.T(ctx, "RecExtraPractice"))
	}
	if a.HasAnomalies {
		recs = append(recs, i18n.T(ctx, "RecUnusualPatterns"))
		recs = append(recs, i18n.Tp(ctx, "AnomalousResponses", a.Count))
	}
	return recs
}
