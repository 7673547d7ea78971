package complaints

import "strings"

// Keyword groups mirror the complaint taxonomy. Multi-word phrases are
// matched as substrings of normalized text.
var (
	productGapKeywords = []string{
		"problem", "issue", "bug", "broken", "doesn't work", "not working",
		"missing feature", "glitch", "fails", "unreliable", "poor quality",
	}
	supportKeywords = []string{
		"support", "customer service", "help desk", "no response", "ignored",
		"unhelpful", "rude", "slow support", "waiting",
	}
	billingKeywords = []string{
		"billing", "invoice", "overcharge", "hidden fee", "hidden cost",
		"surprise fee", "refund", "cancel", "contract", "overpriced",
		"expensive", "waste of money",
	}
	performanceKeywords = []string{
		"slow", "lag", "crash", "crashed", "freeze", "timeout", "downtime",
		"outage", "offline", "unstable",
	}
	sentimentKeywords = []string{
		"terrible", "awful", "worst", "hate", "disappointed", "frustrated",
		"angry", "regret", "avoid",
	}
)

// complaintScore is a cheap keyword heuristic that estimates how likely
// a document is an actual customer complaint, as opposed to marketing
// copy or an unrelated mention. Each distinct keyword group hit adds
// weight; raw hit count adds a little more.
func complaintScore(normalized string) float64 {
	groups := [][]string{
		productGapKeywords, supportKeywords, billingKeywords,
		performanceKeywords, sentimentKeywords,
	}

	var groupHits, totalHits int
	for _, group := range groups {
		hit := false
		for _, kw := range group {
			if strings.Contains(normalized, kw) {
				totalHits++
				hit = true
			}
		}
		if hit {
			groupHits++
		}
	}

	score := float64(groupHits) * 0.2
	score += float64(totalHits) * 0.05
	if score > 1.0 {
		score = 1.0
	}
	return score
}
