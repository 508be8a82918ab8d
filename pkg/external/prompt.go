// Package external contains the clients for every outside service the
// matcher talks to: the AI ranking providers, the donor directory, the push
// notification gateway and Redis.
package external

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

// buildRankingPrompt renders the candidate roster and ranking instructions
// for a language model. Every provider shares the same prompt; only the
// transport differs.
func buildRankingPrompt(candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) string {
	var sb strings.Builder

	sb.WriteString("You are ranking blood donors for an emergency request with urgency ")
	sb.WriteString(urgency.String())
	sb.WriteString(".\n\nCandidates:\n")

	for i, c := range candidates {
		lastDonation := "never"
		if c.LastDonation != nil {
			days := int(time.Since(*c.LastDonation).Hours() / 24)
			lastDonation = fmt.Sprintf("%d days ago", days)
		}
		sb.WriteString(fmt.Sprintf("%d. blood type %s, %.1f km away, %d prior donations, last donation %s\n",
			i, c.BloodType, c.DistanceKm, c.DonationCount, lastDonation))
	}

	sb.WriteString(`
Score each candidate's suitability from 0 to 100 considering distance,
donation history, donation eligibility and blood type rarity. Respond with a
JSON array only, one object per candidate:
[{"index": 0, "score": 85, "estimated_minutes": 25, "reason": "..."}]
Index refers to the numbered list above.`)

	return sb.String()
}

// parseRankings extracts the JSON ranking array from a model's raw text
// response. Models wrap JSON in markdown fences or prose often enough that
// the parser cuts from the first '[' to the last ']'.
func parseRankings(raw string) ([]domain.ProviderRanking, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var rankings []domain.ProviderRanking
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rankings); err != nil {
		return nil, fmt.Errorf("decoding rankings: %w", err)
	}
	if len(rankings) == 0 {
		return nil, fmt.Errorf("empty rankings array")
	}
	return rankings, nil
}
