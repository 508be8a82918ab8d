package external

import (
	"strings"
	"testing"
	"time"

	"github.com/emergency-match-server/internal/domain"
)

func TestBuildRankingPrompt(t *testing.T) {
	last := time.Now().Add(-72 * time.Hour)
	candidates := []domain.DonorCandidate{
		{DonorID: "d1", BloodType: domain.BLOOD_O_NEG, DistanceKm: 3.2, DonationCount: 7, LastDonation: &last},
		{DonorID: "d2", BloodType: domain.BLOOD_A_POS, DistanceKm: 12.5, DonationCount: 0},
	}

	prompt := buildRankingPrompt(candidates, domain.URGENCY_CRITICAL)

	if !strings.Contains(prompt, "CRITICAL") {
		t.Error("Expected urgency in the prompt")
	}
	if !strings.Contains(prompt, "0. blood type O-, 3.2 km away, 7 prior donations, last donation 3 days ago") {
		t.Errorf("Expected first candidate line, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, "1. blood type A+, 12.5 km away, 0 prior donations, last donation never") {
		t.Errorf("Expected second candidate line, got:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"index"`) {
		t.Error("Expected the JSON response contract in the prompt")
	}
}

func TestParseRankings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		count   int
		wantErr bool
	}{
		{
			name:  "bare array",
			raw:   `[{"index": 0, "score": 85, "estimated_minutes": 25, "reason": "close"}]`,
			count: 1,
		},
		{
			name:  "markdown fenced",
			raw:   "```json\n[{\"index\": 0, \"score\": 85}, {\"index\": 1, \"score\": 60}]\n```",
			count: 2,
		},
		{
			name:  "prose around the array",
			raw:   `Here are the rankings: [{"index": 0, "score": 70}] Hope this helps!`,
			count: 1,
		},
		{name: "no array", raw: "I cannot rank these donors.", wantErr: true},
		{name: "empty array", raw: "[]", wantErr: true},
		{name: "broken json", raw: `[{"index": 0, "score":}]`, wantErr: true},
		{name: "empty string", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rankings, err := parseRankings(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected a parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(rankings) != tt.count {
				t.Errorf("Expected %d rankings, got %d", tt.count, len(rankings))
			}
		})
	}
}
