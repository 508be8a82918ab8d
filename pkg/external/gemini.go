package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/emergency-match-server/internal/domain"
)

// GeminiClient ranks donor candidates through the Google Gemini API.
type GeminiClient struct {
	config     domain.ProviderConfig
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini ranking client
func NewGeminiClient(config domain.ProviderConfig) *GeminiClient {
	return &GeminiClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Tag implements domain.RankingProvider.
func (c *GeminiClient) Tag() domain.ProviderTag {
	return domain.PROVIDER_GEMINI
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Rank implements domain.RankingProvider.
func (c *GeminiClient) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: buildRankingPrompt(candidates, urgency)}}},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("marshaling request: %w", err))
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.config.BaseURL, c.config.Model, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), fmt.Errorf("decoding response: %w", err))
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return nil, domain.NewProviderParseError(c.Tag(), fmt.Errorf("response has no content"))
	}

	rankings, err := parseRankings(apiResp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), err)
	}
	return rankings, nil
}
