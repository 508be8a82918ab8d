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

// OpenAIClient ranks donor candidates through the OpenAI chat completions API.
type OpenAIClient struct {
	config     domain.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIClient creates a new OpenAI ranking client
func NewOpenAIClient(config domain.ProviderConfig) *OpenAIClient {
	return &OpenAIClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Tag implements domain.RankingProvider.
func (c *OpenAIClient) Tag() domain.ProviderTag {
	return domain.PROVIDER_OPENAI
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Rank implements domain.RankingProvider. One shot, no retries; the fallback
// chain handles failure.
func (c *OpenAIClient) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: "You rank blood donors for emergency requests. Respond with JSON only."},
			{Role: "user", Content: buildRankingPrompt(candidates, urgency)},
		},
		Temperature: 0.2,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), fmt.Errorf("decoding response: %w", err))
	}
	if apiResp.Error != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("API error: %s", apiResp.Error.Message))
	}
	if len(apiResp.Choices) == 0 {
		return nil, domain.NewProviderParseError(c.Tag(), fmt.Errorf("response has no choices"))
	}

	rankings, err := parseRankings(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), err)
	}
	return rankings, nil
}
