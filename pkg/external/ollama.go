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

// OllamaClient ranks donor candidates through a self-hosted Ollama instance.
// Last external hop in the chain; no API key required.
type OllamaClient struct {
	config     domain.ProviderConfig
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama ranking client
func NewOllamaClient(config domain.ProviderConfig) *OllamaClient {
	return &OllamaClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Tag implements domain.RankingProvider.
func (c *OllamaClient) Tag() domain.ProviderTag {
	return domain.PROVIDER_OLLAMA
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Rank implements domain.RankingProvider.
func (c *OllamaClient) Rank(ctx context.Context, candidates []domain.DonorCandidate, urgency domain.UrgencyLevel) ([]domain.ProviderRanking, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: buildRankingPrompt(candidates, urgency),
		Stream: false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewProviderUnavailable(c.Tag(), fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(payload))
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

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), fmt.Errorf("decoding response: %w", err))
	}

	rankings, err := parseRankings(apiResp.Response)
	if err != nil {
		return nil, domain.NewProviderParseError(c.Tag(), err)
	}
	return rankings, nil
}
