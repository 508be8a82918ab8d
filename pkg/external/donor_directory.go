package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/emergency-match-server/internal/domain"
)

// DonorDirectoryClient queries the donor directory service for compatible
// donors near a location. The directory owns blood compatibility and
// geospatial filtering; this client only consumes its results.
type DonorDirectoryClient struct {
	config     domain.DonorSearchConfig
	httpClient *http.Client
}

// NewDonorDirectoryClient creates a new donor directory client
func NewDonorDirectoryClient(config domain.DonorSearchConfig) *DonorDirectoryClient {
	return &DonorDirectoryClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type donorSearchResponse struct {
	Donors []domain.DonorCandidate `json:"donors"`
}

// Find implements domain.CandidateSource.
func (c *DonorDirectoryClient) Find(ctx context.Context, bloodType domain.BloodType, urgency domain.UrgencyLevel, lat, lon, radiusKm float64) ([]domain.DonorCandidate, error) {
	params := url.Values{}
	params.Set("blood_type", string(bloodType))
	params.Set("urgency", string(urgency))
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', 1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/donors/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating donor search request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing donor search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("donor search returned status %d: %s", resp.StatusCode, string(body))
	}

	var searchResp donorSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding donor search response: %w", err)
	}

	return searchResp.Donors, nil
}
