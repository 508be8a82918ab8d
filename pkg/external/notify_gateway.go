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

// NotifyGatewayClient talks to the push notification gateway. It serves both
// sides of the flow: donor notifications during escalation waves and the
// requester's acceptance notification.
type NotifyGatewayClient struct {
	config     domain.NotificationsConfig
	httpClient *http.Client
}

// NewNotifyGatewayClient creates a new notification gateway client
func NewNotifyGatewayClient(config domain.NotificationsConfig) *NotifyGatewayClient {
	return &NotifyGatewayClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type pushRequest struct {
	RecipientID string            `json:"recipient_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Send implements domain.NotificationDelivery.
func (c *NotifyGatewayClient) Send(ctx context.Context, donorID, title, message string, metadata map[string]string) error {
	return c.push(ctx, pushRequest{
		RecipientID: donorID,
		Title:       title,
		Message:     message,
		Metadata:    metadata,
	})
}

// Notify implements domain.RequesterNotifier.
func (c *NotifyGatewayClient) Notify(ctx context.Context, requesterID, message string) error {
	return c.push(ctx, pushRequest{
		RecipientID: requesterID,
		Title:       "Donor found",
		Message:     message,
	})
}

func (c *NotifyGatewayClient) push(ctx context.Context, push pushRequest) error {
	payload, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("marshaling push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
