// Package linkedin talks to the LinkedIn automation provider's REST API.
// Each configured account gets its own client; the Manager provides the
// rotation order the outreach agent walks when an account is over budget
// or rate limited by the provider.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/pkg/httpretry"
)

var (
	// ErrRateLimited indicates the provider throttled this account. The
	// caller should park the account and rotate to the next one.
	ErrRateLimited = errors.New("linkedin: account rate limited by provider")
	// ErrProfileNotFound indicates the profile URL resolves to nothing.
	ErrProfileNotFound = errors.New("linkedin: profile not found")
)

// Connection describes the relationship between the account and a profile.
type Connection struct {
	ProviderID string
	Distance   int  // 1 = direct connection
	Connected  bool // true when a direct message is possible
}

// Invitation is a connection request sent from an account.
type Invitation struct {
	ID       string
	Status   string // pending, accepted, declined
	Accepted bool
}

// IncomingMessage is a message received in one of the account's chats.
type IncomingMessage struct {
	ChatID     string
	SenderID   string
	SenderURL  string
	Text       string
	ReceivedAt time.Time
}

// AccountClient is the REST client for one provider-linked account.
type AccountClient struct {
	name      string
	baseURL   string
	apiKey    string
	accountID string
	httpc     httpretry.HTTPDoer
}

// NewAccountClient creates a client for one account. Requests retry on
// transient failures; a 429 that survives the retries comes back as
// ErrRateLimited so the caller can rotate accounts.
func NewAccountClient(name, baseURL, apiKey, accountID string, timeout time.Duration) *AccountClient {
	return &AccountClient{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		accountID: accountID,
		httpc:     httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

// Name returns the configured account name.
func (c *AccountClient) Name() string { return c.name }

// FindConnection resolves a profile URL and reports whether the account is
// directly connected to it.
func (c *AccountClient) FindConnection(ctx context.Context, profileURL string) (Connection, error) {
	identifier := ProfileIdentifier(profileURL)
	if identifier == "" {
		return Connection{}, fmt.Errorf("linkedin: cannot extract identifier from %q", profileURL)
	}

	var out struct {
		ProviderID      string `json:"provider_id"`
		NetworkDistance string `json:"network_distance"`
	}
	path := fmt.Sprintf("/api/v1/users/%s?account_id=%s",
		url.PathEscape(identifier), url.QueryEscape(c.accountID))
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Connection{}, err
	}

	conn := Connection{ProviderID: out.ProviderID}
	switch strings.ToUpper(out.NetworkDistance) {
	case "FIRST", "DISTANCE_1":
		conn.Distance = 1
		conn.Connected = true
	case "SECOND", "DISTANCE_2":
		conn.Distance = 2
	case "THIRD", "DISTANCE_3":
		conn.Distance = 3
	}
	return conn, nil
}

// SendInvitation sends a connection request with a note attached.
func (c *AccountClient) SendInvitation(ctx context.Context, providerID, message string) (string, error) {
	body := map[string]string{
		"account_id":  c.accountID,
		"provider_id": providerID,
		"message":     message,
	}
	var out struct {
		InvitationID string `json:"invitation_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/users/invite", body, &out); err != nil {
		return "", err
	}
	return out.InvitationID, nil
}

// CheckInvitation reports the current status of a sent invitation.
func (c *AccountClient) CheckInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/api/v1/users/invite/%s?account_id=%s",
		url.PathEscape(invitationID), url.QueryEscape(c.accountID))
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Invitation{}, err
	}
	status := strings.ToLower(out.Status)
	return Invitation{
		ID:       out.ID,
		Status:   status,
		Accepted: status == "accepted",
	}, nil
}

// SendMessage starts or continues a chat with a direct connection.
// Returns the provider's message ID.
func (c *AccountClient) SendMessage(ctx context.Context, providerID, text string) (string, error) {
	body := map[string]any{
		"account_id":    c.accountID,
		"attendees_ids": []string{providerID},
		"text":          text,
	}
	var out struct {
		ChatID    string `json:"chat_id"`
		MessageID string `json:"message_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/chats", body, &out); err != nil {
		return "", err
	}
	if out.MessageID != "" {
		return out.MessageID, nil
	}
	return out.ChatID, nil
}

// PollMessages returns messages received after the given time, oldest first.
func (c *AccountClient) PollMessages(ctx context.Context, after time.Time) ([]IncomingMessage, error) {
	path := fmt.Sprintf("/api/v1/messages?account_id=%s&after=%s",
		url.QueryEscape(c.accountID), url.QueryEscape(after.UTC().Format(time.RFC3339)))

	var out struct {
		Items []struct {
			ChatID    string    `json:"chat_id"`
			SenderID  string    `json:"sender_provider_id"`
			SenderURL string    `json:"sender_profile_url"`
			Text      string    `json:"text"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]IncomingMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msgs = append(msgs, IncomingMessage{
			ChatID:     item.ChatID,
			SenderID:   item.SenderID,
			SenderURL:  item.SenderURL,
			Text:       item.Text,
			ReceivedAt: item.Timestamp,
		})
	}
	return msgs, nil
}

func (c *AccountClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("linkedin: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("linkedin: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (account %s)", ErrRateLimited, c.name)
	case resp.StatusCode == http.StatusNotFound:
		return ErrProfileNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("linkedin: provider returned %d: %s", resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("linkedin: decode response: %w", err)
		}
	}
	return nil
}

// ProfileIdentifier extracts the public identifier from a profile URL:
// "https://linkedin.com/in/jane-doe/" yields "jane-doe".
func ProfileIdentifier(profileURL string) string {
	u, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "in" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
