package linkedin

import (
	"fmt"
	"time"
)

// Manager holds the configured account clients in rotation order. The
// outreach agent walks this order each send, skipping accounts the rate
// limiter has denied or parked in cooldown.
type Manager struct {
	clients []*AccountClient
	byName  map[string]*AccountClient
}

// AccountConfig describes one provider-linked account.
type AccountConfig struct {
	Name      string
	BaseURL   string
	APIKey    string
	AccountID string
}

// NewManager builds clients for each configured account. At least one
// account is required.
func NewManager(accounts []AccountConfig, timeout time.Duration) (*Manager, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("linkedin: no accounts configured")
	}
	m := &Manager{byName: make(map[string]*AccountClient, len(accounts))}
	for _, a := range accounts {
		if a.Name == "" || a.BaseURL == "" || a.APIKey == "" {
			return nil, fmt.Errorf("linkedin: account %q missing name, base URL or API key", a.Name)
		}
		if _, dup := m.byName[a.Name]; dup {
			return nil, fmt.Errorf("linkedin: duplicate account name %q", a.Name)
		}
		c := NewAccountClient(a.Name, a.BaseURL, a.APIKey, a.AccountID, timeout)
		m.clients = append(m.clients, c)
		m.byName[a.Name] = c
	}
	return m, nil
}

// Accounts returns the clients in configured rotation order.
func (m *Manager) Accounts() []*AccountClient { return m.clients }

// Account returns the client with the given name, or nil.
func (m *Manager) Account(name string) *AccountClient { return m.byName[name] }
