package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Invitation tracks a pending connection request. The sheet only records
// that an invitation went out; the provider-side ID and the acceptance
// check count live here.
type Invitation struct {
	LeadID       string
	InvitationID string
	AccountName  string
	Checks       int
	CreatedAt    time.Time
}

// RecordInvitation stores the invitation sent for a lead, replacing any
// previous one (a re-allocated lead gets a fresh invitation).
func (s *Store) RecordInvitation(ctx context.Context, inv Invitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations (lead_id, invitation_id, account_name, checks, created_at)
		 VALUES ($1, $2, $3, 0, now())
		 ON CONFLICT (lead_id) DO UPDATE SET
			invitation_id = $2, account_name = $3, checks = 0, created_at = now()`,
		inv.LeadID, inv.InvitationID, inv.AccountName)
	if err != nil {
		return fmt.Errorf("record invitation for %s: %w", inv.LeadID, err)
	}
	return nil
}

// GetInvitation returns the pending invitation for a lead, or nil.
func (s *Store) GetInvitation(ctx context.Context, leadID string) (*Invitation, error) {
	var inv Invitation
	err := s.db.QueryRowContext(ctx,
		`SELECT lead_id, invitation_id, account_name, checks, created_at
		 FROM invitations WHERE lead_id = $1`, leadID).
		Scan(&inv.LeadID, &inv.InvitationID, &inv.AccountName, &inv.Checks, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation for %s: %w", leadID, err)
	}
	return &inv, nil
}

// IncrementInvitationChecks bumps the acceptance poll counter and returns
// the new count.
func (s *Store) IncrementInvitationChecks(ctx context.Context, leadID string) (int, error) {
	var checks int
	err := s.db.QueryRowContext(ctx,
		`UPDATE invitations SET checks = checks + 1 WHERE lead_id = $1 RETURNING checks`,
		leadID).Scan(&checks)
	if err != nil {
		return 0, fmt.Errorf("increment invitation checks for %s: %w", leadID, err)
	}
	return checks, nil
}

// DeleteInvitation removes the tracking row once the invitation resolved.
func (s *Store) DeleteInvitation(ctx context.Context, leadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE lead_id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("delete invitation for %s: %w", leadID, err)
	}
	return nil
}
