package models

import (
	"fmt"
	"strings"

	"github.com/mmynk/splitton/internal/apperrors"
)

// Participant is a member of an event.
type Participant struct {
	// ID is the stable identifier, unique within the event (the user ID).
	ID string `json:"id"`

	// DisplayName is shown in balances and settlement memos.
	DisplayName string `json:"display_name"`

	// Username is an optional handle (e.g. a Telegram @username).
	Username string `json:"username,omitempty"`

	// WalletAddress is the optional TON address settlements are paid to/from.
	WalletAddress string `json:"wallet_address,omitempty"`

	// JoinedAt is when the participant joined the event.
	JoinedAt int64 `json:"joined_at"`

	// IsActive is false once the participant left. Inactive participants keep
	// their historical balance but cannot be assigned to new expenses.
	IsActive bool `json:"is_active"`
}

// Validate checks the participant's own fields.
func (p *Participant) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: participant id is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: participant %s: display name is required", apperrors.ErrValidation, p.ID)
	}
	return nil
}

// Name returns the display name, falling back to the ID.
func (p *Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
