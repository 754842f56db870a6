// Package payment sends settlement transfers over an external payment rail.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitton/internal/apperrors"
	"github.com/mmynk/splitton/internal/ton"
)

var (
	// ErrInvalidAddress is returned when the destination is not a valid TON address.
	ErrInvalidAddress = errors.New("invalid destination address")

	// ErrNoSender is returned when no wallet is authorized to sign transfers.
	ErrNoSender = errors.New("no authorized sender")

	// ErrSenderMismatch is returned when the transfer source is not the authorized wallet.
	ErrSenderMismatch = errors.New("source address is not the authorized sender")
)

// Rail submits transfers. Once Send returns a reference the rail is
// authoritative for the transfer's fate.
type Rail interface {
	Send(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error)
}

// HTTPRail posts transfer requests to a wallet bridge that signs on behalf
// of one authorized sender.
type HTTPRail struct {
	baseURL string
	sender  string
	client  *http.Client
}

// NewHTTPRail creates a rail for the bridge at baseURL signing as sender.
func NewHTTPRail(baseURL, sender string, client *http.Client) *HTTPRail {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRail{
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  sender,
		client:  client,
	}
}

type transferRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	AmountNano int64  `json:"amount_nano"`
	Memo       string `json:"memo,omitempty"`
}

type transferResponse struct {
	TxRef string `json:"tx_ref"`
	Error string `json:"error,omitempty"`
}

// Send transfers amount TON from the authorized sender to to.
func (r *HTTPRail) Send(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	if r.sender == "" || r.baseURL == "" {
		return "", ErrNoSender
	}
	if !ton.SameAccount(from, r.sender) {
		return "", fmt.Errorf("%w: %s", ErrSenderMismatch, from)
	}
	if !ton.IsValidAddress(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: transfer amount must be positive, got %s", apperrors.ErrValidation, amount)
	}
	nano, err := ton.ToNano(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	body, err := json.Marshal(transferRequest{From: from, To: to, AmountNano: nano, Memo: memo})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: transfer request failed: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read transfer response: %v", apperrors.ErrTransient, err)
	}
	var out transferResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := out.Error
		if reason == "" {
			reason = resp.Status
		}
		return "", fmt.Errorf("transfer rejected by rail: %s", reason)
	}
	if out.TxRef == "" {
		return "", errors.New("rail accepted transfer without a transaction reference")
	}

	slog.Info("Transfer submitted", "to", to, "amount_nano", nano, "tx_ref", out.TxRef)
	return out.TxRef, nil
}
