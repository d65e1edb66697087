package payout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"craftbid/internal/models"

	"github.com/shopspring/decimal"
)

// ErrPending means the payout was handed off but is not confirmed yet; the
// request stays processing until Complete is called.
var ErrPending = errors.New("payout pending external confirmation")

// SignatureHeader carries the hex HMAC-SHA256 of the request body
const SignatureHeader = "X-CraftBid-Signature"

//go:generate mockgen -source=payout.go -destination=mock_gateway.go -package=payout

// Gateway moves approved withdrawal funds off the platform
type Gateway interface {
	Send(ctx context.Context, w models.WithdrawalRequest) error
}

// ManualGateway is used when no payout provider is configured. Every payout
// is left for an operator to confirm.
type ManualGateway struct{}

// Send always reports ErrPending
func (ManualGateway) Send(context.Context, models.WithdrawalRequest) error {
	return ErrPending
}

// Instruction is the body posted to the payout provider
type Instruction struct {
	RequestID      string            `json:"request_id"`
	UserID         string            `json:"user_id"`
	Amount         decimal.Decimal   `json:"amount"`
	PaymentDetails map[string]string `json:"payment_details"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	SentAt         time.Time         `json:"sent_at"`
}

// WebhookGateway posts signed payout instructions to a provider URL. A 2xx
// response confirms the payout, 202 Accepted leaves it pending.
type WebhookGateway struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookGateway creates a gateway posting to url
func NewWebhookGateway(url, secret string) *WebhookGateway {
	return &WebhookGateway{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts the payout instruction for w
func (g *WebhookGateway) Send(ctx context.Context, w models.WithdrawalRequest) error {
	ins := Instruction{
		RequestID:      w.RequestID,
		UserID:         w.UserID,
		Amount:         w.Amount,
		PaymentDetails: w.PaymentDetails,
		SentAt:         time.Now().UTC(),
	}
	if w.TransactionID != nil {
		ins.TransactionID = *w.TransactionID
	}

	body, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("payout: marshal instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payout: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CraftBid-Payout/1.0")
	req.Header.Set("Idempotency-Key", w.RequestID)
	if g.secret != "" {
		req.Header.Set(SignatureHeader, Sign(g.secret, body))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout: send %s: %w", w.RequestID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return ErrPending
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("payout: provider returned %d for %s", resp.StatusCode, w.RequestID)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
