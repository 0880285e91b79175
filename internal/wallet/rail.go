package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/skillmarket/internal/marketplace"
)

// Client talks to the external payment rail that holds escrow funds.
type Client struct {
	baseURL  string
	token    string
	account  string
	currency string
	http     *http.Client
	logger   *zap.Logger
}

type ClientConfig struct {
	BaseURL       string
	Token         string
	EscrowAccount string
	Currency      string
	Timeout       time.Duration
}

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		account:  cfg.EscrowAccount,
		currency: cfg.Currency,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// VerifyAndCapture confirms the reference carries at least minAmount.
func (c *Client) VerifyAndCapture(ctx context.Context, reference string, minAmount decimal.Decimal) (marketplace.Capture, error) {
	var out captureResponse
	status, err := c.post(ctx, "VerifyAndCapture", "/v1/captures", "", captureRequest{
		Reference: reference,
		MinAmount: minAmount,
		Currency:  c.currency,
		Account:   c.account,
	}, &out)
	if err != nil {
		return marketplace.Capture{}, err
	}

	switch {
	case status == http.StatusNotFound:
		return marketplace.Capture{}, &VerificationError{Reference: reference, Reason: "unknown reference"}
	case status >= 400:
		return marketplace.Capture{}, &VerificationError{Reference: reference, Reason: reasonOr(out.Reason, http.StatusText(status))}
	case out.Status == capturePending:
		return marketplace.Capture{}, &VerificationError{Reference: reference, Pending: true}
	case out.Status != captureCaptured:
		return marketplace.Capture{}, &VerificationError{Reference: reference, Reason: "unexpected status " + out.Status}
	case out.Amount.LessThan(minAmount):
		return marketplace.Capture{}, &VerificationError{
			Reference: reference,
			Reason:    fmt.Sprintf("captured %s below required %s", out.Amount, minAmount),
		}
	}

	c.logger.Info("payment captured",
		zap.String("reference", reference),
		zap.String("amount", out.Amount.String()))
	return marketplace.Capture{Reference: reference, CapturedAmount: out.Amount}, nil
}

// Payout releases the escrow for a listing. The idempotency key is derived
// from the listing id, and a 409 means the release already happened.
func (c *Client) Payout(ctx context.Context, p marketplace.Payout) error {
	status, err := c.post(ctx, "Payout", "/v1/releases", "release-"+p.ListingID, releaseRequest{
		ListingID: p.ListingID,
		Reference: p.Reference,
		Payee:     p.Payee,
		Amount:    p.Amount,
		Currency:  c.currency,
		Account:   c.account,
	}, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusConflict:
		c.logger.Info("escrow already released", zap.String("listing_id", p.ListingID))
		return nil
	case status >= 400:
		return fmt.Errorf("wallet.Client.Payout: rail answered %d", status)
	}

	c.logger.Info("escrow released",
		zap.String("listing_id", p.ListingID),
		zap.String("payee", p.Payee),
		zap.String("amount", p.Amount.String()))
	return nil
}

// post sends body as JSON. 5xx and transport errors come back as
// *UnavailableError; other statuses are returned to the caller.
func (c *Client) post(ctx context.Context, op, path, idempotencyKey string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("wallet.Client.%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("wallet.Client.%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &UnavailableError{Op: "Client." + op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, &UnavailableError{Op: "Client." + op, Err: fmt.Errorf("rail answered %d", resp.StatusCode)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("wallet.Client.%s: decode: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}

var _ marketplace.PaymentRail = (*Client)(nil)
