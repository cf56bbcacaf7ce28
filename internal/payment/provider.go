// Package payment talks to the external payment collaborator.  The core
// only needs three outcomes from a charge: success, declined, or
// timeout/unknown.  The last one is always treated as failure, never as
// implicit success.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

var (
	// ErrDeclined means the provider answered and refused the charge.
	ErrDeclined = errors.New("payment: declined")

	// ErrTimeout means the outcome is unknown: the provider did not answer
	// in time.  Callers must treat this as failure.
	ErrTimeout = errors.New("payment: timed out")
)

// Provider charges the given amount (integer minor currency units) against
// an opaque payment reference supplied by the client.  A nil error means
// the charge succeeded.
type Provider interface {
	Charge(ctx context.Context, amountUnits int64, paymentRef string) error
}

// HTTPProvider posts charges to a payment gateway over HTTP.
type HTTPProvider struct {
	chargeURL string
	client    *http.Client
}

// NewHTTPProvider builds a provider for the gateway at baseURL.  The
// timeout bounds the whole charge call; an elapsed timeout surfaces as
// ErrTimeout.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		chargeURL: baseURL + "/charge",
		client:    &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	AmountUnits int64  `json:"amount_units"`
	PaymentRef  string `json:"payment_ref"`
}

type chargeResponse struct {
	Status string `json:"status"`
}

// Charge submits the charge and maps the gateway's answer onto the three
// outcomes.  Any transport error or context expiry is ErrTimeout because
// the money may or may not have moved.
func (p *HTTPProvider) Charge(ctx context.Context, amountUnits int64, paymentRef string) error {
	body, err := json.Marshal(chargeRequest{AmountUnits: amountUnits, PaymentRef: paymentRef})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chargeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned %d", ErrDeclined, resp.StatusCode)
	}
	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if out.Status != "succeeded" {
		return fmt.Errorf("%w: status %q", ErrDeclined, out.Status)
	}
	return nil
}

// Sandbox approves every charge.  It is wired in when no gateway URL is
// configured so the service stays usable in local development.
type Sandbox struct{}

// Charge logs and approves the charge.
func (Sandbox) Charge(ctx context.Context, amountUnits int64, paymentRef string) error {
	log.Printf("payment: sandbox approving charge of %d units (ref=%s)", amountUnits, paymentRef)
	return nil
}
