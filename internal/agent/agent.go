// Package agent posts signed payment events to the webhook endpoint, the
// way the payment provider does. Operators use it to replay a callback
// and to check that both sides agree on the shared secret.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"dairyops/internal/shared"

	"github.com/pkg/errors"
)

const WebhookPath = "/api/webhook/payment"

// ErrRejected is returned when the server answers anything but 200.
var ErrRejected = errors.New("webhook rejected")

type Sender struct {
	ServerURL string
	Secret    string
	// Prefixed sends "sha256=<hex>" instead of bare hex.
	Prefixed bool
	Client   *http.Client
}

func New(serverURL, secret string) *Sender {
	return &Sender{
		ServerURL: serverURL,
		Secret:    secret,
		Client:    &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *Sender) signedRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := strings.TrimRight(s.ServerURL, "/") + WebhookPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	sig := shared.SignWebhook(body, s.Secret)
	if s.Prefixed {
		sig = shared.SignaturePrefix + sig
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.SignatureHeader, sig)
	return req, nil
}

// Send signs body as-is and posts it.
func (s *Sender) Send(ctx context.Context, body []byte) error {
	if s.Secret == "" {
		return errors.New("webhook secret is empty")
	}
	req, err := s.signedRequest(ctx, body)
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.Wrapf(ErrRejected, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// SendPayment marshals ev and posts it.
func (s *Sender) SendPayment(ctx context.Context, ev shared.WebhookPaymentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal payment event")
	}
	return s.Send(ctx, body)
}
