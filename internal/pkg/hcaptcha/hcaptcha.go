// Package hcaptcha verifies hCaptcha response tokens of public forms.
package hcaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the hCaptcha siteverify endpoint.
const DefaultEndpoint = "https://hcaptcha.com/siteverify"

var (
	// ErrMissingToken is returned for an empty response token.
	ErrMissingToken = errors.New("hCaptcha token is empty")
	// ErrRejected is returned when hCaptcha did not accept the token.
	ErrRejected = errors.New("hCaptcha validation failed")
)

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks tokens against the siteverify API.
type Verifier struct {
	Endpoint   string
	HTTPClient *http.Client
	secret     string
}

// NewVerifier creates a verifier for the account secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		Endpoint:   DefaultEndpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		secret:     secret,
	}
}

// Verify returns nil when hCaptcha accepts token. remoteIP is optional.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}

	if !response.Success {
		if len(response.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %s", ErrRejected, strings.Join(response.ErrorCodes, ", "))
		}
		return ErrRejected
	}
	return nil
}
