package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pilarlabs/studio-operator/internal/pkg/errclass"
	"github.com/pilarlabs/studio-operator/internal/pkg/httpretry"
)

// TwilioAdapter probes and uses Twilio for telephony and SMS. Each tenant
// maps to a Twilio subaccount whose friendly name is the tenant ID.
type TwilioAdapter struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	httpClient httpretry.HTTPDoer
}

// TwilioConfig holds the credentials for the master Twilio account.
type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
	Timeout    time.Duration
}

// NewTwilioAdapter creates a Twilio adapter with retrying HTTP transport.
func NewTwilioAdapter(cfg TwilioConfig) *TwilioAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TwilioAdapter{
		baseURL:    cfg.BaseURL,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, 2),
	}
}

// Name implements Adapter.
func (a *TwilioAdapter) Name() string { return NameTelephony }

type twilioAccountList struct {
	Accounts []struct {
		SID          string `json:"sid"`
		Status       string `json:"status"`
		FriendlyName string `json:"friendly_name"`
	} `json:"accounts"`
}

// GetStatus checks the tenant's Twilio subaccount status.
func (a *TwilioAdapter) GetStatus(ctx context.Context, tenantID string) StatusResult {
	if a.accountSID == "" || a.authToken == "" {
		return StatusResult{OK: false, Error: "twilio credentials not configured"}
	}

	path := fmt.Sprintf("/2010-04-01/Accounts.json?FriendlyName=%s", url.QueryEscape(tenantID))
	body, err := a.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return failure(err)
	}

	var list twilioAccountList
	if err := json.Unmarshal(body, &list); err != nil {
		return failure(fmt.Errorf("parsing twilio response: %w", err))
	}
	if len(list.Accounts) == 0 {
		return StatusResult{OK: true, Active: false, Details: "no subaccount provisioned"}
	}

	acct := list.Accounts[0]
	return StatusResult{
		OK:      true,
		Active:  acct.Status == "active",
		Details: fmt.Sprintf("subaccount %s status %s", acct.SID, acct.Status),
	}
}

type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// SendSMS sends a text message via the Twilio Messages API.
func (a *TwilioAdapter) SendSMS(ctx context.Context, to, content string) (SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.fromNumber)
	form.Set("Body", content)

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", a.accountSID)
	body, err := a.doRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}

	var msg twilioMessageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return SendResult{}, fmt.Errorf("parsing twilio response: %w", err)
	}
	return SendResult{Success: true, ID: msg.SID}, nil
}

func (a *TwilioAdapter) doRequest(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(a.accountSID, a.authToken)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &errclass.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
