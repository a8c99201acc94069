package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pilarlabs/studio-operator/internal/pkg/errclass"
	"github.com/pilarlabs/studio-operator/internal/pkg/httpretry"
)

// WhatsAppAdapter probes and uses the WhatsApp Business API. Each tenant maps
// to a registered business phone number tagged with the tenant ID.
type WhatsAppAdapter struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    httpretry.HTTPDoer
}

// WhatsAppConfig holds the WhatsApp Business API credentials.
type WhatsAppConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
}

// NewWhatsAppAdapter creates a WhatsApp adapter with retrying HTTP transport.
func NewWhatsAppAdapter(cfg WhatsAppConfig) *WhatsAppAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WhatsAppAdapter{
		baseURL:       cfg.BaseURL,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, 2),
	}
}

// Name implements Adapter.
func (a *WhatsAppAdapter) Name() string { return NameMessaging }

type waNumberStatus struct {
	ID                   string `json:"id"`
	VerifiedName         string `json:"verified_name"`
	QualityRating        string `json:"quality_rating"`
	CodeVerificationStat string `json:"code_verification_status"`
}

// GetStatus checks the tenant's registered WhatsApp number.
func (a *WhatsAppAdapter) GetStatus(ctx context.Context, tenantID string) StatusResult {
	if a.accessToken == "" {
		return StatusResult{OK: false, Error: "whatsapp access token not configured"}
	}

	path := fmt.Sprintf("/%s?fields=verified_name,quality_rating,code_verification_status&tag=%s",
		a.phoneNumberID, url.QueryEscape(tenantID))
	body, err := a.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return failure(err)
	}

	var st waNumberStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return failure(fmt.Errorf("parsing whatsapp response: %w", err))
	}

	active := st.QualityRating != "RED" && st.CodeVerificationStat != "NOT_VERIFIED"
	return StatusResult{
		OK:      true,
		Active:  active,
		Details: fmt.Sprintf("number %s quality %s", st.ID, st.QualityRating),
	}
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage sends a WhatsApp text message.
func (a *WhatsAppAdapter) SendMessage(ctx context.Context, to, content string) (SendResult, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": content},
	}
	raw, _ := json.Marshal(payload)

	path := fmt.Sprintf("/%s/messages", a.phoneNumberID)
	body, err := a.doRequest(ctx, http.MethodPost, path, raw)
	if err != nil {
		return SendResult{}, err
	}

	var resp waSendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SendResult{}, fmt.Errorf("parsing whatsapp response: %w", err)
	}
	id := ""
	if len(resp.Messages) > 0 {
		id = resp.Messages[0].ID
	}
	return SendResult{Success: true, ID: id}, nil
}

func (a *WhatsAppAdapter) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
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
