// Package whatsapp is the HTTP client for the GOWA WhatsApp gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/phone"
	"zapflow_backend/platform/textutil"

	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned by a nil client.
var ErrNotConfigured = errors.New("whatsapp gateway not configured")

const maxErrorBody = 512

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	region   string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

// Message is one outbound chat message. MediaURL, when set, is sent as an
// image with Text as its caption.
type Message struct {
	Phone    string
	Text     string
	MediaURL string
}

// SendResult identifies the sent message at the gateway.
type SendResult struct {
	MessageID string
	Status    string
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	} `json:"results"`
}

// NewClient returns nil when no gateway URL is configured. Sends are paced
// by a token bucket of GetWhatsAppSendsPerSecond.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	perSecond := cfg.GetWhatsAppSendsPerSecond()
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		region:   cfg.GetWhatsAppDefaultRegion(),
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.WithComponent("whatsapp"),
	}
}

// Send delivers msg through /send/message or, with media, /send/image.
// Transport failures and 5xx/429 responses are reported as Unavailable.
func (c *Client) Send(ctx context.Context, msg Message) (SendResult, error) {
	if c == nil {
		return SendResult{}, ErrNotConfigured
	}

	normalized := phone.Digits(msg.Phone, c.region)
	if normalized == "" {
		return SendResult{}, apperr.Validation("recipient phone is empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return SendResult{}, fmt.Errorf("whatsapp rate limit wait: %w", err)
	}

	var (
		req *http.Request
		err error
	)
	if msg.MediaURL != "" {
		req, err = c.imageRequest(ctx, normalized, msg)
	} else {
		req, err = c.textRequest(ctx, normalized, msg.Text)
	}
	if err != nil {
		return SendResult{}, err
	}

	res, err := c.do(req)
	if err != nil {
		return SendResult{}, err
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized, "messageId", res.MessageID, "media", msg.MediaURL != "")
	return res, nil
}

func (c *Client) textRequest(ctx context.Context, phoneNumber, text string) (*http.Request, error) {
	body, err := json.Marshal(gowaRequest{Phone: phoneNumber, Message: text})
	if err != nil {
		return nil, fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return req, nil
}

func (c *Client) imageRequest(ctx context.Context, phoneNumber string, msg Message) (*http.Request, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{
		{"phone", phoneNumber},
		{"caption", msg.Text},
		{"image_url", msg.MediaURL},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("build whatsapp image form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build whatsapp image form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/image", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}
}

func (c *Client) do(req *http.Request) (SendResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{}, apperr.Unavailable("whatsapp request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusBadRequest {
		detail := textutil.Truncate(strings.TrimSpace(string(data)), maxErrorBody)
		cause := fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, detail)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return SendResult{}, apperr.Unavailable("whatsapp gateway unavailable", cause)
		}
		return SendResult{}, apperr.Wrap(apperr.KindBadRequest, "whatsapp gateway rejected message", cause)
	}

	var parsed gowaResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			c.log.Warn("unreadable whatsapp response body", "error", err)
		}
	}
	return SendResult{MessageID: parsed.Results.MessageID, Status: parsed.Results.Status}, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
