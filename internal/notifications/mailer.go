package notifications

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

	"github.com/storelane/storelane-backend/pkg/config"
	"github.com/storelane/storelane-backend/pkg/logger"
)

const sendPath = "/v3/mail/send"

// httpMailer delivers mail through a SendGrid-compatible REST API.
type httpMailer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	logger     *logger.Logger
}

// NewMailer builds the mail sender. An empty API key yields a no-op mailer
// so local environments run without credentials.
func NewMailer(cfg config.MailerConfig, logg *logger.Logger) (Mailer, error) {
	if logg == nil {
		return nil, errors.New("mailer logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &noopMailer{logger: logg}, nil
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("mailer base url required")
	}
	return &httpMailer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		from:       cfg.DefaultFrom,
		logger:     logg,
	}, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []contentBlock    `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type contentBlock struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (m *httpMailer) Send(ctx context.Context, msg Message) error {
	payload := sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: m.from},
		Subject:          msg.Subject,
		Content:          []contentBlock{{Type: "text/plain", Value: msg.Body}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+sendPath, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type noopMailer struct {
	logger *logger.Logger
}

func (m *noopMailer) Send(ctx context.Context, msg Message) error {
	ctx = m.logger.WithField(ctx, "subject", msg.Subject)
	m.logger.Info(ctx, "mailer disabled; dropping email")
	return nil
}
