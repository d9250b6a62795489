package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// MessagingConfig holds settings of the messaging gateway
type MessagingConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a gateway is configured
func (c MessagingConfig) Enabled() bool {
	return c.Endpoint != ""
}

// HTTPMessenger posts messages to a JSON messaging gateway
type HTTPMessenger struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

type messageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// NewHTTPMessenger creates a messenger for the gateway endpoint
func NewHTTPMessenger(config MessagingConfig, log logger.Logger) *HTTPMessenger {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMessenger{
		endpoint: config.Endpoint,
		token:    config.Token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.OrGlobal(log).WithComponent("messaging"),
	}
}

// SendMessage posts one message. Any non-2xx answer is a failure.
func (m *HTTPMessenger) SendMessage(ctx context.Context, to, body string) error {
	if err := m.post(ctx, messageRequest{To: to, Body: body}); err != nil {
		m.logger.WithError(err).WithField("to", to).Warn("Message send failed")
		return errors.NotificationError(errors.CodeMessageFailed, to, err)
	}
	return nil
}

func (m *HTTPMessenger) post(ctx context.Context, payload messageRequest) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
