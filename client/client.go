package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/domain"
)

const maxResponseBytes = 10 * 1024 * 1024

var (
	ErrEmptyScript = errors.New("slurm script is empty")
	ErrTimeout     = errors.New("conversion request timed out")
)

// APIError é uma resposta não-2xx do gateway.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (HTTP %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

type Client struct {
	Endpoint   string
	Signer     application.Signer
	HTTPClient *http.Client
	// Timeout limita a requisição inteira. Se <= 0, usa DefaultTimeout.
	Timeout time.Duration
}

func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cred, err := domain.NewCredential([]byte(cfg.SharedSecret))
	if err != nil {
		return nil, err
	}
	return &Client{
		Endpoint:   cfg.Endpoint,
		Signer:     application.Signer{Credential: cred},
		HTTPClient: &http.Client{},
		Timeout:    cfg.Timeout(),
	}, nil
}

// Convert assina o script e devolve a configuração Run.ai gerada.
func (c *Client) Convert(ctx context.Context, script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", ErrEmptyScript
	}

	payload := []byte(script)
	signed, err := c.Signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(domain.TimestampHeader, signed.Timestamp)
	req.Header.Set(domain.SignatureHeader, signed.Signature)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var body struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Code = body.Code
			apiErr.Message = body.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return "", apiErr
	}

	var body struct {
		RunAIConfig *string `json:"runai_config"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.RunAIConfig == nil {
		return "", errors.New("response has no runai_config")
	}
	return *body.RunAIConfig, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
