package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

const (
	DefaultOracleURL       = "https://openrouter.ai/api/v1"
	DefaultOracleModel     = "anthropic/claude-sonnet-4.5"
	DefaultOracleMaxTokens = 4096

	// limite de corpo de resposta para não esgotar memória
	maxOracleResponseBytes = 10 * 1024 * 1024
)

// conversionPrompt embrulha o script. O gatekeeper não depende do conteúdo.
const conversionPrompt = `You are an expert in HPC job scheduling and Kubernetes orchestration.
Convert the following SLURM batch script to a Run.ai job configuration.

SLURM Script:
` + "```" + `
%s
` + "```" + `

Please provide:
1. A Run.ai YAML configuration file that captures all the resource requirements, or
2. The equivalent Run.ai CLI commands if YAML is not appropriate

Important considerations:
- Map SLURM resource directives (#SBATCH) to Run.ai resource requests
- Convert GPU requests (--gres=gpu:X) to Run.ai GPU specifications
- Map memory and CPU requests appropriately
- Handle job arrays, dependencies, and time limits if present
- Include proper image/container specifications
- Add appropriate environment variables and working directory settings

Provide ONLY the Run.ai configuration/commands, no additional explanation.`

// OracleError é uma resposta não-2xx do provedor.
type OracleError struct {
	Status  int
	Message string
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle error (HTTP %d): %s", e.Status, e.Message)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatOracle fala com um endpoint compatível com chat completions
// (OpenRouter, OpenAI, gateways internos).
//
// Não tem timeout próprio além do ctx: quem impõe o limite é o gatekeeper.
type ChatOracle struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

var _ domain.Oracle = ChatOracle{}

func NewChatOracle(baseURL, apiKey, model string) ChatOracle {
	return ChatOracle{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		MaxTokens: DefaultOracleMaxTokens,
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (o ChatOracle) Convert(ctx context.Context, text string) (string, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = DefaultOracleURL
	}
	model := o.Model
	if model == "" {
		model = DefaultOracleModel
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: fmt.Sprintf(conversionPrompt, text)}},
		MaxTokens: o.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOracleResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read oracle response: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return "", &OracleError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode oracle response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no content in oracle response", domain.ErrOracleFailed)
	}
	return parsed.Choices[0].Message.Content, nil
}
