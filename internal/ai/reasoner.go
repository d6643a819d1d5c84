// Package ai talks to the external reasoning service that classifies emails
// the rule engine could not settle on its own.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/credential"
	"github.com/nhle/inbox-clarity/internal/model"
)

// DefaultCredentialKey names the API key when reasoning.credential_key is
// unset.
const DefaultCredentialKey = "reasoning_api_key"

const (
	defaultModel             = "claude-haiku-4-5-20251001"
	defaultMaxTokens         = 500
	defaultAPIURL            = "https://api.anthropic.com/v1/messages"
	defaultTimeout           = 15 * time.Second
	defaultGenerationTimeout = 10 * time.Second
	apiVersion               = "2023-06-01"
	maxResponseBytes         = 256 << 10
	temperature              = 0.1
)

// ConfigurationError reports a reasoning service setting that prevents the
// adapter from being constructed, such as a missing API key.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("reasoning service misconfigured: %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks whether an error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Reasoner classifies emails with the Claude Messages API. It never returns
// an error from Classify: every failure becomes a fallback verdict.
type Reasoner struct {
	apiKey    string
	model     string
	maxTokens int
	apiURL    string
	timeout   time.Duration
	client    *http.Client
	logger    *zap.Logger
}

// NewReasoner creates a reasoner from cfg. Zero-valued settings take the
// package defaults. The API key is read once from creds under
// cfg.CredentialKey; a missing key yields a *ConfigurationError.
func NewReasoner(
	cfg model.ReasoningConfig,
	creds credential.Store,
	logger *zap.Logger,
) (*Reasoner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if creds == nil {
		return nil, &ConfigurationError{Setting: "credential store", Err: credential.ErrNotFound}
	}

	key := cfg.CredentialKey
	if key == "" {
		key = DefaultCredentialKey
	}
	apiKey, err := creds.Get(key)
	if err != nil {
		return nil, &ConfigurationError{Setting: key, Err: err}
	}

	r := &Reasoner{
		apiKey:    apiKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		apiURL:    cfg.APIURL,
		timeout:   cfg.Timeout(),
		logger:    logger.Named("reasoner"),
	}
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = defaultMaxTokens
	}
	if r.apiURL == "" {
		r.apiURL = defaultAPIURL
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	generation := cfg.GenerationTimeout()
	if generation <= 0 {
		generation = defaultGenerationTimeout
	}
	r.client = newHTTPClient(generation)

	return r, nil
}

// newHTTPClient returns a client whose transport gives up when the service
// has not started answering within generation.
func newHTTPClient(generation time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: generation,
	}
	return &http.Client{Transport: transport}
}

// Model returns the reasoning model identifier reported in results.
func (r *Reasoner) Model() string {
	return r.model
}

// Classify asks the reasoning service for a verdict on req. Timeouts,
// transport failures, non-2xx replies and invalid replies are logged and
// replaced by Fallback. Cancelling ctx takes the same path.
func (r *Reasoner) Classify(
	ctx context.Context,
	req model.ClassificationRequest,
) model.ReasoningVerdict {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := r.classify(ctx, req)
	if err != nil {
		r.logger.Warn("reasoning call failed, using fallback",
			zap.String("from", req.From),
			zap.String("subject", req.Subject),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return Fallback(req, err)
	}

	r.logger.Debug("reasoning verdict",
		zap.String("category", string(verdict.Category)),
		zap.Float64("importance", verdict.ImportanceScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	return verdict
}

func (r *Reasoner) classify(
	ctx context.Context,
	req model.ClassificationRequest,
) (model.ReasoningVerdict, error) {
	resp, err := r.callAPI(ctx, req)
	if err != nil {
		return model.ReasoningVerdict{}, err
	}

	input, err := toolInput(resp)
	if err != nil {
		return model.ReasoningVerdict{}, err
	}

	return parseVerdict(input)
}

// callAPI makes a single request to the Claude Messages API.
func (r *Reasoner) callAPI(
	ctx context.Context,
	req model.ClassificationRequest,
) (*apiResponse, error) {
	reqBody := apiRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		System:      systemPrompt,
		Temperature: temperature,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContentBlock{
					{Type: "text", Text: buildUserPrompt(req)},
				},
			},
		},
		Tools:      []apiTool{classificationTool()},
		ToolChoice: &apiToolChoice{Type: "tool", Name: toolName},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, r.apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", r.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling reasoning API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}

// toolInput returns the arguments of the forced classification tool call.
func toolInput(resp *apiResponse) (json.RawMessage, error) {
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			if len(block.Input) == 0 {
				return nil, errors.New("empty tool input")
			}
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("no %s call in response (stop reason %q)", toolName, resp.StopReason)
}
