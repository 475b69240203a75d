package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hypatia-tutor/hypatia/pkg/events"
	"github.com/hypatia-tutor/hypatia/pkg/urlvalidation"
)

// Executor calls external hook endpoints.
type Executor struct {
	httpClient   *http.Client
	publisher    *events.Publisher
	validateOpts []urlvalidation.Option
}

// NewExecutor creates a new hook executor. The publisher may be nil.
func NewExecutor(publisher *events.Publisher, validateOpts ...urlvalidation.Option) *Executor {
	return &Executor{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		publisher:    publisher,
		validateOpts: validateOpts,
	}
}

// Validate checks the hook URL without calling it.
func (e *Executor) Validate(ctx context.Context, cfg HookConfig) error {
	if err := urlvalidation.ValidateHookURL(ctx, cfg.URL, e.validateOpts...); err != nil {
		return fmt.Errorf("hook URL validation: %w", err)
	}
	return nil
}

// Execute POSTs payload as JSON to the hook endpoint and returns the
// decoded response. Results and failures are reported as hook.result and
// hook.error events.
func (e *Executor) Execute(ctx context.Context, cfg HookConfig, sessionID string, payload any) (*HookResponse, error) {
	if err := e.Validate(ctx, cfg); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal hook request: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create hook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	switch cfg.AuthType {
	case "bearer":
		httpReq.Header.Set("Authorization", "Bearer "+cfg.AuthSecret)
	case "hmac":
		httpReq.Header.Set("X-Hook-Signature", hmacSign(cfg.AuthSecret, body))
	}

	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.emitError(ctx, cfg, sessionID, err.Error())
		return nil, fmt.Errorf("hook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMsg := fmt.Sprintf("hook returned HTTP %d: %s", resp.StatusCode, string(respBody))
		e.emitError(ctx, cfg, sessionID, errMsg)
		return nil, fmt.Errorf("%s", errMsg)
	}

	var hookResp HookResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &hookResp); err != nil {
			return nil, fmt.Errorf("unmarshal hook response: %w", err)
		}
	}

	if e.publisher != nil {
		_ = e.publisher.Emit(ctx, events.HookResult, sessionID, &events.HookResultData{
			HookURL:    cfg.URL,
			StatusCode: resp.StatusCode,
			Response:   hookResp.Data,
		})
	}

	return &hookResp, nil
}

func (e *Executor) emitError(ctx context.Context, cfg HookConfig, sessionID, msg string) {
	if e.publisher == nil {
		return
	}
	_ = e.publisher.Emit(ctx, events.HookError, sessionID, &events.HookErrorData{
		HookURL: cfg.URL,
		Error:   msg,
	})
}

func hmacSign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%x", mac.Sum(nil))
}
