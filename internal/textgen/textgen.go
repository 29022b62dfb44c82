// Package textgen produces reminder texts through an OpenAI-compatible
// chat completions endpoint. Generate never fails for upstream reasons: any
// API error falls back to a canned reminder.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"remindbot/internal/settings"
	logx "remindbot/pkg/logx"
)

// Generator returns a message for a destination.
type Generator interface {
	Generate(ctx context.Context, name, id string, s settings.Settings) (string, error)
}

// Config mirrors config.GeneratorConfig with parsed durations.
type Config struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Retries     int
}

type Client struct {
	mu   sync.RWMutex
	cfg  Config
	http *http.Client

	docs *Documents
	log  logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, docs *Documents, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{
		http: &http.Client{},
		docs: docs,
		log:  log,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.Apply(cfg)
	return c
}

// Apply swaps the endpoint settings at runtime.
func (c *Client) Apply(cfg Config) {
	cfg.APIBase = strings.TrimSuffix(strings.TrimSpace(cfg.APIBase), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool { return strings.TrimSpace(c.config().APIKey) != "" }

func (c *Client) Documents() *Documents { return c.docs }

// Generate builds the prompt for the destination (with its reference
// document when one exists) and asks the model. Only a canceled ctx is
// returned as an error.
func (c *Client) Generate(ctx context.Context, name, id string, s settings.Settings) (string, error) {
	log := c.log.With(logx.String("group", name), logx.String("id", id))

	doc := ""
	if c.docs != nil {
		text, err := c.docs.Text(id)
		switch {
		case err == nil:
			doc = text
		case errors.Is(err, ErrNoDocument):
			log.Debug("no reference document; using generic prompt")
		default:
			log.Warn("reference document unreadable; using generic prompt", logx.Err(err))
		}
	}

	tpl := s.PromptWithoutDocument
	if doc != "" {
		tpl = s.PromptWithDocument
	}
	prompt := Render(tpl, name, doc)

	start := time.Now()
	text, err := c.complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn("generation failed; using canned reminder", logx.Err(err))
		return c.fallback(name), nil
	}
	log.Debug("message generated", logx.Duration("took", time.Since(start)), logx.Bool("with_document", doc != ""))
	return text, nil
}

func (c *Client) fallback(name string) string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return Fallback(name, c.rng)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var errNoKey = errors.New("api key not configured")

// complete posts one user prompt, retrying transport errors, 429 and 5xx.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	cfg := c.config()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return "", errNoKey
	}

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	op := func() error {
		rctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		t, err := c.post(rctx, cfg, body)
		if err != nil {
			return err
		}
		text = t
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	err = backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.Retries)), ctx),
		func(err error, wait time.Duration) {
			c.log.Debug("completion retry", logx.Err(err), logx.Duration("wait", wait))
		},
	)
	return text, err
}

func (c *Client) post(ctx context.Context, cfg Config, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("parse response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(errors.New("empty completion"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
