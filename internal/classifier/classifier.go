// Package classifier scores whether two requirement statements contradict
// each other using a language model. It is an optional helper for the
// requirement conflict family: the detector works without it, and any
// failure here degrades to rule-only detection.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"
)

// Classifier returns the likelihood in [0, 1] that a and b contradict.
type Classifier interface {
	Contradiction(ctx context.Context, a, b string) (float64, error)
}

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("classifier disabled")

// Noop is the classifier used when no model is configured.
type Noop struct{}

// Contradiction always returns ErrDisabled.
func (Noop) Contradiction(context.Context, string, string) (float64, error) {
	return 0, ErrDisabled
}

const systemPrompt = `You compare two software requirement statements.
Decide whether both can be true of the same product at the same time.
Respond with ONLY valid JSON (no markdown, no preamble):
{"contradiction": 0.0-1.0, "reason": "brief"}`

// ChatClient is the subset of the OpenAI client the classifier uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the OpenAI-backed classifier.
type Config struct {
	Model        string
	Timeout      time.Duration
	CacheMaxSize int
}

// OpenAI classifies with a chat completion model. Identical in-flight
// requests are coalesced and results are cached for the process lifetime
// (bounded by CacheMaxSize).
type OpenAI struct {
	client   ChatClient
	config   Config
	logger   *slog.Logger
	inflight singleflight.Group

	mu    sync.Mutex
	cache map[string]float64
}

// NewOpenAI creates a classifier around client.
func NewOpenAI(client ChatClient, config Config, logger *slog.Logger) (*OpenAI, error) {
	if client == nil {
		return nil, errors.New("classifier: client must not be nil")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.CacheMaxSize <= 0 {
		config.CacheMaxSize = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client: client,
		config: config,
		logger: logger,
		cache:  make(map[string]float64),
	}, nil
}

// NewOpenAIFromKey builds a classifier talking to the OpenAI API.
func NewOpenAIFromKey(apiKey string, config Config, logger *slog.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("classifier: api key is empty")
	}
	return NewOpenAI(openai.NewClient(apiKey), config, logger)
}

// Contradiction implements Classifier. A call that exceeds the configured
// timeout returns *model.ExternalServiceTimeout.
func (c *OpenAI) Contradiction(ctx context.Context, a, b string) (float64, error) {
	key := pairKey(a, b)

	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		return c.classify(ctx, a, b)
	})
	if err != nil {
		return 0, err
	}
	score := v.(float64)

	c.mu.Lock()
	if len(c.cache) >= c.config.CacheMaxSize {
		clear(c.cache)
	}
	c.cache[key] = score
	c.mu.Unlock()

	return score, nil
}

func (c *OpenAI) classify(ctx context.Context, a, b string) (float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("A: %s\nB: %s", a, b)},
		},
		Temperature: 0,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, &model.ExternalServiceTimeout{Service: "openai", Err: err}
		}
		return 0, fmt.Errorf("classifier: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, errors.New("classifier: model returned no choices")
	}

	score, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("contradiction classified",
		slog.Float64("score", score),
		slog.Duration("took", time.Since(start)))
	return score, nil
}

type response struct {
	Contradiction *float64 `json:"contradiction"`
	Reason        string   `json:"reason"`
}

// ParseResponse extracts the contradiction score from a model reply. It
// tolerates markdown code fences around the JSON object.
func ParseResponse(content string) (float64, error) {
	content = strings.TrimSpace(content)
	if i := strings.IndexByte(content, '{'); i >= 0 {
		if j := strings.LastIndexByte(content, '}'); j > i {
			content = content[i : j+1]
		}
	}

	var r response
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return 0, fmt.Errorf("classifier: parsing reply: %w", err)
	}
	if r.Contradiction == nil {
		return 0, errors.New("classifier: reply has no contradiction score")
	}
	score := *r.Contradiction
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("classifier: score %v out of range", score)
	}
	return score, nil
}

// pairKey is order-independent so (a, b) and (b, a) share one request.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return hex.EncodeToString(sum[:])
}
