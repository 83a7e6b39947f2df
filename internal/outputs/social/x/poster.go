package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
)

const createTweetPath = "/2/tweets"

// Poster creates posts through the X API v2 with OAuth 1.0a user context.
type Poster struct {
	baseURL string
	client  *http.Client
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func NewPoster(cfg config.TwitterEnvConfig) (*Poster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	oauthConfig := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	client := oauthConfig.Client(oauth1.NoContext, token)
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client.Timeout = timeout
	return &Poster{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}, nil
}

func (p *Poster) Post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(createTweetRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("encode tweet: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+createTweetPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tweet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("post tweet: status %d: %s", resp.StatusCode, excerpt(payload))
	}
	// The post exists once X answers 2xx, whatever the body says.
	logger := core.LoggerFromContext(ctx)
	if readErr != nil {
		logger.Warn("tweet created but response unreadable", "status", resp.StatusCode, "error", readErr)
		return "", nil
	}
	var created createTweetResponse
	if err := json.Unmarshal(payload, &created); err != nil || created.Data.ID == "" {
		logger.Warn("tweet created but response has no id", "status", resp.StatusCode, "error", err, "body", excerpt(payload))
		return "", nil
	}
	return created.Data.ID, nil
}

func excerpt(body []byte) string {
	text := []rune(strings.TrimSpace(string(body)))
	if len(text) > 300 {
		return string(text[:300]) + "..."
	}
	return string(text)
}
