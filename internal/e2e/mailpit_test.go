//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPersistFailureAlertsViaMailpit(t *testing.T) {
	if os.Getenv("MATCHDAY_E2E") == "" {
		t.Skip("set MATCHDAY_E2E=1 to enable e2e tests")
	}

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("find repo root: %v", err)
	}
	composeFile := getenv("MAILPIT_COMPOSE_FILE", filepath.Join(repoRoot, "docker-compose.yml"))
	apiBase := strings.TrimRight(getenv("MAILPIT_API_BASE", "http://localhost:8025"), "/")

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := dockerCompose(ctx, repoRoot, composeFile, "up", "-d"); err != nil {
		t.Fatalf("docker compose up: %v", err)
	}
	if os.Getenv("MAILPIT_KEEP_RUNNING") == "" {
		t.Cleanup(func() {
			_ = dockerCompose(context.Background(), repoRoot, composeFile, "down")
		})
	}
	waitForHTTP200(t, ctx, apiBase+"/api/v1/messages")
	_ = httpDo(ctx, http.MethodDelete, apiBase+"/api/v1/messages", nil)

	runID := fmt.Sprintf("%d-%d", time.Now().Unix(), rand.IntN(1_000_000))
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = io.WriteString(w, strings.ReplaceAll(rssFixtureXML, "__RUN_ID__", runID))
	}))
	t.Cleanup(feedServer.Close)

	dir := t.TempDir()
	configFile := filepath.Join(dir, "matchday.yaml")
	configYAML := strings.ReplaceAll(configFixtureYAML, "__FEED_URL__", feedServer.URL+"/feed.xml")
	if err := os.WriteFile(configFile, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	// A directory where the state file should be makes every save fail.
	statePath := filepath.Join(dir, "state.json")
	if err := os.Mkdir(statePath, 0o755); err != nil {
		t.Fatalf("create state directory: %v", err)
	}

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/matchday", "--config", configFile, "--dry-run")
	cmd.Dir = repoRoot
	cmd.Env = append(os.Environ(),
		"STATE_PATH="+statePath,
		"SMTP_HOST=localhost",
		"SMTP_PORT=1025",
		"SMTP_TLS_MODE=disabled",
		"ALERT_EMAIL_FROM=matchday@example.com",
		"ALERT_EMAIL_TO=ops@example.com",
	)
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected matchday to exit non-zero, got %v\n%s", err, out)
	}

	msg := waitForMailpitMessage(t, ctx, apiBase, "state persist failed", runID)
	if !strings.HasPrefix(msg.Subject, "[matchday] ") {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "<strong>") {
		t.Fatalf("expected rendered markdown in html part, got %q", msg.HTML)
	}
}

const rssFixtureXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Matchday E2E Feed</title>
    <link>http://localhost/</link>
    <description>Local feed for the matchday alert e2e.</description>
    <item>
      <title>Spurs confirm squad for the derby</title>
      <link>http://localhost/news/1</link>
      <guid>matchday-e2e-__RUN_ID__</guid>
      <pubDate>Sat, 17 Oct 2026 09:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const configFixtureYAML = `scores:
  enabled: false
news:
  feeds:
    - name: e2e
      url: "__FEED_URL__"
  limit: 1
`

type mailpitMessagesResponse struct {
	Messages []mailpitMessageSummary `json:"messages"`
}

type mailpitMessageSummary struct {
	ID      string `json:"ID"`
	Subject string `json:"Subject"`
}

type mailpitMessage struct {
	Subject string `json:"Subject"`
	HTML    string `json:"HTML"`
	Text    string `json:"Text"`
}

func waitForMailpitMessage(t *testing.T, ctx context.Context, apiBase, subject, marker string) mailpitMessage {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		raw := mustHTTPGet(t, ctx, apiBase+"/api/v1/messages")
		var res mailpitMessagesResponse
		_ = json.Unmarshal(raw, &res)
		for _, m := range res.Messages {
			if m.ID == "" || !strings.Contains(m.Subject, subject) {
				continue
			}
			var msg mailpitMessage
			if err := json.Unmarshal(mustHTTPGet(t, ctx, apiBase+"/api/v1/message/"+m.ID), &msg); err != nil {
				continue
			}
			if strings.Contains(firstNonEmpty(msg.Text, msg.HTML), marker) {
				return msg
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q alert mentioning %q", subject, marker)
	return mailpitMessage{}
}

func dockerCompose(ctx context.Context, repoRoot string, composeFile string, args ...string) error {
	all := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", all...)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %w\n%s", cmd.Args, err, out)
	}
	return nil
}

func waitForHTTP200(t *testing.T, ctx context.Context, url string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil && resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", url)
}

func mustHTTPGet(t *testing.T, ctx context.Context, url string) []byte {
	t.Helper()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.Fatalf("GET %s: status=%d body=%s", url, resp.StatusCode, body)
	}
	return body
}

func httpDo(ctx context.Context, method string, url string, body []byte) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, _ := http.NewRequestWithContext(ctx, method, url, r)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status=%d", method, url, resp.StatusCode)
	}
	return nil
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return "", errors.New("go.mod not found in parent directories")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
