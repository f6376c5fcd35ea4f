package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askdbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "AskDB API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	sessionID := fs.String("session", "", "Session ID for the ask command")
	noExecute := fs.Bool("no-execute", false, "Generate SQL without running it")
	explain := fs.Bool("explain", false, "Include a natural language explanation")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "ask":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "ask requires a question argument")
			return 2
		}
		payload := map[string]any{"question": strings.Join(fs.Args()[1:], " ")}
		if *sessionID != "" {
			payload["session_id"] = *sessionID
		}
		if *noExecute {
			payload["execute"] = false
		}
		if *explain {
			payload["explain"] = true
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path, body = http.MethodPost, "/v1/ask", encoded
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "sessions":
		method, path = http.MethodGet, "/v1/sessions"
	case "session-show":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "session-show requires a session id")
			return 2
		}
		method, path = http.MethodGet, "/v1/sessions/"+url.PathEscape(fs.Arg(1))
	case "session-clear":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "session-clear requires a session id")
			return 2
		}
		method, path = http.MethodDelete, "/v1/sessions/"+url.PathEscape(fs.Arg(1))
	case "sessions-clear":
		method, path = http.MethodDelete, "/v1/sessions"
	case "cache-stats":
		method, path = http.MethodGet, "/v1/cache/stats"
	case "cache-cleanup":
		method, path = http.MethodPost, "/v1/cache/cleanup"
	case "cache-clear":
		method, path = http.MethodDelete, "/v1/cache"
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askdbctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                 GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  ask <question>        POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  schema                GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  sessions              GET /v1/sessions")
	_, _ = fmt.Fprintln(w, "  session-show <id>     GET /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  session-clear <id>    DELETE /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  sessions-clear        DELETE /v1/sessions")
	_, _ = fmt.Fprintln(w, "  cache-stats           GET /v1/cache/stats")
	_, _ = fmt.Fprintln(w, "  cache-cleanup         POST /v1/cache/cleanup")
	_, _ = fmt.Fprintln(w, "  cache-clear           DELETE /v1/cache")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
