// Package retrieval queries a hosted knowledge store for schema
// documentation and example queries relevant to a question. Retrieval
// is an enrichment step: every failure degrades to an empty result so
// the pipeline can continue without it.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/observability"
)

// Passage is one retrieved snippet that met the confidence threshold.
type Passage struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result carries the passages that passed filtering. Used reports
// whether any context will reach the prompt.
type Result struct {
	Passages []Passage `json:"passages"`
	Used     bool      `json:"used"`
}

// RuleCheck is the advisory outcome of matching generated SQL against
// retrieved business rules.
type RuleCheck struct {
	Compliant       bool     `json:"compliant"`
	Warnings        []string `json:"warnings,omitempty"`
	ApplicableRules []string `json:"applicable_rules,omitempty"`
}

type Config struct {
	BaseURL         string
	APIKey          string
	KnowledgeBaseID string
	MaxResults      int
	MinConfidence   float64
	Timeout         time.Duration
}

type Client struct {
	baseURL         string
	apiKey          string
	knowledgeBaseID string
	maxResults      int
	minConfidence   float64
	client          *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.KnowledgeBaseID) == "" {
		return nil, fmt.Errorf("knowledge base id is required")
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		knowledgeBaseID: strings.TrimSpace(cfg.KnowledgeBaseID),
		maxResults:      maxResults,
		minConfidence:   cfg.MinConfidence,
		client:          &http.Client{Timeout: timeout},
	}, nil
}

// Retrieve fetches passages for the question and drops every hit below
// the confidence threshold.
func (c *Client) Retrieve(ctx context.Context, question string) (Result, error) {
	hits, err := c.query(ctx, question)
	if err != nil {
		return Result{}, err
	}

	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		if hit.Confidence < c.minConfidence {
			continue
		}
		passages = append(passages, hit)
	}
	observability.ObserveRetrievalKept(len(passages))
	return Result{Passages: passages, Used: len(passages) > 0}, nil
}

// SuggestSimilar returns example statements related to the question.
// Failures yield an empty slice, never an error.
func (c *Client) SuggestSimilar(ctx context.Context, question string, limit int) []string {
	hits, err := c.query(ctx, "similar queries to: "+question)
	if err != nil {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}
	var suggestions []string
	for _, hit := range hits {
		lowered := strings.ToLower(hit.Text)
		if !strings.Contains(lowered, "example:") && !strings.Contains(lowered, "query:") {
			continue
		}
		suggestions = append(suggestions, strings.TrimSpace(hit.Text))
		if len(suggestions) >= limit {
			break
		}
	}
	return suggestions
}

// CheckBusinessRules looks up rules relevant to the question and flags
// generated SQL that appears to ignore them. Purely advisory; lookup
// failures report compliant with no findings.
func (c *Client) CheckBusinessRules(ctx context.Context, question, sql string) RuleCheck {
	hits, err := c.query(ctx, "business rules for: "+question)
	if err != nil {
		return RuleCheck{Compliant: true}
	}

	check := RuleCheck{Compliant: true}
	loweredSQL := strings.ToLower(sql)
	for _, hit := range hits {
		rule := strings.TrimSpace(hit.Text)
		loweredRule := strings.ToLower(rule)
		if !strings.Contains(loweredRule, "must include") &&
			!strings.Contains(loweredRule, "required filter") &&
			!strings.Contains(loweredRule, "date range") &&
			!strings.Contains(loweredRule, "active records only") {
			continue
		}
		check.ApplicableRules = append(check.ApplicableRules, rule)
		switch {
		case strings.Contains(loweredRule, "date range") && !strings.Contains(loweredSQL, "where"):
			check.Compliant = false
			check.Warnings = append(check.Warnings, "rule requires a date range but the query has no WHERE clause")
		case strings.Contains(loweredRule, "active records only") && !strings.Contains(loweredSQL, "active"):
			check.Compliant = false
			check.Warnings = append(check.Warnings, "rule restricts results to active records but the query never filters on active")
		}
	}
	return check
}

func (c *Client) query(ctx context.Context, text string) ([]Passage, error) {
	payload := map[string]any{
		"query":           map[string]any{"text": text},
		"numberOfResults": c.maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.RetrievalDegraded, "marshal retrieve payload", err)
	}

	endpoint := c.baseURL + "/knowledgebases/" + url.PathEscape(c.knowledgeBaseID) + "/retrieve"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.RetrievalDegraded, "build retrieve request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.RetrievalDegraded, "request knowledge store", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.RetrievalDegraded, "read retrieve response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fault.New(fault.RetrievalDegraded,
			fmt.Sprintf("knowledge store returned status=%d", resp.StatusCode))
	}

	var parsed struct {
		RetrievalResults []struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
			Score    float64           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"retrievalResults"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fault.Wrap(fault.RetrievalDegraded, "decode retrieve response", err)
	}

	passages := make([]Passage, 0, len(parsed.RetrievalResults))
	for _, hit := range parsed.RetrievalResults {
		passages = append(passages, Passage{
			Text:       hit.Content.Text,
			Confidence: hit.Score,
			Metadata:   hit.Metadata,
		})
	}
	return passages, nil
}
