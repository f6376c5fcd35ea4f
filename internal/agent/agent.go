// Package agent orchestrates the question pipeline: assemble context,
// generate SQL, validate, consult the cache, execute, and record the
// conversation turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/cache"
	"github.com/askdb/askdb/internal/convo"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/retrieval"
	"github.com/askdb/askdb/internal/sqlgen"
	"github.com/askdb/askdb/internal/validator"
)

// Question carries one request through the pipeline. Flags arrive
// resolved; the transport layer applies request defaults.
type Question struct {
	Text           string
	SessionID      string
	Execute        bool
	Explain        bool
	Validate       bool
	UseCache       bool
	UseRetrieval   bool
	IncludeSamples bool
}

// Response is the pipeline's JSON-serializable outcome. A fatal stage
// failure yields Error plus the echoed question and nothing else
// downstream of the failed stage.
type Response struct {
	NaturalLanguageQuery string                      `json:"natural_language_query"`
	EnhancedQuery        string                      `json:"enhanced_query,omitempty"`
	SessionID            string                      `json:"session_id,omitempty"`
	Database             string                      `json:"database"`
	SQLQuery             string                      `json:"sql_query,omitempty"`
	Executed             bool                        `json:"executed"`
	Cached               bool                        `json:"cached"`
	RetrievalUsed        bool                        `json:"retrieval_used"`
	Validation           *validator.ValidationResult `json:"validation,omitempty"`
	QueryInfo            *validator.QueryInfo        `json:"query_info,omitempty"`
	Explanation          string                      `json:"explanation,omitempty"`
	Results              []map[string]any            `json:"results,omitempty"`
	RowCount             *int                        `json:"row_count,omitempty"`
	RuleCheck            *retrieval.RuleCheck        `json:"rule_check,omitempty"`
	Error                string                      `json:"error,omitempty"`
	ErrorKind            string                      `json:"error_kind,omitempty"`
	Hint                 string                      `json:"hint,omitempty"`
}

// AsyncResponse is the outcome of starting a background execution.
type AsyncResponse struct {
	NaturalLanguageQuery string `json:"natural_language_query"`
	SQLQuery             string `json:"sql_query"`
	ExecutionID          string `json:"execution_id"`
}

// IntentAnalysis is the advisory classification of a question before
// any SQL exists.
type IntentAnalysis struct {
	Query              string   `json:"query"`
	IntentType         string   `json:"intent_type"`
	Complexity         string   `json:"complexity"`
	TablesLikelyNeeded []string `json:"tables_likely_needed"`
	Recommendations    []string `json:"recommendations"`
}

// Generator produces SQL and explanations from assembled context.
type Generator interface {
	Generate(ctx context.Context, question string, bundle sqlgen.Bundle) (sqlgen.CandidateQuery, error)
	Explain(ctx context.Context, sql string) string
}

// SchemaProvider renders the schema context block and lists tables.
type SchemaProvider interface {
	Build(ctx context.Context, database string, includeSamples bool) (string, error)
	ListTables(ctx context.Context, database string) ([]string, error)
}

// Retriever enriches questions with knowledge-store context. All three
// operations are allowed to degrade; only Retrieve reports an error.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (retrieval.Result, error)
	SuggestSimilar(ctx context.Context, question string, limit int) []string
	CheckBusinessRules(ctx context.Context, question, sql string) retrieval.RuleCheck
}

type Config struct {
	Database           string
	MaxContextMessages int
	DefaultLimit       int
	ApplyLimit         bool
	CacheEnabled       bool
	RetrievalEnabled   bool
}

// Dependencies carries the pipeline's collaborators. Cache, Retriever,
// Engine, and Registry may be nil; the corresponding stages are then
// skipped or degraded.
type Dependencies struct {
	Generator Generator
	Validator *validator.Validator
	Schema    SchemaProvider
	Sessions  convo.Store
	Cache     *cache.Cache
	Retriever Retriever
	Engine    executor.Engine
	Registry  *executor.Registry
	Logger    *slog.Logger
}

type Agent struct {
	cfg  Config
	deps Dependencies
}

func New(cfg Config, deps Dependencies) (*Agent, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if deps.Schema == nil {
		return nil, fmt.Errorf("schema provider is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = 5
	}
	return &Agent{cfg: cfg, deps: deps}, nil
}

// Ask runs the full pipeline. It never returns an error: every failure
// is folded into the response so the transport layer has one shape to
// serialize.
func (a *Agent) Ask(ctx context.Context, question Question) Response {
	start := time.Now()
	response := Response{
		NaturalLanguageQuery: question.Text,
		SessionID:            a.sessionID(question.SessionID),
		Database:             a.cfg.Database,
	}

	// The conversation turn is recorded exactly once, after the
	// pipeline reaches a terminal state. Recording is detached from
	// the request context so a caller that disconnects mid-flight
	// cannot leave a half-written turn behind.
	defer func(resp *Response) {
		a.recordTurn(context.WithoutCancel(ctx), question, *resp)
		outcome := "succeeded"
		if resp.Error != "" {
			outcome = "failed"
		}
		observability.ObserveQuestion(outcome, time.Since(start))
	}(&response)

	if strings.TrimSpace(question.Text) == "" {
		response.Error = "question is empty"
		response.ErrorKind = string(fault.GenerationFailed)
		return response
	}

	history := a.history(ctx, response.SessionID)
	effective := convo.Enhance(question.Text, history)
	if effective != question.Text {
		response.EnhancedQuery = effective
	}

	bundle, retrievalResult, err := a.assembleContext(ctx, effective, question, history)
	if err != nil {
		a.fail(&response, err)
		return response
	}
	response.RetrievalUsed = retrievalResult.Used

	candidate, err := a.deps.Generator.Generate(ctx, effective, bundle)
	if err != nil {
		observability.IncrementGenerationFailure()
		a.fail(&response, err)
		return response
	}
	response.SQLQuery = candidate.SQL

	if question.Validate {
		validation := a.deps.Validator.Validate(candidate.SQL)
		response.Validation = &validation
		if !validation.Valid {
			observability.IncrementValidationBlocked()
			response.Error = strings.Join(validation.Errors, "; ")
			response.ErrorKind = string(fault.ValidationBlocked)
			return response
		}
	}

	info := a.deps.Validator.Info(candidate.SQL)
	response.QueryInfo = &info

	if question.Explain {
		response.Explanation = a.deps.Generator.Explain(ctx, candidate.SQL)
	}

	if retrievalResult.Used && a.deps.Retriever != nil {
		check := a.deps.Retriever.CheckBusinessRules(ctx, effective, candidate.SQL)
		response.RuleCheck = &check
	}

	if question.Execute {
		a.execute(ctx, question, &response)
	}
	return response
}

// assembleContext fetches the schema block and retrieval passages
// concurrently and joins them into the prompt bundle. Retrieval
// failures degrade to an empty result; schema failures are fatal.
func (a *Agent) assembleContext(ctx context.Context, question string, flags Question, history []convo.Message) (sqlgen.Bundle, retrieval.Result, error) {
	type schemaOut struct {
		text string
		err  error
	}
	schemaCh := make(chan schemaOut, 1)
	go func() {
		text, err := a.deps.Schema.Build(ctx, a.cfg.Database, flags.IncludeSamples)
		schemaCh <- schemaOut{text: text, err: err}
	}()

	retrievalCh := make(chan retrieval.Result, 1)
	go func() {
		if !a.cfg.RetrievalEnabled || !flags.UseRetrieval || a.deps.Retriever == nil {
			retrievalCh <- retrieval.Result{}
			return
		}
		result, err := a.deps.Retriever.Retrieve(ctx, question)
		if err != nil {
			a.deps.Logger.WarnContext(ctx, "retrieval degraded",
				slog.String("error", err.Error()),
				slog.String("trace_id", observability.TraceIDFromContext(ctx)))
			retrievalCh <- retrieval.Result{}
			return
		}
		retrievalCh <- result
	}()

	schemaResult := <-schemaCh
	retrievalResult := <-retrievalCh
	if schemaResult.err != nil {
		return sqlgen.Bundle{}, retrieval.Result{}, fault.Wrap(fault.GenerationFailed, "assemble schema context", schemaResult.err)
	}

	return sqlgen.Bundle{
		Database:     a.cfg.Database,
		Schema:       schemaResult.text,
		Passages:     retrievalResult.Passages,
		Conversation: convo.ContextString(history),
	}, retrievalResult, nil
}

func (a *Agent) execute(ctx context.Context, question Question, response *Response) {
	sqlText := response.SQLQuery
	if a.cfg.ApplyLimit {
		sqlText = validator.SuggestLimit(sqlText, a.cfg.DefaultLimit)
		response.SQLQuery = sqlText
	}

	useCache := a.cfg.CacheEnabled && question.UseCache && a.deps.Cache != nil
	if useCache {
		if entry, ok := a.deps.Cache.Get(ctx, a.cfg.Database, sqlText); ok {
			response.Cached = true
			response.Executed = true
			response.Results = entry.Rows
			count := len(entry.Rows)
			response.RowCount = &count
			return
		}
	}

	if a.deps.Engine == nil {
		return
	}

	start := time.Now()
	result, err := a.deps.Engine.Execute(ctx, a.cfg.Database, sqlText)
	observability.ObserveExecution(time.Since(start))
	if err != nil {
		wrapped := fault.Wrap(fault.ExecutionFailed, "query execution failed", err)
		response.Error = wrapped.Error()
		response.ErrorKind = string(fault.ExecutionFailed)
		response.Hint = executor.Hint(err)
		return
	}

	response.Executed = true
	response.Results = result.Rows
	count := len(result.Rows)
	response.RowCount = &count

	if useCache {
		a.deps.Cache.Set(ctx, a.cfg.Database, sqlText, result.Rows)
	}
}

// AskAsync generates and validates SQL, then hands it to the
// background registry instead of waiting for rows.
func (a *Agent) AskAsync(ctx context.Context, question Question) (AsyncResponse, error) {
	if a.deps.Registry == nil {
		return AsyncResponse{}, fault.New(fault.ExecutionFailed, "asynchronous execution is not configured")
	}

	sync := question
	sync.Execute = false
	response := a.Ask(ctx, sync)
	if response.Error != "" {
		return AsyncResponse{}, fault.New(fault.Kind(response.ErrorKind), response.Error)
	}

	sqlText := response.SQLQuery
	if a.cfg.ApplyLimit {
		sqlText = validator.SuggestLimit(sqlText, a.cfg.DefaultLimit)
	}
	return AsyncResponse{
		NaturalLanguageQuery: question.Text,
		SQLQuery:             sqlText,
		ExecutionID:          a.deps.Registry.Start(a.cfg.Database, sqlText),
	}, nil
}

// Execution polls a background execution by ID.
func (a *Agent) Execution(id string) (executor.Execution, error) {
	if a.deps.Registry == nil {
		return executor.Execution{}, executor.ErrExecutionNotFound
	}
	return a.deps.Registry.Fetch(id)
}

// defaultSuggestions are returned when the knowledge store has nothing
// to offer.
var defaultSuggestions = []string{
	"Show me all customers from Texas",
	"What are the top 5 products by price?",
	"Count total orders by status",
	"List customers who ordered Electronics",
	"Calculate total revenue by category this month",
}

// Suggestions returns worked-example questions, preferring the
// knowledge store and falling back to canned defaults.
func (a *Agent) Suggestions(ctx context.Context, partial string) []string {
	if a.deps.Retriever != nil && a.cfg.RetrievalEnabled {
		if strings.TrimSpace(partial) != "" {
			if found := a.deps.Retriever.SuggestSimilar(ctx, partial, 5); len(found) > 0 {
				return dedupe(found)
			}
		} else {
			var found []string
			for _, message := range a.recentQueries(ctx, 3) {
				found = append(found, a.deps.Retriever.SuggestSimilar(ctx, message, 2)...)
			}
			if len(found) > 0 {
				return dedupe(found)
			}
		}
	}
	out := make([]string, len(defaultSuggestions))
	copy(out, defaultSuggestions)
	return out
}

// AnalyzeIntent classifies a question without generating SQL. Purely
// heuristic and advisory.
func (a *Agent) AnalyzeIntent(ctx context.Context, question string) IntentAnalysis {
	analysis := IntentAnalysis{
		Query:      question,
		IntentType: "unknown",
		Complexity: "low",
	}
	lowered := strings.ToLower(question)

	switch {
	case containsAny(lowered, "show", "list", "display", "get"):
		analysis.IntentType = "retrieval"
	case containsAny(lowered, "count", "sum", "total", "average", "calculate"):
		analysis.IntentType = "aggregation"
	case containsAny(lowered, "compare", "vs", "versus", "difference"):
		analysis.IntentType = "comparison"
	case containsAny(lowered, "trend", "over time", "monthly", "yearly"):
		analysis.IntentType = "temporal_analysis"
	}

	if containsAny(lowered, "join", "group by", "having", "subquery", "multiple tables") {
		analysis.Complexity = "high"
	} else if containsAny(lowered, "top", "best", "most", "least") {
		analysis.Complexity = "medium"
	}

	analysis.TablesLikelyNeeded = a.likelyTables(ctx, lowered)

	if analysis.Complexity == "high" {
		analysis.Recommendations = append(analysis.Recommendations, "This query may require multiple tables and complex joins")
	}
	if len(analysis.TablesLikelyNeeded) == 0 {
		analysis.Recommendations = append(analysis.Recommendations, "Consider naming the data you are interested in; no known table matches the question")
	}
	return analysis
}

// likelyTables matches catalog table names against the question text,
// tolerating singular and plural mentions.
func (a *Agent) likelyTables(ctx context.Context, loweredQuestion string) []string {
	tables, err := a.deps.Schema.ListTables(ctx, a.cfg.Database)
	if err != nil {
		return nil
	}
	var likely []string
	for _, table := range tables {
		lowered := strings.ToLower(table)
		singular := strings.TrimSuffix(lowered, "s")
		if strings.Contains(loweredQuestion, lowered) || (singular != "" && strings.Contains(loweredQuestion, singular)) {
			likely = append(likely, table)
		}
	}
	return likely
}

// SchemaContext renders the schema block for debugging.
func (a *Agent) SchemaContext(ctx context.Context, includeSamples bool) (string, error) {
	return a.deps.Schema.Build(ctx, a.cfg.Database, includeSamples)
}

func (a *Agent) Sessions(ctx context.Context) ([]convo.Session, error) {
	return a.deps.Sessions.ListSessions(ctx)
}

func (a *Agent) SessionMessages(ctx context.Context, sessionID string) ([]convo.Message, error) {
	return a.deps.Sessions.Messages(ctx, sessionID, 0)
}

func (a *Agent) ClearSession(ctx context.Context, sessionID string) error {
	return a.deps.Sessions.Clear(ctx, sessionID)
}

func (a *Agent) ClearAllSessions(ctx context.Context) error {
	return a.deps.Sessions.ClearAll(ctx)
}

func (a *Agent) CacheStats() (cache.Stats, error) {
	if a.deps.Cache == nil {
		return cache.Stats{}, fault.New(fault.CacheUnavailable, "cache is not configured")
	}
	return a.deps.Cache.Stats(), nil
}

func (a *Agent) CacheCleanup(ctx context.Context) (int, error) {
	if a.deps.Cache == nil {
		return 0, fault.New(fault.CacheUnavailable, "cache is not configured")
	}
	return a.deps.Cache.CleanupExpired(ctx), nil
}

func (a *Agent) CacheClear(ctx context.Context) error {
	if a.deps.Cache == nil {
		return fault.New(fault.CacheUnavailable, "cache is not configured")
	}
	a.deps.Cache.InvalidateAll(ctx)
	return nil
}

func (a *Agent) fail(response *Response, err error) {
	response.Error = err.Error()
	response.ErrorKind = string(fault.KindOf(err))
}

func (a *Agent) sessionID(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return "session-" + time.Now().UTC().Format("20060102-150405.000000000")
}

func (a *Agent) history(ctx context.Context, sessionID string) []convo.Message {
	messages, err := a.deps.Sessions.Messages(ctx, sessionID, a.cfg.MaxContextMessages)
	if err != nil {
		return nil
	}
	return messages
}

// recordTurn appends the user and assistant turns. Persistence
// failures are logged, never raised.
func (a *Agent) recordTurn(ctx context.Context, question Question, response Response) {
	if strings.TrimSpace(question.Text) == "" {
		return
	}
	if err := a.deps.Sessions.Append(ctx, response.SessionID, convo.Message{
		Role: convo.RoleUser,
		Text: question.Text,
	}); err != nil {
		a.deps.Logger.WarnContext(ctx, "conversation append failed",
			slog.String("session_id", response.SessionID), slog.String("error", err.Error()))
		return
	}

	assistant := convo.Message{
		Role:     convo.RoleAssistant,
		Text:     assistantSummary(response),
		SQL:      response.SQLQuery,
		RowCount: response.RowCount,
	}
	if response.QueryInfo != nil {
		assistant.Metadata = map[string]string{"complexity": response.QueryInfo.Complexity}
	}
	if err := a.deps.Sessions.Append(ctx, response.SessionID, assistant); err != nil {
		a.deps.Logger.WarnContext(ctx, "conversation append failed",
			slog.String("session_id", response.SessionID), slog.String("error", err.Error()))
	}
}

func assistantSummary(response Response) string {
	switch {
	case response.Error != "":
		return "failed: " + response.Error
	case response.Cached:
		return "answered from cache"
	case response.Executed:
		return "executed"
	default:
		return "generated"
	}
}

func (a *Agent) recentQueries(ctx context.Context, limit int) []string {
	sessions, err := a.deps.Sessions.ListSessions(ctx)
	if err != nil || len(sessions) == 0 {
		return nil
	}
	messages, err := a.deps.Sessions.Messages(ctx, sessions[0].SessionID, 0)
	if err != nil {
		return nil
	}
	var queries []string
	for i := len(messages) - 1; i >= 0 && len(queries) < limit; i-- {
		if messages[i].Role == convo.RoleUser {
			queries = append(queries, messages[i].Text)
		}
	}
	return queries
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
