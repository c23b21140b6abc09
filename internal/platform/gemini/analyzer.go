package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/jobsentry/api/internal/analysis"
	"github.com/jobsentry/api/internal/config"
	"github.com/jobsentry/api/internal/domain"
	"google.golang.org/genai"
)

// GeminiAnalyzer implements the analysis.Analyzer interface using Google's
// Gemini API to score and summarize job postings.
//
// The analyzer performs exactly one API attempt per call: retry policy
// belongs to the governance layer (rate limiter, circuit breaker, recovery
// orchestrator), not to the client.
type GeminiAnalyzer struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template
	client         *genai.Client
	model          string
}

// NewGeminiAnalyzer creates a new GeminiAnalyzer with the provided
// dependencies. Returns an error if the configuration is invalid or the
// client cannot be constructed.
func NewGeminiAnalyzer(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.LLMConfig,
) (*GeminiAnalyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", analysis.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("posting").Parse(promptTemplateText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			analysis.ErrInvalidConfig, err)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			analysis.ErrInvalidConfig, err)
	}

	return &GeminiAnalyzer{
		logger:         logger,
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Analyze implements analysis.Analyzer. It builds the prompt for the task
// type, makes a single Gemini call bounded by ctx, and parses the JSON
// response into an analysis.Result.
func (g *GeminiAnalyzer) Analyze(
	ctx context.Context,
	posting *domain.Posting,
	taskType domain.TaskType,
) (*analysis.Result, error) {
	if posting == nil {
		return nil, fmt.Errorf("%w: posting cannot be nil", analysis.ErrAnalysisFailed)
	}

	prompt, err := g.buildPrompt(posting, taskType)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "making Gemini API call",
		"posting_id", posting.ID,
		"task_type", taskType.String(),
		"prompt_length", len(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation and deadline expiry are the governor's signal,
			// pass them through undecorated.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", analysis.ErrTransientFailure, err)
	}

	result, err := g.parseResponse(resp)
	if err != nil {
		g.logger.WarnContext(ctx, "Gemini response rejected",
			"posting_id", posting.ID,
			"error", err)
		return nil, err
	}

	g.logger.InfoContext(ctx, "Gemini API call successful",
		"posting_id", posting.ID,
		"task_type", taskType.String(),
		"score", result.Score)

	return result, nil
}

// buildPrompt executes the prompt template for the posting and task type.
func (g *GeminiAnalyzer) buildPrompt(posting *domain.Posting, taskType domain.TaskType) (string, error) {
	if posting.Body == "" && posting.Title == "" {
		return "", fmt.Errorf("%w: posting has no content", analysis.ErrAnalysisFailed)
	}

	data := promptData{
		Title:       posting.Title,
		URL:         posting.URL,
		Body:        posting.Body,
		Instruction: taskInstruction(taskType),
	}

	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: failed to execute prompt template: %v",
			analysis.ErrAnalysisFailed, err)
	}

	return buf.String(), nil
}

// parseResponse extracts and validates the JSON payload of a Gemini response.
func (g *GeminiAnalyzer) parseResponse(resp *genai.GenerateContentResponse) (*analysis.Result, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", analysis.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", analysis.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason safety", analysis.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", analysis.ErrInvalidResponse)
	}

	text := ""
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}

	return parseResultJSON(text)
}

// parseResultJSON decodes the model's JSON payload and bounds the score.
func parseResultJSON(text string) (*analysis.Result, error) {
	var schema responseSchema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v",
			analysis.ErrInvalidResponse, err)
	}

	if schema.Score < 0 || schema.Score > 100 {
		return nil, fmt.Errorf("%w: score %d out of range",
			analysis.ErrInvalidResponse, schema.Score)
	}

	return &analysis.Result{
		Summary: schema.Summary,
		Skills:  schema.Skills,
		Score:   schema.Score,
	}, nil
}

// taskInstruction returns the per-task-type instruction injected into the
// prompt template.
func taskInstruction(taskType domain.TaskType) string {
	switch taskType {
	case domain.TaskTypePrimaryAnalysis:
		return "Summarize the posting and rate how well it matches a senior backend engineering profile."
	case domain.TaskTypeSkillExtraction:
		return "Extract every technical skill mentioned in the posting and rate the posting's overall relevance."
	case domain.TaskTypeLogAnalysis:
		return "The body contains processing logs for the posting. Diagnose the failure and rate the posting's recoverability."
	default:
		return "Summarize the posting and rate its relevance."
	}
}
