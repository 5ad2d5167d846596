package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/log"
	"github.com/nao1215/somnia-auditor/internal/model"
	openai "github.com/sashabaranov/go-openai"
)

// Request defaults.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 900
	DefaultTimeout     = 2 * time.Minute
)

// MissingKeyMessage is returned when no API key is configured.
const MissingKeyMessage = "AI summary unavailable: " + config.APIKeyEnv +
	" is not set. Set it in the environment or pass --api-key."

const systemPrompt = "You are a senior smart contract security auditor. " +
	"Summarize the combined Slither and Solhint findings, prioritize by risk, " +
	"and propose concrete, code-level remediation steps. " +
	"Group results by: Critical/High, Medium, Low/Informational, and Style/Best Practices. " +
	"Prefer concise, actionable guidance. Where helpful, include short Solidity snippets."

// errEmptyResponse is returned when the API answers without any choice.
var errEmptyResponse = errors.New("empty response")

// Summarizer turns an audit into a markdown summary.
// Implementations must not fail: problems are reported in the returned text.
type Summarizer interface {
	Summarize(ctx context.Context, report *model.AuditReport) string
}

// Assistant summarizes audits through the chat completions API.
type Assistant struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithModel sets the chat model.
func WithModel(name string) Option {
	return func(a *Assistant) {
		if name != "" {
			a.model = name
		}
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
func WithBaseURL(url string) Option {
	return func(a *Assistant) {
		a.baseURL = url
	}
}

// WithMaxTokens limits the length of the answer.
func WithMaxTokens(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTimeout bounds a single request.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Assistant. An empty apiKey is allowed; Summarize then
// returns MissingKeyMessage without making a request.
func New(apiKey string, opts ...Option) *Assistant {
	a := &Assistant{
		apiKey:      apiKey,
		model:       config.DefaultAIModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summarize asks the model for a prioritized summary of report.
func (a *Assistant) Summarize(ctx context.Context, report *model.AuditReport) string {
	if a.apiKey == "" {
		return MissingKeyMessage
	}

	content, err := a.complete(ctx, BuildMessages(report))
	if err != nil {
		msg := log.RedactInline(err.Error())
		a.logger.Warn("AI summary request failed", "model", a.model, "error", msg)
		return "AI summary failed: " + msg
	}
	return content
}

func (a *Assistant) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	cfg := openai.DefaultConfig(a.apiKey)
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Debug("requesting AI summary", "model", a.model, "messages", len(messages))
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildMessages renders the system and user prompt for report.
// Every finding becomes one line; tool failures are listed as errors so the
// model knows the coverage was partial.
func BuildMessages(report *model.AuditReport) []openai.ChatCompletionMessage {
	var lines []string
	for _, fr := range report.Results {
		if fr == nil {
			continue
		}
		src := filepath.Base(fr.Path)
		for _, tr := range []*model.ToolResult{fr.Slither, fr.Solhint} {
			if tr == nil {
				continue
			}
			if tr.HasError() {
				lines = append(lines, fmt.Sprintf("%s Error in %s: %s", toolTitle(tr.Tool), src, tr.Error))
				continue
			}
			for _, f := range tr.All() {
				lines = append(lines, issueLine(src, f))
			}
		}
	}

	files := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, filepath.Base(f))
	}

	user := "Project files: " + strings.Join(files, ", ") + "\n\n" +
		"Findings (Slither + Solhint):\n" + strings.Join(lines, "\n")

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

func issueLine(src string, f model.Finding) string {
	severity := f.Severity
	if severity == "" {
		severity = "Info"
	}
	return fmt.Sprintf("- [%s] %s @ %s (%s)", severity, strings.Join(strings.Fields(f.Message), " "), src, f.Location)
}

func toolTitle(tool string) string {
	switch tool {
	case model.ToolSlither:
		return "Slither"
	case model.ToolSolhint:
		return "Solhint"
	default:
		return tool
	}
}
