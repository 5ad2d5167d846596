package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/somnia-auditor/internal/model"
	openai "github.com/sashabaranov/go-openai"
)

func testReport() *model.AuditReport {
	r := model.NewAuditReport("/work/project")
	r.Files = []string{"/work/project/contracts/Vault.sol", "/work/project/contracts/Token.sol"}

	vault := model.NewFileResult(r.Files[0])
	vault.Slither = model.NewToolResult(model.ToolSlither)
	vault.Slither.Add(model.Finding{
		Rule:     "reentrancy-eth",
		Category: model.CategoryVulnerability,
		Severity: "High",
		Message:  "Reentrancy in\n withdraw",
		Location: "withdraw:20-27",
	})
	vault.Solhint = model.NewToolResult(model.ToolSolhint)
	vault.Solhint.Add(model.Finding{
		Category: model.CategoryBestPractice,
		Message:  "Explicitly mark visibility",
		Location: "Vault.sol:12:5",
	})

	token := model.NewFileResult(r.Files[1])
	token.Slither = model.NewToolError(model.ToolSlither, "Slither not found")

	r.Results = []*model.FileResult{vault, token}
	r.Finalize()
	return r
}

func TestBuildMessages(t *testing.T) {
	t.Parallel()

	msgs := BuildMessages(testReport())
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || !strings.Contains(msgs[0].Content, "smart contract security auditor") {
		t.Errorf("unexpected system message: %+v", msgs[0])
	}

	user := msgs[1].Content
	for _, want := range []string{
		"Project files: Vault.sol, Token.sol",
		"- [High] Reentrancy in withdraw @ Vault.sol (withdraw:20-27)",
		"- [Info] Explicitly mark visibility @ Vault.sol (Vault.sol:12:5)",
		"Slither Error in Token.sol: Slither not found",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q\n%s", want, user)
		}
	}
}

func TestSummarizeWithoutKey(t *testing.T) {
	t.Parallel()

	a := New("")
	if got := a.Summarize(t.Context(), testReport()); got != MissingKeyMessage {
		t.Errorf("Summarize() = %q", got)
	}
}

func fakeOpenAI(t *testing.T, status int, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test-0123456789abcdef" {
			t.Errorf("unexpected Authorization header %q", got)
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" || req.MaxTokens != DefaultMaxTokens {
			t.Errorf("unexpected request: model=%s max_tokens=%d", req.Model, req.MaxTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided: sk-test-0123456789abcdef","type":"invalid_request_error"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t.Run("returns trimmed content", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := fakeOpenAI(t, http.StatusOK, "\n## Critical/High\n- fix reentrancy\n", &calls)

		a := New("sk-test-0123456789abcdef", WithBaseURL(srv.URL+"/v1"))
		got := a.Summarize(t.Context(), testReport())
		if got != "## Critical/High\n- fix reentrancy" {
			t.Errorf("Summarize() = %q", got)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 request, got %d", calls.Load())
		}
	})

	t.Run("failure is reported in text with the key redacted", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := fakeOpenAI(t, http.StatusUnauthorized, "", &calls)

		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		a := New("sk-test-0123456789abcdef", WithBaseURL(srv.URL+"/v1"), WithLogger(logger))
		got := a.Summarize(t.Context(), testReport())
		if !strings.HasPrefix(got, "AI summary failed: ") {
			t.Errorf("Summarize() = %q", got)
		}
		if strings.Contains(got, "sk-test-0123456789abcdef") || strings.Contains(logs.String(), "sk-test-0123456789abcdef") {
			t.Error("API key leaked into the summary or logs")
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := fakeOpenAI(t, http.StatusOK, "unused", &calls)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		a := New("sk-test-0123456789abcdef", WithBaseURL(srv.URL+"/v1"))
		if got := a.Summarize(ctx, testReport()); !strings.HasPrefix(got, "AI summary failed: ") {
			t.Errorf("Summarize() = %q", got)
		}
	})
}

func TestOptions(t *testing.T) {
	t.Parallel()

	a := New("k", WithModel(""), WithMaxTokens(0), WithTimeout(0), WithLogger(nil))
	if a.model != "gpt-4o-mini" || a.maxTokens != DefaultMaxTokens || a.timeout != DefaultTimeout || a.logger == nil {
		t.Errorf("zero options should keep defaults: %+v", a)
	}

	a = New("k", WithModel("gpt-4o"), WithMaxTokens(100))
	if a.model != "gpt-4o" || a.maxTokens != 100 {
		t.Errorf("options not applied: %+v", a)
	}
}
