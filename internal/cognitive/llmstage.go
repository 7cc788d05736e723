package cognitive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/nuka-mind/internal/prompt"
	"github.com/nidhogg/nuka-mind/internal/provider"
	"go.uber.org/zap"
)

// Chatter is the language model a stage talks to.
type Chatter interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Validator checks a parsed output against the cycle it was produced for.
type Validator[T any] func(out *T, snap Snapshot) []Violation

// VarsFunc supplies template variables from the cycle state.
type VarsFunc func(s *State) map[string]string

// StageConfig tunes one LLM stage.
type StageConfig struct {
	Model       string
	MaxRetries  int
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// LLMStage renders a prompt, calls the model and parses the reply into T.
// Structured stages decode JSON and run the validator; a rejected reply is
// appended to the conversation with feedback and the model asked again, up
// to MaxRetries more times. Raw stages return the reply text as is.
type LLMStage[T any] struct {
	name     string
	chat     Chatter
	prompt   *prompt.Template
	vars     VarsFunc
	validate Validator[T]
	raw      bool
	cfg      StageConfig
	logger   *zap.Logger
}

// NewLLMStage builds a structured stage. validate may be nil when decoding
// into T is the only check.
func NewLLMStage[T any](name string, chat Chatter, tmpl *prompt.Template, vars VarsFunc, validate Validator[T], cfg StageConfig, logger *zap.Logger) (*LLMStage[T], error) {
	if chat == nil || tmpl == nil || vars == nil {
		return nil, fmt.Errorf("%w: stage %s needs a model, a prompt and a variable source", ErrConfig, name)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: stage %s: negative retry count", ErrConfig, name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMStage[T]{
		name: name, chat: chat, prompt: tmpl, vars: vars, validate: validate,
		cfg: cfg, logger: logger.With(zap.String("stage", name)),
	}, nil
}

// NewRawStage builds a stage that returns the reply text. Raw replies cannot
// be checked, so retries are rejected.
func NewRawStage(name string, chat Chatter, tmpl *prompt.Template, vars VarsFunc, cfg StageConfig, logger *zap.Logger) (*LLMStage[string], error) {
	if cfg.MaxRetries > 0 {
		return nil, fmt.Errorf("%w: stage %s: retries require a schema", ErrConfig, name)
	}
	st, err := NewLLMStage[string](name, chat, tmpl, vars, nil, cfg, logger)
	if err != nil {
		return nil, err
	}
	st.raw = true
	return st, nil
}

func (l *LLMStage[T]) Name() string { return l.name }

// Run executes the stage against s, adding the token usage of every attempt
// to s.Tokens. The result is left for the caller to store.
func (l *LLMStage[T]) Run(ctx context.Context, s *State) (*T, error) {
	text, err := l.prompt.Render(l.vars(s))
	if err != nil {
		return nil, &StageError{Stage: l.name, Err: fmt.Errorf("%w: %v", ErrConfig, err)}
	}

	conv := []provider.Message{{Role: provider.RoleUser, Content: text}}
	maxAttempts := l.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: l.name, Attempts: attempt - 1, Err: err}
		}

		resp, err := l.call(ctx, conv)
		if resp != nil {
			s.addTokens(l.name, resp.Usage.Total())
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, &StageError{Stage: l.name, Attempts: attempt, Err: ctx.Err()}
			}
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
			l.logger.Warn("model call failed",
				zap.String("mind", s.MindID), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		out, err := l.parse(resp.Content, s.Snapshot())
		if err == nil {
			l.logger.Debug("stage output accepted",
				zap.String("mind", s.MindID), zap.Int("attempt", attempt), zap.Int("tokens", s.Tokens[l.name]))
			return out, nil
		}

		lastErr = err
		l.logger.Warn("model output rejected",
			zap.String("mind", s.MindID), zap.Int("attempt", attempt), zap.Error(err))
		conv = append(conv,
			provider.Message{Role: provider.RoleAssistant, Content: resp.Content},
			provider.Message{Role: provider.RoleUser, Content: feedback(err)},
		)
	}

	return nil, &StageError{Stage: l.name, Attempts: maxAttempts, Err: lastErr}
}

func (l *LLMStage[T]) call(ctx context.Context, conv []provider.Message) (*provider.ChatResponse, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	return l.chat.Chat(ctx, &provider.ChatRequest{
		Model:       l.cfg.Model,
		Messages:    append([]provider.Message(nil), conv...),
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
}

func (l *LLMStage[T]) parse(content string, snap Snapshot) (*T, error) {
	var out T
	if l.raw {
		if p, ok := any(&out).(*string); ok {
			*p = content
		}
		return &out, nil
	}

	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrTransient, err)
	}
	if l.validate != nil {
		if vs := l.validate(&out, snap); len(vs) > 0 {
			return nil, &ValidationError{Violations: vs}
		}
	}
	return &out, nil
}

// extractJSON strips code fences and prose around the outermost JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// IsValidation reports whether err ended in rejected output rather than a
// failing model call.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
