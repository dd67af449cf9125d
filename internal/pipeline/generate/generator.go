// Package generate calls the language model and shapes its output.
package generate

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/pipeline/compose"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/envutil"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/platform/openai"
)

type Config struct {
	Model           string
	FallbackModel   string
	MaxOutputTokens int
}

// ConfigFromEnv reads OPENAI_FALLBACK_MODEL and OPENAI_MAX_OUTPUT_TOKENS.
// The primary model is the client's default unless OPENAI_MODEL is set.
func ConfigFromEnv(defaultModel string) Config {
	return Config{
		Model:           envutil.String("OPENAI_MODEL", defaultModel),
		FallbackModel:   envutil.String("OPENAI_FALLBACK_MODEL", "gpt-4o-mini"),
		MaxOutputTokens: envutil.Int("OPENAI_MAX_OUTPUT_TOKENS", 8000),
	}
}

type Text struct {
	Text  string
	Model string
}

type Generator struct {
	log    *logger.Logger
	client openai.Client
	cfg    Config
}

func NewGenerator(log *logger.Logger, client openai.Client, cfg Config) *Generator {
	if cfg.Model == "" && client != nil {
		cfg.Model = client.DefaultModel()
	}
	return &Generator{log: log.With("service", "Generator"), client: client, cfg: cfg}
}

// complete makes the call against the primary model and, only when the
// provider reports that model missing, exactly one more against the fallback.
func (g *Generator) complete(ctx context.Context, p compose.Prompt) (Text, error) {
	ctx, span := observability.StartSpan(ctx, "generate.complete", attribute.String("model", g.cfg.Model))
	defer span.End()

	req := openai.Request{
		Model:           g.cfg.Model,
		System:          p.System,
		Messages:        []openai.Message{{Role: "user", Content: p.User}},
		MaxOutputTokens: g.cfg.MaxOutputTokens,
	}
	resp, err := g.client.Complete(ctx, req)
	if err != nil && openai.IsModelNotFound(err) && g.cfg.FallbackModel != "" && g.cfg.FallbackModel != req.Model {
		g.log.Warn("primary model not found, retrying on fallback", "model", req.Model, "fallback_model", g.cfg.FallbackModel)
		req.Model = g.cfg.FallbackModel
		span.SetAttributes(attribute.String("fallback_model", req.Model))
		resp, err = g.client.Complete(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		return Text{}, errs.GenerationFailed(err)
	}
	return Text{Text: resp.Text, Model: resp.Model}, nil
}

// GeneratePlanText returns the whole-plan Markdown document.
func (g *Generator) GeneratePlanText(ctx context.Context, p compose.Prompt) (Text, error) {
	out, err := g.complete(ctx, p)
	if err != nil {
		return Text{}, err
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}

// GenerateDocument returns one Markdown document (README, module doc, agent
// instructions), with any wrapping code fence removed.
func (g *Generator) GenerateDocument(ctx context.Context, p compose.Prompt) (string, error) {
	out, err := g.complete(ctx, p)
	if err != nil {
		return "", err
	}
	return stripFence(out.Text), nil
}

// GenerateBreakdown never fails on bad model output: unparseable text yields
// Fallback with the default structure. The only error is GenerationFailed.
func (g *Generator) GenerateBreakdown(ctx context.Context, p compose.Prompt) (BreakdownResult, error) {
	out, err := g.complete(ctx, p)
	if err != nil {
		return nil, err
	}
	b, perr := ParseBreakdown(out.Text)
	if perr != nil {
		g.log.Warn("breakdown parse failed, using default structure", "model", out.Model, "error", perr)
		return Fallback{Breakdown: DefaultBreakdown(), Reason: perr.Error()}, nil
	}
	return Parsed{Breakdown: b, Model: out.Model}, nil
}

func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	t = strings.TrimSuffix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		return s
	}
	return strings.TrimSpace(t)
}
