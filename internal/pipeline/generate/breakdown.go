package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
)

// FlexString decodes from a JSON string or number. Models emit prompt ids and
// dependency references either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

type Module struct {
	Name         string       `json:"name"`
	Path         string       `json:"path,omitempty"`
	Content      string       `json:"content"`
	Dependencies []FlexString `json:"dependencies,omitempty"`
	MCPServers   []FlexString `json:"mcpServers,omitempty"`
	Constraints  []FlexString `json:"constraints,omitempty"`
}

type TaskPrompt struct {
	ID             FlexString   `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Prompt         string       `json:"prompt"`
	Dependencies   []FlexString `json:"dependencies,omitempty"`
	ExpectedOutput string       `json:"expectedOutput,omitempty"`
}

type Breakdown struct {
	Modules []Module     `json:"modules"`
	Prompts []TaskPrompt `json:"prompts"`
}

// BreakdownResult is either Parsed or Fallback.
type BreakdownResult interface {
	Value() Breakdown
	isBreakdownResult()
}

type Parsed struct {
	Breakdown Breakdown
	Model     string
}

type Fallback struct {
	Breakdown Breakdown
	Reason    string
}

func (p Parsed) Value() Breakdown   { return p.Breakdown }
func (f Fallback) Value() Breakdown { return f.Breakdown }
func (Parsed) isBreakdownResult()   {}
func (Fallback) isBreakdownResult() {}

// wholeFenceRe matches a fence that wraps the entire response. Fences inside
// JSON string values (module content is Markdown) must not match.
var wholeFenceRe = regexp.MustCompile("(?s)^```[A-Za-z]*[ \\t]*\\n(.*)\\n[ \\t]*```$")

// extractJSON returns the response itself when it is valid JSON, then the
// body of a fence wrapping the whole response, then the outermost {...} span.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return text
	}
	if m := wholeFenceRe.FindStringSubmatch(text); m != nil {
		if inner := strings.TrimSpace(m[1]); json.Valid([]byte(inner)) {
			return inner
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ParseBreakdown decodes a model response into a Breakdown. A response with
// no usable JSON or no modules is a ParseFailure.
func ParseBreakdown(text string) (Breakdown, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Breakdown{}, errs.New(errs.KindParseFailure, "no JSON object in model output")
	}
	var b Breakdown
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Breakdown{}, errs.Wrap(errs.KindParseFailure, "invalid breakdown JSON", err)
	}
	mods := b.Modules[:0]
	for _, m := range b.Modules {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name != "" {
			mods = append(mods, m)
		}
	}
	b.Modules = mods
	if len(b.Modules) == 0 {
		return Breakdown{}, errs.New(errs.KindParseFailure, "breakdown has no modules")
	}
	for i := range b.Prompts {
		if b.Prompts[i].ID == "" {
			b.Prompts[i].ID = FlexString(strconv.Itoa(i + 1))
		}
	}
	return b, nil
}

// Outline renders the breakdown as a short Markdown list for follow-up
// prompts.
func (b Breakdown) Outline() string {
	var sb strings.Builder
	sb.WriteString("Modules:\n")
	for _, m := range b.Modules {
		fmt.Fprintf(&sb, "- %s", m.Name)
		if len(m.Dependencies) > 0 {
			fmt.Fprintf(&sb, " (depends on %s)", joinFlex(m.Dependencies))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nPrompts:\n")
	for _, p := range b.Prompts {
		fmt.Fprintf(&sb, "%s. %s\n", p.ID, p.Title)
	}
	return sb.String()
}

func joinFlex(xs []FlexString) string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		out = append(out, string(x))
	}
	return strings.Join(out, ", ")
}

// Strings converts a FlexString slice.
func Strings(xs []FlexString) []string {
	if len(xs) == 0 {
		return nil
	}
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		out = append(out, string(x))
	}
	return out
}

// DefaultBreakdown is the fixed structure used when the model's output cannot
// be parsed.
func DefaultBreakdown() Breakdown {
	return Breakdown{
		Modules: []Module{
			{
				Name:    "core",
				Path:    "modules/core",
				Content: "# Core\n\nProject skeleton, configuration, logging and shared utilities.\n",
			},
			{
				Name:         "database",
				Path:         "modules/database",
				Content:      "# Database\n\nSchema, migrations and data-access layer for every entity in the plan.\n",
				Dependencies: []FlexString{"core"},
			},
			{
				Name:         "auth",
				Path:         "modules/auth",
				Content:      "# Auth\n\nSign up, sign in, sessions and per-account data ownership.\n",
				Dependencies: []FlexString{"core", "database"},
			},
			{
				Name:         "api",
				Path:         "modules/api",
				Content:      "# API\n\nServer endpoints for the core features, with input validation and tests.\n",
				Dependencies: []FlexString{"database", "auth"},
			},
			{
				Name:         "frontend",
				Path:         "modules/frontend",
				Content:      "# Frontend\n\nScreens for the primary user journeys, wired to the API.\n",
				Dependencies: []FlexString{"api"},
			},
		},
		Prompts: []TaskPrompt{
			{ID: "1", Title: "Project setup", Prompt: "Create the project skeleton described in README.md with formatting, linting and an empty passing test suite.", ExpectedOutput: "The project builds and the test command passes."},
			{ID: "2", Title: "Database schema", Prompt: "Implement the database module: schema and migrations for every entity in the plan.", Dependencies: []FlexString{"1"}, ExpectedOutput: "Migrations apply cleanly to an empty database."},
			{ID: "3", Title: "Authentication", Prompt: "Implement the auth module so users can sign up, sign in and only see their own data.", Dependencies: []FlexString{"2"}, ExpectedOutput: "A new user can sign up and sign in."},
			{ID: "4", Title: "Core API", Prompt: "Implement the API endpoints for the first-release features with tests.", Dependencies: []FlexString{"3"}, ExpectedOutput: "API tests pass."},
			{ID: "5", Title: "Frontend", Prompt: "Build the screens for the primary user journeys against the API.", Dependencies: []FlexString{"4"}, ExpectedOutput: "A user can complete the main journey in the browser."},
		},
	}
}
