// Package compose renders aggregated answers and the reference documents into
// model prompts. Everything here is pure string construction: the same input
// always yields the same bytes.
package compose

import (
	"fmt"
	"strings"

	"github.com/yungbote/planforge-backend/internal/knowledge"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
)

const DefaultCharBudget = 4000

type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

type Input struct {
	Description string                   `json:"description"`
	Name        string                   `json:"name,omitempty"`
	Audience    string                   `json:"audience,omitempty"`
	Phases      []aggregate.PhaseAnswers `json:"phases"`
}

// ModuleSpec is the slice of a breakdown module a module prompt needs.
type ModuleSpec struct {
	Name         string
	Purpose      string
	Dependencies []string
	Constraints  []string
}

type Composer struct {
	kb        knowledge.Base
	budget    int
	agentFile string
}

// NewComposer truncates each reference document to budget runes; budget <= 0
// embeds them whole.
func NewComposer(kb knowledge.Base, budget int, agentFile string) *Composer {
	if strings.TrimSpace(agentFile) == "" {
		agentFile = "CLAUDE.md"
	}
	return &Composer{kb: kb, budget: budget, agentFile: agentFile}
}

func (c *Composer) AgentFile() string { return c.agentFile }

// FormatAnswers renders each phase under a "Phase N: Title" heading with
// Q:/A: lines, phases separated by a horizontal rule.
func FormatAnswers(phases []aggregate.PhaseAnswers) string {
	var b strings.Builder
	for i, p := range phases {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		if p.Title != "" {
			fmt.Fprintf(&b, "Phase %d: %s\n", p.Number, p.Title)
		} else {
			fmt.Fprintf(&b, "Phase %d:\n", p.Number)
		}
		for _, qa := range p.Answers {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", oneLine(qa.Question), strings.TrimSpace(qa.Answer))
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *Composer) projectHeader(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business description: %s\n", strings.TrimSpace(in.Description))
	if strings.TrimSpace(in.Name) != "" {
		fmt.Fprintf(&b, "Project name: %s\n", strings.TrimSpace(in.Name))
	}
	if strings.TrimSpace(in.Audience) != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", strings.TrimSpace(in.Audience))
	}
	return b.String()
}

func (c *Composer) references() string {
	var b strings.Builder
	b.WriteString("## Reference: build methodology guide\n\n")
	b.WriteString(c.kb.Excerpt(knowledge.Guide, c.budget))
	b.WriteString("\n\n## Reference: architecture patterns\n\n")
	b.WriteString(c.kb.Excerpt(knowledge.Patterns, c.budget))
	b.WriteString("\n")
	return b.String()
}

func (c *Composer) context(in Input) string {
	var b strings.Builder
	b.WriteString(c.projectHeader(in))
	b.WriteString("\n## Questionnaire answers\n\n")
	b.WriteString(FormatAnswers(in.Phases))
	b.WriteString("\n")
	b.WriteString(c.references())
	return b.String()
}

const planSystem = `You are a senior software architect who writes building plans that a
non-expert founder can hand to an AI coding agent. Be concrete: name
technologies, data entities, screens and endpoints. Use Markdown headings.
Never invent requirements the answers contradict.`

// PlanPrompt is the single-document building plan prompt.
func (c *Composer) PlanPrompt(in Input) Prompt {
	var b strings.Builder
	b.WriteString(c.context(in))
	b.WriteString(`
## Task

Write a complete building plan for this product with these sections:

1. Overview
2. Users and core journeys
3. Feature list, prioritized for a first release
4. Data model
5. Architecture and technical stack
6. Integrations
7. Security and access control
8. Build order as a sequence of small, verifiable steps
9. Launch checklist
`)
	return Prompt{System: planSystem, User: b.String()}
}

const structureSystem = `You are a senior software architect. You split products into modules and
ordered implementation prompts for an AI coding agent. You answer with JSON
only, no prose and no Markdown fences.`

// StructurePrompt asks for the module/prompt breakdown as JSON. plan may be
// empty when no plan has been generated yet.
func (c *Composer) StructurePrompt(in Input, plan string) Prompt {
	var b strings.Builder
	b.WriteString(c.context(in))
	if strings.TrimSpace(plan) != "" {
		b.WriteString("\n## Approved building plan\n\n")
		b.WriteString(strings.TrimSpace(plan))
		b.WriteString("\n")
	}
	b.WriteString(`
## Task

Return a JSON object with exactly this shape:

{
  "modules": [
    {"name": "auth", "path": "modules/auth", "content": "Markdown description of the module",
     "dependencies": ["database"], "mcpServers": [], "constraints": ["..."]}
  ],
  "prompts": [
    {"id": 1, "title": "Project setup", "description": "What this step builds",
     "prompt": "The exact prompt to give the coding agent", "dependencies": [],
     "expectedOutput": "How to verify the step"}
  ]
}

Module names are short lowercase identifiers. Prompts are ordered by id and
each one builds on the previous ones.
`)
	return Prompt{System: structureSystem, User: b.String()}
}

const docSystem = `You are a senior software architect writing documentation for a repository
that an AI coding agent will build. Write clear Markdown. Do not wrap the
answer in code fences.`

// ModulePrompt asks for a detailed README for one module.
func (c *Composer) ModulePrompt(in Input, m ModuleSpec) Prompt {
	var b strings.Builder
	b.WriteString(c.projectHeader(in))
	fmt.Fprintf(&b, "\n## Module: %s\n\n", m.Name)
	if strings.TrimSpace(m.Purpose) != "" {
		b.WriteString(strings.TrimSpace(m.Purpose))
		b.WriteString("\n")
	}
	if len(m.Dependencies) > 0 {
		fmt.Fprintf(&b, "\nDepends on: %s\n", strings.Join(m.Dependencies, ", "))
	}
	if len(m.Constraints) > 0 {
		b.WriteString("\nConstraints:\n")
		for _, x := range m.Constraints {
			fmt.Fprintf(&b, "- %s\n", x)
		}
	}
	b.WriteString("\n## Questionnaire answers\n\n")
	b.WriteString(FormatAnswers(in.Phases))
	b.WriteString(`
## Task

Write the README for this module: responsibilities, public interface, data it
owns, edge cases, and a checklist the coding agent can tick off.
`)
	return Prompt{System: docSystem, User: b.String()}
}

// ReadmePrompt asks for the repository README given a rendered outline of
// the breakdown.
func (c *Composer) ReadmePrompt(in Input, outline string) Prompt {
	var b strings.Builder
	b.WriteString(c.projectHeader(in))
	b.WriteString("\n## Breakdown\n\n")
	b.WriteString(strings.TrimSpace(outline))
	b.WriteString(`

## Task

Write the repository README: what the product is, who it is for, the module
map, how to run it locally, and how to work through the prompts folder in
order.
`)
	return Prompt{System: docSystem, User: b.String()}
}

// AgentInstructionsPrompt asks for the agent-facing build guide stored at the
// archive root under the configured agent file name.
func (c *Composer) AgentInstructionsPrompt(in Input, outline string) Prompt {
	var b strings.Builder
	b.WriteString(c.projectHeader(in))
	b.WriteString("\n## Breakdown\n\n")
	b.WriteString(strings.TrimSpace(outline))
	b.WriteString("\n\n")
	b.WriteString(c.references())
	fmt.Fprintf(&b, `
## Task

Write %s, the instructions file an AI coding agent reads before every
session in this repository. Cover conventions, commands, module boundaries,
testing expectations and what the agent must never do.
`, c.agentFile)
	return Prompt{System: docSystem, User: b.String()}
}
