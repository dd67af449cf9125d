package bundle

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
)

const notAnswered = "_Not answered yet._"

type SimpleInput struct {
	Description string
	Name        string
	Audience    string
	// Phases is the full catalog; Answers may cover only some of it.
	Phases    []questionnaire.Phase
	Answers   []aggregate.PhaseAnswers
	Plan      string
	AgentFile string
	Date      time.Time
}

func (in SimpleInput) title() string {
	if s := strings.TrimSpace(in.Name); s != "" {
		return s
	}
	if s := strings.TrimSpace(in.Description); s != "" {
		return s
	}
	return "Untitled project"
}

// SimpleFiles builds the single-document export from templates: README, the
// agent file, COMPLETE-PLAN.md with a table of contents, and one file per
// catalog phase. No catalog or no answers at all is an AssemblyFailure.
func SimpleFiles(in SimpleInput) (domain.ExportFiles, error) {
	if len(in.Phases) == 0 {
		return domain.ExportFiles{}, errs.AssemblyFailure("no phase templates")
	}
	answered := map[int][]aggregate.QA{}
	total := 0
	for _, p := range in.Answers {
		answered[p.Number] = append(answered[p.Number], p.Answers...)
		total += len(p.Answers)
	}
	if total == 0 {
		return domain.ExportFiles{}, errs.AssemblyFailure("session has no answers")
	}
	agentFile := strings.TrimSpace(in.AgentFile)
	if agentFile == "" {
		agentFile = DefaultAgentFile
	}

	files := domain.ExportFiles{}
	for _, p := range in.Phases {
		files.Phases = append(files.Phases, domain.PhaseFile{
			Number:  p.Number,
			Title:   p.Title,
			Content: phaseDoc(p, answered[p.Number]),
		})
	}
	files.CompletePlan = completePlan(in, answered)
	files.Readme = simpleReadme(in, agentFile)
	files.Agent = simpleAgent(in)
	return files, nil
}

func phaseHeading(p questionnaire.Phase) string {
	return fmt.Sprintf("Phase %d: %s", p.Number, p.Title)
}

func writeQAs(b *strings.Builder, qas []aggregate.QA) {
	if len(qas) == 0 {
		b.WriteString(notAnswered)
		b.WriteString("\n")
		return
	}
	for _, qa := range qas {
		fmt.Fprintf(b, "**Q: %s**\n\n", strings.TrimSpace(qa.Question))
		fmt.Fprintf(b, "A: %s\n\n", strings.TrimSpace(qa.Answer))
	}
}

func phaseDoc(p questionnaire.Phase, qas []aggregate.QA) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", phaseHeading(p))
	writeQAs(&b, qas)
	return b.String()
}

func completePlan(in SimpleInput, answered map[int][]aggregate.QA) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: Complete Plan\n\n", in.title())
	if !in.Date.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", in.Date.UTC().Format("2006-01-02"))
	}
	b.WriteString("## Table of Contents\n\n")
	plan := strings.TrimSpace(in.Plan)
	if plan != "" {
		b.WriteString("- [Building Plan](#building-plan)\n")
	}
	for _, p := range in.Phases {
		h := phaseHeading(p)
		fmt.Fprintf(&b, "- [%s](#%s)\n", h, Slugify(h))
	}
	b.WriteString("\n")
	if plan != "" {
		b.WriteString("## Building Plan\n\n")
		b.WriteString(plan)
		b.WriteString("\n\n")
	}
	for _, p := range in.Phases {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "## %s\n\n", phaseHeading(p))
		writeQAs(&b, answered[p.Number])
	}
	return b.String()
}

func simpleReadme(in SimpleInput, agentFile string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.title())
	if d := strings.TrimSpace(in.Description); d != "" && d != in.title() {
		fmt.Fprintf(&b, "%s\n\n", d)
	}
	if a := strings.TrimSpace(in.Audience); a != "" {
		fmt.Fprintf(&b, "**Target audience:** %s\n\n", a)
	}
	b.WriteString("## What's in this folder\n\n")
	fmt.Fprintf(&b, "- `%s`: instructions for your AI coding agent\n", agentFile)
	b.WriteString("- `COMPLETE-PLAN.md`: every phase and answer in one document\n")
	b.WriteString("- `phases/`: one file per planning phase\n\n")
	b.WriteString("## How to use it\n\n")
	fmt.Fprintf(&b, "1. Put these files at the root of a new repository.\n2. Open the repository with your coding agent; it reads `%s` first.\n3. Work through the plan one phase at a time and commit after each step.\n", agentFile)
	return b.String()
}

func simpleAgent(in SimpleInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Agent Instructions: %s\n\n", in.title())
	b.WriteString("You are building this product from a written plan. Read `COMPLETE-PLAN.md` before writing code.\n\n")
	b.WriteString("## Rules\n\n")
	b.WriteString("- Build in small vertical slices that run end to end.\n")
	b.WriteString("- Write tests for business rules before implementing them.\n")
	b.WriteString("- Ask before adding a dependency the plan does not mention.\n")
	b.WriteString("- Never commit secrets; read configuration from environment variables.\n\n")
	b.WriteString("## Phase documents\n\n")
	for _, p := range in.Phases {
		fmt.Fprintf(&b, "- `%s`: %s\n", PhaseFileName(p.Number, p.Title), p.Title)
	}
	return b.String()
}

// UserInstructions is the optional USER_INSTRUCTIONS.md written for the
// person holding the archive rather than the agent.
func UserInstructions(projectTitle, agentFile string) string {
	if agentFile == "" {
		agentFile = DefaultAgentFile
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Getting Started With %s\n\n", projectTitle)
	b.WriteString("This archive is a ready-to-build plan for an AI coding agent.\n\n")
	b.WriteString("1. Create an empty folder and unzip this archive into it.\n")
	b.WriteString("2. Initialize a git repository and commit the files.\n")
	fmt.Fprintf(&b, "3. Start your coding agent in the folder. It will read `%s` automatically.\n", agentFile)
	b.WriteString("4. If there is a `prompts/` folder, paste the prompts in numeric order, checking each result before moving on.\n")
	b.WriteString("5. Commit after every prompt that works.\n")
	return b.String()
}

// QuickStart is the optional QUICK_START.md. firstPrompt may be empty.
func QuickStart(projectTitle, agentFile, firstPrompt string) string {
	if agentFile == "" {
		agentFile = DefaultAgentFile
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Quick Start: %s\n\n", projectTitle)
	fmt.Fprintf(&b, "1. Read `README.md`.\n2. Make sure your agent has loaded `%s`.\n3. Run the first prompt:\n\n", agentFile)
	if strings.TrimSpace(firstPrompt) != "" {
		b.WriteString("```\n")
		b.WriteString(strings.TrimSpace(firstPrompt))
		b.WriteString("\n```\n")
	} else {
		b.WriteString("> Set up the project skeleton described in README.md.\n")
	}
	return b.String()
}
