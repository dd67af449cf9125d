package compose

import (
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/planforge-backend/internal/knowledge"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
)

func twelvePhases() []aggregate.PhaseAnswers {
	out := make([]aggregate.PhaseAnswers, 0, 12)
	for n := 1; n <= 12; n++ {
		out = append(out, aggregate.PhaseAnswers{
			Number:  n,
			Answers: []aggregate.QA{{QuestionID: "Q1", Question: "Q1", Answer: "A1"}},
		})
	}
	return out
}

func TestFormatAnswers(t *testing.T) {
	got := FormatAnswers([]aggregate.PhaseAnswers{
		{Number: 1, Title: "Vision", Answers: []aggregate.QA{{Question: "What\n problem?", Answer: " none \n"}}},
		{Number: 2, Answers: []aggregate.QA{{Question: "Who?", Answer: "devs"}}},
	})
	want := "Phase 1: Vision\nQ: What problem?\nA: none\n\n---\n\nPhase 2:\nQ: Who?\nA: devs\n"
	if got != want {
		t.Fatalf("FormatAnswers:\nwant=%q\n got=%q", want, got)
	}
}

func TestPlanPromptListsEveryPhaseInOrder(t *testing.T) {
	c := NewComposer(knowledge.New("GUIDE", "PATTERNS"), 0, "")
	p := c.PlanPrompt(Input{Description: "a todo app", Phases: twelvePhases()})

	last := -1
	for n := 1; n <= 12; n++ {
		marker := fmt.Sprintf("Phase %d:", n)
		idx := strings.Index(p.User, marker)
		if idx < 0 {
			t.Fatalf("prompt missing %q", marker)
		}
		if idx <= last {
			t.Fatalf("%q out of order: at=%d previous=%d", marker, idx, last)
		}
		last = idx
	}
	for _, s := range []string{"Business description: a todo app", "GUIDE", "PATTERNS"} {
		if !strings.Contains(p.User, s) {
			t.Fatalf("prompt missing %q", s)
		}
	}
	if p.System == "" {
		t.Fatalf("system prompt empty")
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	c := NewComposer(knowledge.New("GUIDE", "PATTERNS"), 0, "")
	in := Input{Description: "a todo app", Audience: "teams", Phases: twelvePhases()}
	a, b := c.PlanPrompt(in), c.PlanPrompt(in)
	if a != b {
		t.Fatalf("PlanPrompt not deterministic")
	}
	if c.StructurePrompt(in, "plan") != c.StructurePrompt(in, "plan") {
		t.Fatalf("StructurePrompt not deterministic")
	}
}

func TestReferenceDocsAreTruncatedToBudget(t *testing.T) {
	c := NewComposer(knowledge.New(strings.Repeat("g", 50)+"TAIL", "ppp"), 10, "AGENTS.md")
	p := c.PlanPrompt(Input{Description: "x", Phases: twelvePhases()})
	if strings.Contains(p.User, "TAIL") {
		t.Fatalf("guide not truncated")
	}
	if !strings.Contains(p.User, strings.Repeat("g", 10)+"\n") {
		t.Fatalf("guide excerpt missing")
	}
	ap := c.AgentInstructionsPrompt(Input{Description: "x"}, "- auth")
	if !strings.Contains(ap.User, "Write AGENTS.md") {
		t.Fatalf("agent prompt does not name the agent file")
	}
}

func TestModulePrompt(t *testing.T) {
	c := NewComposer(knowledge.New("G", "P"), 0, "")
	p := c.ModulePrompt(Input{Description: "x", Phases: twelvePhases()}, ModuleSpec{
		Name:         "auth",
		Purpose:      "Sign in",
		Dependencies: []string{"db", "mail"},
		Constraints:  []string{"no passwords in logs"},
	})
	for _, s := range []string{"## Module: auth", "Depends on: db, mail", "- no passwords in logs"} {
		if !strings.Contains(p.User, s) {
			t.Fatalf("module prompt missing %q", s)
		}
	}
}
