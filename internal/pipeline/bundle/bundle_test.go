package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/aggregate"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":                "hello-world",
		"  Phase 1: Vision & Goals ": "phase-1-vision-goals",
		"--a---b--":                  "a-b",
		"Café über":                  "caf-ber",
		"tabs\tand\nnewlines":        "tabs-and-newlines",
		"!!!":                        "",
		"":                           "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestSlugifyIsIdempotent(t *testing.T) {
	inputs := []string{"Hello World", " -x- ", "A  B\t\tC", "émoji 🚀 rocket", "Phase 12: Growth & Roadmap", "---", "a_b.c/d"}
	for _, in := range inputs {
		once := Slugify(in)
		if twice := Slugify(once); twice != once {
			t.Fatalf("Slugify not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func paths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestLayoutStructuredExport(t *testing.T) {
	files := domain.ExportFiles{
		Readme:  "R",
		Agent:   "C",
		Modules: map[string]string{"auth": "M1"},
		Prompts: map[string]string{"01-setup": "P1"},
	}
	entries, err := Layout(files, "")
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	data, err := Zip(entries)
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	want := map[string]string{
		"README.md":              "R",
		"CLAUDE.md":              "C",
		"modules/auth/README.md": "M1",
		"prompts/01-setup.md":    "P1",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("archive entries: want=%d got=%d", len(want), len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if w, ok := want[f.Name]; !ok || w != string(body) {
			t.Fatalf("entry %s: want=%q got=%q (expected=%v)", f.Name, w, body, ok)
		}
	}
}

func TestLayoutOrder(t *testing.T) {
	files := domain.ExportFiles{
		UserInstructions: "U",
		Readme:           "R",
		Agent:            "A",
		QuickStart:       "Q",
		Modules:          map[string]string{"zeta": "z", "alpha": "a", "Mid": "m"},
		Prompts: map[string]string{
			"10-deploy": "d", "2-api": "b", "01-setup": "s", "notes": "n", "appendix": "x", "02-api.md": "c",
		},
		Phases: []domain.PhaseFile{{Number: 2, Title: "Target Users", Content: "p2"}, {Number: 1, Title: "Vision", Content: "p1"}},
	}
	entries, err := Layout(files, "AGENTS")
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	want := []string{
		"USER_INSTRUCTIONS.md", "README.md", "AGENTS.md", "QUICK_START.md",
		"modules/Mid/README.md", "modules/alpha/README.md", "modules/zeta/README.md",
		"prompts/01-setup.md", "prompts/02-api.md", "prompts/2-api.md", "prompts/10-deploy.md",
		"prompts/appendix.md", "prompts/notes.md",
		"phases/phase-1-vision.md", "phases/phase-2-target-users.md",
	}
	got := paths(entries)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("Layout order:\nwant=%v\n got=%v", want, got)
	}
}

func TestLayoutRejectsTraversalAndEmpty(t *testing.T) {
	if _, err := Layout(domain.ExportFiles{}, ""); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("empty payload: want=assembly_failure got=%v", err)
	}
	if _, err := Layout(domain.ExportFiles{Modules: map[string]string{"..": "x"}}, ""); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("dot-dot module: want=assembly_failure got=%v", err)
	}
	entries, err := Layout(domain.ExportFiles{Modules: map[string]string{"../../etc": "x"}}, "")
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if entries[0].Path != "modules/..-..-etc/README.md" {
		t.Fatalf("sanitized path: got=%q", entries[0].Path)
	}
	if _, err := Layout(domain.ExportFiles{Modules: map[string]string{"a/b": "1", "a-b": "2"}}, ""); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("colliding names: want=assembly_failure got=%v", err)
	}
	if _, err := Layout(domain.ExportFiles{Readme: "R"}, "../x.md"); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("agent file with slash: want=assembly_failure got=%v", err)
	}
}

func TestLayoutStripsControlCharacters(t *testing.T) {
	entries, err := Layout(domain.ExportFiles{
		Modules: map[string]string{"au\x00th\n": "m"},
		Prompts: map[string]string{"01-set\tup\x1b": "p"},
	}, "")
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: want=%d got=%d", 2, len(entries))
	}
	if entries[0].Path != "modules/auth/README.md" {
		t.Fatalf("module path: want=%q got=%q", "modules/auth/README.md", entries[0].Path)
	}
	if entries[1].Path != "prompts/01-setup.md" {
		t.Fatalf("prompt path: want=%q got=%q", "prompts/01-setup.md", entries[1].Path)
	}
	if _, err := Layout(domain.ExportFiles{Modules: map[string]string{"\x00\x7f": "x"}}, ""); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("control-only name: want=assembly_failure got=%v", err)
	}
}

func TestPromptName(t *testing.T) {
	cases := []struct{ id, title, want string }{
		{"1", "Project Setup", "01-project-setup"},
		{"12", "Deploy!", "12-deploy"},
		{"setup", "Init", "setup-init"},
		{"", "Only Title", "only-title"},
		{"3", "", "03"},
	}
	for _, tc := range cases {
		if got := PromptName(tc.id, tc.title); got != tc.want {
			t.Fatalf("PromptName(%q,%q): want=%q got=%q", tc.id, tc.title, tc.want, got)
		}
	}
}

func TestArchiveName(t *testing.T) {
	day := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	if got := ArchiveName("A Todo App for Teams!", day); got != "a-todo-app-for-teams-building-plan-2026-10-18.zip" {
		t.Fatalf("ArchiveName: got=%q", got)
	}
	if got := ArchiveName("???", day); got != "building-plan-2026-10-18.zip" {
		t.Fatalf("ArchiveName empty slug: got=%q", got)
	}
	long := ArchiveName(strings.Repeat("word ", 20), day)
	stem := strings.TrimSuffix(long, "-building-plan-2026-10-18.zip")
	if len(stem) > 40 || strings.HasSuffix(stem, "-") || stem == "" {
		t.Fatalf("ArchiveName long: got=%q", long)
	}
}

func catalogPhases(t *testing.T) []questionnaire.Phase {
	t.Helper()
	c, err := questionnaire.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c.Phases()
}

func TestSimpleFiles(t *testing.T) {
	phases := catalogPhases(t)
	in := SimpleInput{
		Description: "a todo app",
		Phases:      phases,
		Answers: []aggregate.PhaseAnswers{
			{Number: 1, Answers: []aggregate.QA{{Question: "What problem?", Answer: "Forgetting things"}}},
		},
		Plan: "# The plan",
		Date: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
	files, err := SimpleFiles(in)
	if err != nil {
		t.Fatalf("SimpleFiles: %v", err)
	}
	if len(files.Phases) != len(phases) {
		t.Fatalf("phases: want=%d got=%d", len(phases), len(files.Phases))
	}
	if !strings.Contains(files.Phases[0].Content, "Forgetting things") {
		t.Fatalf("phase 1 content: %q", files.Phases[0].Content)
	}
	if !strings.Contains(files.Phases[1].Content, notAnswered) {
		t.Fatalf("phase 2 should read not answered: %q", files.Phases[1].Content)
	}
	first := "Phase 1: " + phases[0].Title
	if !strings.Contains(files.CompletePlan, "- ["+first+"](#"+Slugify(first)+")") {
		t.Fatalf("TOC missing phase 1 link")
	}
	if !strings.Contains(files.CompletePlan, "## Building Plan\n\n# The plan") {
		t.Fatalf("plan section missing")
	}
	if !strings.Contains(files.Agent, "phases/phase-1-") || !strings.Contains(files.Readme, "`CLAUDE.md`") {
		t.Fatalf("agent/readme templates incomplete")
	}

	entries, err := Layout(files, "")
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	got := paths(entries)
	if got[0] != "README.md" || got[1] != "CLAUDE.md" || got[2] != "COMPLETE-PLAN.md" || len(got) != 3+len(phases) {
		t.Fatalf("simple layout: got=%v", got)
	}
}

func TestSimpleFilesRequiresData(t *testing.T) {
	if _, err := SimpleFiles(SimpleInput{Phases: catalogPhases(t)}); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("no answers: want=assembly_failure got=%v", err)
	}
	answers := []aggregate.PhaseAnswers{{Number: 1, Answers: []aggregate.QA{{Question: "q", Answer: "a"}}}}
	if _, err := SimpleFiles(SimpleInput{Answers: answers}); !errs.Is(err, errs.KindAssemblyFailure) {
		t.Fatalf("no phases: want=assembly_failure got=%v", err)
	}
}
