// Package bundle arranges export files into the fixed archive layout and
// zips them.
package bundle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
)

const DefaultAgentFile = "CLAUDE.md"

type Entry struct {
	Path    string
	Content string
}

// Layout returns the archive entries for files in their fixed order: root
// documents, then modules/<name>/README.md by name, then prompts/<name>.md by
// leading number (names without one last), then phases/phase-N-<slug>.md.
// Empty documents are skipped; a payload with nothing to write is an
// AssemblyFailure.
func Layout(files domain.ExportFiles, agentFile string) ([]Entry, error) {
	agentFile = strings.TrimSpace(agentFile)
	if agentFile == "" {
		agentFile = DefaultAgentFile
	}
	if !strings.HasSuffix(strings.ToLower(agentFile), ".md") {
		agentFile += ".md"
	}
	if err := validSegment(agentFile); err != nil {
		return nil, err
	}

	var out []Entry
	seen := map[string]bool{}
	add := func(path, content string) error {
		if content == "" {
			return nil
		}
		if seen[path] {
			return errs.AssemblyFailure(fmt.Sprintf("duplicate archive path %q", path))
		}
		seen[path] = true
		out = append(out, Entry{Path: path, Content: content})
		return nil
	}

	root := []Entry{
		{"USER_INSTRUCTIONS.md", files.UserInstructions},
		{"README.md", files.Readme},
		{agentFile, files.Agent},
		{"QUICK_START.md", files.QuickStart},
		{"COMPLETE-PLAN.md", files.CompletePlan},
	}
	for _, e := range root {
		if err := add(e.Path, e.Content); err != nil {
			return nil, err
		}
	}

	moduleNames := make([]string, 0, len(files.Modules))
	for name := range files.Modules {
		moduleNames = append(moduleNames, name)
	}
	sort.Strings(moduleNames)
	for _, name := range moduleNames {
		seg, err := sanitizeName(name)
		if err != nil {
			return nil, err
		}
		if err := add("modules/"+seg+"/README.md", files.Modules[name]); err != nil {
			return nil, err
		}
	}

	promptNames := make([]string, 0, len(files.Prompts))
	for name := range files.Prompts {
		promptNames = append(promptNames, name)
	}
	SortPromptNames(promptNames)
	for _, name := range promptNames {
		seg, err := sanitizeName(strings.TrimSuffix(name, ".md"))
		if err != nil {
			return nil, err
		}
		if err := add("prompts/"+seg+".md", files.Prompts[name]); err != nil {
			return nil, err
		}
	}

	phases := append([]domain.PhaseFile(nil), files.Phases...)
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].Number < phases[j].Number })
	for _, p := range phases {
		if err := add(PhaseFileName(p.Number, p.Title), p.Content); err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		return nil, errs.AssemblyFailure("export has no files to write")
	}
	return out, nil
}

// PhaseFileName is phases/phase-<N>-<slug>.md, or phases/phase-<N>.md when
// the title has no sluggable characters.
func PhaseFileName(n int, title string) string {
	if s := Slugify(title); s != "" {
		return fmt.Sprintf("phases/phase-%d-%s.md", n, s)
	}
	return fmt.Sprintf("phases/phase-%d.md", n)
}

// PromptName is the file stem for a task prompt: a two-digit id prefix when
// the id is numeric, then the slugged title.
func PromptName(id, title string) string {
	slug := Slugify(title)
	prefix := Slugify(id)
	if n, err := strconv.Atoi(strings.TrimSpace(id)); err == nil && n >= 0 {
		prefix = fmt.Sprintf("%02d", n)
	}
	switch {
	case prefix == "":
		return slug
	case slug == "":
		return prefix
	default:
		return prefix + "-" + slug
	}
}

// sanitizeName keeps a name verbatim except that it must be a single path
// segment with no control characters.
func sanitizeName(name string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "-", "\\", "-").Replace(s)
	if err := validSegment(s); err != nil {
		return "", err
	}
	return s, nil
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\") {
		return errs.AssemblyFailure(fmt.Sprintf("invalid file name %q", s))
	}
	return nil
}

func leadingNumber(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortPromptNames orders prompt names by leading number, names without one
// last, ties by name.
func SortPromptNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, iok := leadingNumber(names[i])
		nj, jok := leadingNumber(names[j])
		switch {
		case iok && jok && ni != nj:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})
}
