// Package knowledge holds the two static reference documents every prompt
// embeds. They are loaded once at startup and never change afterwards.
package knowledge

import (
	"context"
	"embed"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	Guide    = "guide"
	Patterns = "patterns"
)

//go:embed docs/*.md
var embedded embed.FS

// Source fetches a document by object key. gcp.Bucket satisfies it.
type Source interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Base is an immutable set of reference documents.
type Base struct {
	docs map[string]string
}

// New builds a Base from literal documents.
func New(guide, patterns string) Base {
	return Base{docs: map[string]string{Guide: guide, Patterns: patterns}}
}

// Embedded returns the documents compiled into the binary.
func Embedded() (Base, error) {
	return Load(context.Background(), nil, "")
}

// Load reads both documents concurrently from src under prefix, or from the
// embedded copies when src is nil.
func Load(ctx context.Context, src Source, prefix string) (Base, error) {
	names := []string{Guide, Patterns}
	out := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			var (
				raw []byte
				err error
			)
			if src == nil {
				raw, err = embedded.ReadFile("docs/" + name + ".md")
			} else {
				raw, err = src.Download(gctx, prefix+name+".md")
			}
			if err != nil {
				return fmt.Errorf("knowledge: load %s: %w", name, err)
			}
			if len(raw) == 0 {
				return fmt.Errorf("knowledge: %s is empty", name)
			}
			out[i] = string(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Base{}, err
	}
	return New(out[0], out[1]), nil
}

func (b Base) Doc(name string) string { return b.docs[name] }

// Excerpt returns at most budget runes of the named document. A budget <= 0
// returns the whole document.
func (b Base) Excerpt(name string, budget int) string {
	s := b.docs[name]
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s
	}
	n := 0
	for i := range s {
		if n == budget {
			return s[:i]
		}
		n++
	}
	return s
}
