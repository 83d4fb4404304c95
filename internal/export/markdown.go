// Package export renders graph records as Markdown with YAML front matter,
// laid out under the canonical destinations chosen by the location router.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/keeper/pkg/types"
)

// frontMatter is the YAML header written at the top of every exported file.
type frontMatter struct {
	ID      string            `yaml:"id"`
	Type    string            `yaml:"type,omitempty"`
	Title   string            `yaml:"title"`
	Aliases []string          `yaml:"aliases,omitempty"`
	Sources []string          `yaml:"sources,omitempty"`
	Meta    map[string]string `yaml:"meta,omitempty"`
	Created time.Time         `yaml:"created"`
	Updated time.Time         `yaml:"updated"`
}

func renderFrontMatter(fm frontMatter) ([]byte, error) {
	var b strings.Builder
	b.WriteString("---\n")
	data, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("export: marshal front matter: %w", err)
	}
	b.Write(data)
	b.WriteString("---\n\n")
	return []byte(b.String()), nil
}

// RenderDocument produces the Markdown form of an ingested document.
func RenderDocument(doc *types.Document) ([]byte, error) {
	head, err := renderFrontMatter(frontMatter{
		ID:      doc.ID,
		Title:   doc.Title,
		Aliases: doc.Entities,
		Meta:    doc.Metadata,
		Created: doc.CreatedAt,
		Updated: doc.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Write(head)
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	b.WriteString(strings.TrimSpace(doc.Content))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// RenderEntity produces the Markdown page for an entity. current maps each
// attribute key to its resolved value; the full version history is appended
// so the page matches the append-only record.
func RenderEntity(e *types.Entity, current map[string]types.Attribute) ([]byte, error) {
	head, err := renderFrontMatter(frontMatter{
		ID:      e.ID,
		Type:    string(e.Type),
		Title:   e.Name,
		Aliases: e.Aliases,
		Sources: e.Sources,
		Created: e.CreatedAt,
		Updated: e.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Write(head)
	fmt.Fprintf(&b, "# %s\n\n", e.Name)

	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) > 0 {
		b.WriteString("| Attribute | Value | Confidence | Source |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, k := range keys {
			attr := current[k]
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", k, attr.Value, attr.Confidence, attr.Source)
		}
		b.WriteString("\n")
	}

	historyKeys := e.AttributeKeys()
	sort.Strings(historyKeys)
	wroteHeader := false
	for _, k := range historyKeys {
		history := e.Attributes[k]
		if len(history) < 2 {
			continue
		}
		if !wroteHeader {
			b.WriteString("## History\n\n")
			wroteHeader = true
		}
		for _, attr := range history {
			fmt.Fprintf(&b, "- %s: %s (%s, %s, v%d, %s)\n",
				k, attr.Value, attr.Confidence, attr.Source, attr.Version,
				attr.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return []byte(b.String()), nil
}

// VaultWriter writes rendered pages into a directory tree rooted at Root,
// using router destinations as relative paths.
type VaultWriter struct {
	Root string
}

// Write places content at the destination path, creating intermediate
// directories (Archive/, Plans/, Inbox/) as needed.
func (w VaultWriter) Write(destination string, content []byte) error {
	if destination == "" {
		return fmt.Errorf("export: empty destination")
	}
	path := filepath.Join(w.Root, filepath.FromSlash(destination))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: create directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("export: write %s: %w", destination, err)
	}
	return nil
}
