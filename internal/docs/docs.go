// Package docs holds the informational pages shipped with the client
// (privacy policy, imprint, terms of use) and renders them for the terminal.
package docs

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed pages/*.md
var pages embed.FS

// ErrNotFound is returned for an unknown page slug.
var ErrNotFound = errors.New("page not found")

// Page is an embedded markdown document.
type Page struct {
	Slug    string
	Title   string
	Updated string
	Body    string // markdown after frontmatter
}

type frontmatter struct {
	Title   string `yaml:"title"`
	Updated string `yaml:"updated"`
}

// Slugs lists the available pages.
func Slugs() []string {
	entries, err := pages.ReadDir("pages")
	if err != nil {
		return nil
	}
	slugs := make([]string, 0, len(entries))
	for _, e := range entries {
		slugs = append(slugs, strings.TrimSuffix(e.Name(), ".md"))
	}
	return slugs
}

// Get loads the page with the given slug.
func Get(slug string) (Page, error) {
	data, err := pages.ReadFile(path.Join("pages", slug+".md"))
	if err != nil {
		return Page{}, fmt.Errorf("%w: %s (available: %s)", ErrNotFound, slug, strings.Join(Slugs(), ", "))
	}
	return parse(slug, string(data)), nil
}

// parse splits YAML frontmatter from the markdown body.
func parse(slug, content string) Page {
	p := Page{Slug: slug, Body: content}

	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx > 0 {
			var fm frontmatter
			// Ignore YAML errors, the page still renders without a title
			if err := yaml.Unmarshal([]byte(content[4:4+endIdx]), &fm); err == nil {
				p.Title = fm.Title
				p.Updated = fm.Updated
			}
			p.Body = strings.TrimPrefix(content[4+endIdx+4:], "\n")
		}
	}

	if p.Title == "" {
		p.Title = slug
	}
	return p
}
