package docs

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Styles controls how markdown elements look in the terminal.
type Styles struct {
	Heading  lipgloss.Style
	Strong   lipgloss.Style
	Emphasis lipgloss.Style
	Code     lipgloss.Style
	Link     lipgloss.Style
}

// DefaultStyles returns the styles used by the CLI.
func DefaultStyles() Styles {
	return Styles{
		Heading:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7")),
		Strong:   lipgloss.NewStyle().Bold(true),
		Emphasis: lipgloss.NewStyle().Italic(true),
		Code:     lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F")),
		Link:     lipgloss.NewStyle().Underline(true),
	}
}

// Render writes markdown as styled plain text.
func Render(w io.Writer, markdown string, styles Styles) error {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	r := &renderer{src: src, styles: styles}
	if err := ast.Walk(doc, r.walk); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	_, err := io.WriteString(w, strings.TrimRight(r.out.String(), "\n")+"\n")
	return err
}

type renderer struct {
	src    []byte
	styles Styles
	out    strings.Builder
	lists  []listState
}

type listState struct {
	ordered bool
	next    int
}

func (r *renderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			title := r.inline(n)
			if n.Level <= 1 {
				title = strings.ToUpper(title)
			}
			r.out.WriteString(r.styles.Heading.Render(title) + "\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Paragraph:
		if entering {
			r.out.WriteString(r.inline(n) + "\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.TextBlock:
		if entering {
			r.out.WriteString(r.inline(n) + "\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.lists = append(r.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
			if len(r.lists) == 0 {
				r.out.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			depth := len(r.lists) - 1
			l := &r.lists[depth]
			bullet := "• "
			if l.ordered {
				bullet = fmt.Sprintf("%d. ", l.next)
				l.next++
			}
			r.out.WriteString(strings.Repeat("  ", depth) + bullet)
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimRight(string(seg.Value(r.src)), "\n")
				r.out.WriteString("    " + r.styles.Code.Render(line) + "\n")
			}
			r.out.WriteString("\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			r.out.WriteString(strings.Repeat("─", 40) + "\n\n")
		}
	}
	return ast.WalkContinue, nil
}

// inline flattens the inline children of a block node.
func (r *renderer) inline(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(r.src))
			if c.SoftLineBreak() {
				b.WriteString(" ")
			}
			if c.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.Emphasis:
			if c.Level >= 2 {
				b.WriteString(r.styles.Strong.Render(r.inline(c)))
			} else {
				b.WriteString(r.styles.Emphasis.Render(r.inline(c)))
			}
		case *ast.CodeSpan:
			b.WriteString(r.styles.Code.Render(r.inline(c)))
		case *ast.Link:
			label := r.inline(c)
			dest := string(c.Destination)
			if label == dest {
				b.WriteString(r.styles.Link.Render(dest))
			} else {
				b.WriteString(label + " (" + r.styles.Link.Render(dest) + ")")
			}
		case *ast.AutoLink:
			b.WriteString(r.styles.Link.Render(string(c.Label(r.src))))
		default:
			b.WriteString(r.inline(c))
		}
	}
	return b.String()
}
