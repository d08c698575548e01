// Package export turns a decoded block list into outbound email markup.
// Blocks are laid out as MJML in a single content column and compiled to
// HTML with mjml-go; recipient fields are filled in with Liquid.
package export

import (
	"context"
	"fmt"
	"html"
	"strings"

	mjml "github.com/Boostport/mjml-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/osteele/liquid"

	"github.com/Mutter0815/blockmail/internal/blocks"
)

// Compiler turns an MJML document into HTML.
type Compiler func(ctx context.Context, src string) (string, error)

func compileMJML(ctx context.Context, src string) (string, error) {
	return mjml.ToHTML(ctx, src)
}

type Document struct {
	Subject string
	Blocks  []blocks.Block
	Styles  blocks.GlobalStyles
}

type Rendered struct {
	MJML string
	HTML string
}

// Recipient is the data a personalized copy is rendered with.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
}

type Exporter struct {
	compile Compiler
	engine  *liquid.Engine
}

func New() *Exporter {
	return NewWithCompiler(compileMJML)
}

func NewWithCompiler(c Compiler) *Exporter {
	return &Exporter{compile: c, engine: liquid.NewEngine()}
}

// MJML lays the blocks out as a complete MJML document.
func MJML(doc Document) string {
	styles := doc.Styles
	var b strings.Builder
	b.WriteString("<mjml>\n  <mj-head>\n")
	if doc.Subject != "" {
		fmt.Fprintf(&b, "    <mj-title>%s</mj-title>\n", html.EscapeString(doc.Subject))
		fmt.Fprintf(&b, "    <mj-preview>%s</mj-preview>\n", html.EscapeString(doc.Subject))
	}
	b.WriteString("    <mj-attributes>\n")
	fmt.Fprintf(&b, "      <mj-all font-family=\"%s\" />\n", html.EscapeString(styles.Get("fontFamily")))
	b.WriteString("    </mj-attributes>\n")
	fmt.Fprintf(&b, "    <mj-style>a { color: %s; }</mj-style>\n", cssValue(styles.Get("linkColor")))
	b.WriteString("  </mj-head>\n")
	fmt.Fprintf(&b, "  <mj-body background-color=\"%s\" width=\"600px\">\n", html.EscapeString(styles.Get("backgroundColor")))
	fmt.Fprintf(&b, "    <mj-section background-color=\"%s\" padding=\"0px\">\n", html.EscapeString(styles.Get("contentBackgroundColor")))
	b.WriteString("      <mj-column>\n")
	for _, blk := range doc.Blocks {
		el := blk.Element
		if el == nil {
			el = blocks.Render(blk.ComponentName, blk.Attributes)
		}
		b.WriteString("        ")
		b.WriteString(el.MJML(styles))
		b.WriteByte('\n')
	}
	b.WriteString("      </mj-column>\n    </mj-section>\n  </mj-body>\n</mjml>\n")
	return b.String()
}

// cssValue strips characters that could close the style rule.
func cssValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '{', '}', ';', '<', '>':
			return -1
		}
		return r
	}, v)
}

// Render compiles doc to HTML.
func (x *Exporter) Render(ctx context.Context, doc Document) (Rendered, error) {
	src := MJML(doc)
	out, err := x.compile(ctx, src)
	if err != nil {
		return Rendered{MJML: src}, fmt.Errorf("compile mjml: %w", err)
	}
	return Rendered{MJML: src, HTML: out}, nil
}

// Personalize fills Liquid placeholders such as {{ contact.first_name }}.
// Bound values are HTML-escaped since they land in HTML text and attributes.
func (x *Exporter) Personalize(markup string, r Recipient, campaignName string) (string, error) {
	if !strings.Contains(markup, "{{") && !strings.Contains(markup, "{%") {
		return markup, nil
	}
	bindings := map[string]interface{}{
		"contact": map[string]interface{}{
			"email":      html.EscapeString(r.Email),
			"first_name": html.EscapeString(r.FirstName),
			"last_name":  html.EscapeString(r.LastName),
		},
		"campaign": map[string]interface{}{
			"name": html.EscapeString(campaignName),
		},
	}
	out, err := x.engine.ParseAndRenderString(markup, bindings)
	if err != nil {
		return "", fmt.Errorf("personalize: %w", err)
	}
	return out, nil
}

// PlainText extracts the readable text of an HTML email for the text/plain
// alternative part.
func PlainText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	doc.Find("head, style, script").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, h1, h2, h3, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
