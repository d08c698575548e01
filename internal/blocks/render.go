package blocks

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Element is the rendered form of a block. MJML returns the fragment that
// goes inside the email's content column.
type Element interface {
	Kind() ComponentName
	MJML(styles GlobalStyles) string
}

type renderFunc func(Attributes) Element

var renderers = map[ComponentName]renderFunc{
	HeadingText:   func(a Attributes) Element { return Heading{attrs: a} },
	ParagraphText: func(a Attributes) Element { return Paragraph{attrs: a} },
	Button:        func(a Attributes) Element { return ButtonElement{attrs: a} },
	Image:         func(a Attributes) Element { return ImageElement{attrs: a} },
	Spacer:        func(a Attributes) Element { return SpacerElement{attrs: a} },
	List:          func(a Attributes) Element { return ListElement{attrs: a} },
}

// Render builds the element for a block. Unknown kinds produce an
// Unsupported element rather than nothing, so the block survives a re-save.
func Render(name ComponentName, attrs Attributes) Element {
	fn, ok := renderers[name]
	if !ok {
		return Unsupported{Name: name, Attributes: attrs.Clone()}
	}
	return fn(withDefaults(name, attrs))
}

func withDefaults(name ComponentName, attrs Attributes) Attributes {
	merged, _ := DefaultAttributes(name)
	for k, v := range attrs {
		merged[k] = v
	}
	return merged
}

type Heading struct{ attrs Attributes }

func (Heading) Kind() ComponentName { return HeadingText }

func (e Heading) Text() string { return e.attrs["text"] }

func (e Heading) MJML(styles GlobalStyles) string {
	return fmt.Sprintf("<mj-text%s>%s</mj-text>",
		tagAttrs(
			"align", e.attrs["textAlign"],
			"color", e.attrs["color"],
			"font-size", e.attrs["fontSize"],
			"font-family", styles.Get("fontFamily"),
			"font-weight", "700",
			"padding", e.attrs["padding"],
		),
		html.EscapeString(e.attrs["text"]))
}

type Paragraph struct{ attrs Attributes }

func (Paragraph) Kind() ComponentName { return ParagraphText }

func (e Paragraph) Content() string { return e.attrs["content"] }

func (e Paragraph) MJML(styles GlobalStyles) string {
	lines := strings.Split(e.attrs["content"], "\n")
	for i := range lines {
		lines[i] = html.EscapeString(lines[i])
	}
	return fmt.Sprintf("<mj-text%s>%s</mj-text>",
		tagAttrs(
			"align", e.attrs["textAlign"],
			"color", e.attrs["color"],
			"font-size", e.attrs["fontSize"],
			"font-family", styles.Get("fontFamily"),
			"line-height", "1.5",
			"padding", e.attrs["padding"],
		),
		strings.Join(lines, "<br />"))
}

type ButtonElement struct{ attrs Attributes }

func (ButtonElement) Kind() ComponentName { return Button }

func (e ButtonElement) Href() string { return e.attrs["href"] }

func (e ButtonElement) MJML(styles GlobalStyles) string {
	return fmt.Sprintf("<mj-button%s>%s</mj-button>",
		tagAttrs(
			"href", e.attrs["href"],
			"align", e.attrs["align"],
			"color", e.attrs["color"],
			"background-color", e.attrs["backgroundColor"],
			"border-radius", e.attrs["borderRadius"],
			"font-family", styles.Get("fontFamily"),
			"padding", e.attrs["padding"],
		),
		html.EscapeString(e.attrs["text"]))
}

type ImageElement struct{ attrs Attributes }

func (ImageElement) Kind() ComponentName { return Image }

func (e ImageElement) Src() string { return e.attrs["src"] }

func (e ImageElement) MJML(GlobalStyles) string {
	return fmt.Sprintf("<mj-image%s />",
		tagAttrs(
			"src", e.attrs["src"],
			"alt", e.attrs["alt"],
			"href", e.attrs["href"],
			"width", pixelWidth(e.attrs["width"]),
			"align", e.attrs["align"],
			"padding", e.attrs["padding"],
		))
}

// contentWidth is the width of the email body column in pixels.
const contentWidth = 600

// pixelWidth converts percentages to pixels; mj-image only takes px.
func pixelWidth(w string) string {
	if !strings.HasSuffix(w, "%") {
		return w
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(w, "%"), 64)
	if err != nil || pct <= 0 || pct >= 100 {
		return ""
	}
	return strconv.Itoa(int(contentWidth*pct/100)) + "px"
}

type SpacerElement struct{ attrs Attributes }

func (SpacerElement) Kind() ComponentName { return Spacer }

func (e SpacerElement) Height() string { return e.attrs["height"] }

func (e SpacerElement) MJML(GlobalStyles) string {
	return fmt.Sprintf("<mj-spacer%s />", tagAttrs("height", e.attrs["height"]))
}

type ListElement struct{ attrs Attributes }

func (ListElement) Kind() ComponentName { return List }

// Items returns the non-empty lines of the items attribute.
func (e ListElement) Items() []string {
	var out []string
	for _, line := range strings.Split(e.attrs["items"], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (e ListElement) MJML(styles GlobalStyles) string {
	tag := "ul"
	style := e.attrs["listStyle"]
	if style == "decimal" {
		tag = "ol"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<%s style="list-style-type:%s;margin:0;padding-left:24px">`, tag, html.EscapeString(style))
	for _, item := range e.Items() {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(item))
		b.WriteString("</li>")
	}
	fmt.Fprintf(&b, "</%s>", tag)

	return fmt.Sprintf("<mj-text%s>%s</mj-text>",
		tagAttrs(
			"color", e.attrs["color"],
			"font-size", e.attrs["fontSize"],
			"font-family", styles.Get("fontFamily"),
			"padding", e.attrs["padding"],
		),
		b.String())
}

// Unsupported stands in for a block whose component kind is not known.
type Unsupported struct {
	Name       ComponentName
	Attributes Attributes
}

func (e Unsupported) Kind() ComponentName { return e.Name }

func (e Unsupported) MJML(GlobalStyles) string {
	name := strings.ReplaceAll(string(e.Name), "--", "")
	return fmt.Sprintf("<mj-raw><!-- unsupported block %s --></mj-raw>", name)
}

// IsUnsupported reports whether el is a placeholder for an unknown kind.
func IsUnsupported(el Element) bool {
	_, ok := el.(Unsupported)
	return ok
}

// tagAttrs formats key/value pairs as MJML attributes, skipping empty values.
func tagAttrs(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		fmt.Fprintf(&b, ` %s="%s"`, pairs[i], html.EscapeString(pairs[i+1]))
	}
	return b.String()
}
