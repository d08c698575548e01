package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mutter0815/blockmail/internal/blocks"
)

func sampleDoc() Document {
	list, _ := blocks.Decode(`[
		{"id":"a","componentName":"HeadingText","attributes":{"text":"Hi {{ contact.first_name }}"}},
		{"id":"b","componentName":"Spacer","attributes":{"height":"30px"}},
		{"id":"c","componentName":"Button","attributes":{"text":"Go","href":"https://example.com"}}
	]`)
	return Document{Subject: "Launch", Blocks: list, Styles: blocks.DefaultGlobalStyles()}
}

func TestMJML_Layout(t *testing.T) {
	src := MJML(sampleDoc())

	assert.True(t, strings.HasPrefix(src, "<mjml>"))
	assert.Contains(t, src, "<mj-title>Launch</mj-title>")
	assert.Contains(t, src, `<mj-body background-color="#f3f4f6"`)
	assert.Contains(t, src, `<mj-section background-color="#ffffff"`)
	assert.Contains(t, src, "a { color: #2563eb; }")

	heading := strings.Index(src, "Hi {{ contact.first_name }}")
	spacer := strings.Index(src, `<mj-spacer height="30px"`)
	button := strings.Index(src, "<mj-button")
	require.True(t, heading > 0 && spacer > 0 && button > 0)
	assert.True(t, heading < spacer && spacer < button, "blocks keep list order")
}

func TestMJML_RendersMissingElements(t *testing.T) {
	doc := Document{Blocks: []blocks.Block{{ID: "x", ComponentName: blocks.Spacer, Attributes: blocks.Attributes{}}}}
	assert.Contains(t, MJML(doc), `<mj-spacer height="20px"`)
}

func TestMJML_SanitisesLinkColor(t *testing.T) {
	styles := blocks.DefaultGlobalStyles()
	styles["linkColor"] = "red;} body{display:none"
	src := MJML(Document{Styles: styles})
	assert.Contains(t, src, "a { color: red bodydisplay:none; }")
}

func TestRender(t *testing.T) {
	var got string
	x := NewWithCompiler(func(_ context.Context, src string) (string, error) {
		got = src
		return "<html>ok</html>", nil
	})

	out, err := x.Render(context.Background(), sampleDoc())
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", out.HTML)
	assert.Equal(t, got, out.MJML)
}

func TestRender_CompileError(t *testing.T) {
	x := NewWithCompiler(func(context.Context, string) (string, error) {
		return "", errors.New("bad mjml")
	})

	out, err := x.Render(context.Background(), sampleDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad mjml")
	assert.NotEmpty(t, out.MJML)
	assert.Empty(t, out.HTML)
}

func TestPersonalize(t *testing.T) {
	x := NewWithCompiler(nil)
	out, err := x.Personalize(`<p>Hi {{ contact.first_name }} ({{ contact.email }}), welcome to {{ campaign.name }}</p>`,
		Recipient{Email: "ann@example.com", FirstName: "Ann"}, "Launch")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hi Ann (ann@example.com), welcome to Launch</p>", out)
}

func TestPersonalize_EscapesValues(t *testing.T) {
	x := NewWithCompiler(nil)
	out, err := x.Personalize(`<p>Hi {{ contact.first_name }}</p><a href="https://x.test/?n={{ campaign.name }}">go</a>`,
		Recipient{FirstName: "<script>alert(1)</script>"}, `Q"4 & more`)
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, `<p>Hi &lt;script&gt;alert(1)&lt;/script&gt;</p><a href="https://x.test/?n=Q&#34;4 &amp; more">go</a>`, out)
}

func TestPersonalize_NoPlaceholders(t *testing.T) {
	x := NewWithCompiler(nil)
	out, err := x.Personalize("<style>a { color: red; }</style>", Recipient{}, "")
	require.NoError(t, err)
	assert.Equal(t, "<style>a { color: red; }</style>", out)
}

func TestPersonalize_BadTemplate(t *testing.T) {
	x := NewWithCompiler(nil)
	_, err := x.Personalize("{% if %}", Recipient{}, "")
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	out, err := PlainText(`<html><head><style>p{color:red}</style></head><body>
		<div><p>Hello   there</p><p>Line one<br/>Line two</p></div>
		<script>alert(1)</script>
	</body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Hello there\nLine one\nLine two", out)
}
