package blocks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAttributes(t *testing.T) {
	for _, c := range Components {
		attrs, ok := DefaultAttributes(c)
		require.True(t, ok, c)
		assert.NotEmpty(t, attrs, c)
		assert.Len(t, AttributeKeys(c), len(attrs), c)

		for _, k := range AttributeKeys(c) {
			_, hasMeta := LookupField(k)
			assert.True(t, hasMeta, "%s.%s has no field metadata", c, k)
		}
	}

	_, ok := DefaultAttributes("Carousel")
	assert.False(t, ok)
}

func TestDefaultAttributes_ReturnsCopy(t *testing.T) {
	a, _ := DefaultAttributes(Spacer)
	a["height"] = "999px"
	b, _ := DefaultAttributes(Spacer)
	assert.Equal(t, "20px", b["height"])
}

func TestLookupField(t *testing.T) {
	m, ok := LookupField("textAlign")
	require.True(t, ok)
	assert.Equal(t, InputSelect, m.InputKind)
	assert.NotEmpty(t, m.Options)

	m, ok = LookupField("content")
	require.True(t, ok)
	assert.Equal(t, InputTextarea, m.InputKind)

	_, ok = LookupField("nope")
	assert.False(t, ok)
}

func TestPalette(t *testing.T) {
	items := Palette()
	require.Len(t, items, len(Components))
	for i, item := range items {
		assert.Equal(t, Components[i], item.ComponentName)
		name, ok := PaletteComponent(item.ID)
		assert.True(t, ok)
		assert.Equal(t, item.ComponentName, name)
	}

	_, ok := PaletteComponent("palette-Carousel")
	assert.False(t, ok)
	_, ok = PaletteComponent("b1")
	assert.False(t, ok)
	_, ok = PaletteComponent("palette-")
	assert.False(t, ok)
}

func TestValidateList(t *testing.T) {
	ok := []Block{
		{ID: "1", ComponentName: Spacer, Attributes: Attributes{"height": "20px"}},
		{ID: "2", ComponentName: HeadingText, Attributes: Attributes{"text": "hi"}},
	}
	assert.NoError(t, ValidateList(ok))

	dup := []Block{ok[0], ok[0]}
	assert.ErrorContains(t, ValidateList(dup), "duplicate")

	unknown := []Block{{ID: "1", ComponentName: "Carousel"}}
	assert.ErrorContains(t, ValidateList(unknown), "unknown component")

	extra := []Block{{ID: "1", ComponentName: Spacer, Attributes: Attributes{"width": "1px"}}}
	err := ValidateList(extra)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "width"))

	assert.Error(t, Validate(Block{ComponentName: Spacer}))
}

func TestCheckIDs(t *testing.T) {
	assert.NoError(t, CheckIDs([]Block{{ID: "1", ComponentName: "Carousel"}, {ID: "2"}}))
	assert.ErrorContains(t, CheckIDs([]Block{{ID: "1"}, {ID: "1"}}), "duplicate")
	assert.ErrorContains(t, CheckIDs([]Block{{ID: ""}}), "empty")
}

func TestGlobalStyleDefaults(t *testing.T) {
	styles := DefaultGlobalStyles()
	for _, k := range GlobalStyleKeys() {
		assert.NotEmpty(t, styles[k], k)
		_, ok := LookupGlobalStyleField(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, "#f3f4f6", GlobalStyles{}.Get("backgroundColor"))
	assert.Equal(t, "#000", GlobalStyles{"backgroundColor": "#000"}.Get("backgroundColor"))
}
