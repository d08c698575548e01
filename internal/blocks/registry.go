package blocks

import (
	"fmt"
	"sort"
)

// InputKind selects the edit widget used for an attribute.
type InputKind string

const (
	InputText     InputKind = "text"
	InputColor    InputKind = "color"
	InputTextarea InputKind = "textarea"
	InputSelect   InputKind = "select"
)

type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FieldMeta describes how the sidebar edits one attribute.
type FieldMeta struct {
	InputKind InputKind     `json:"inputKind"`
	Label     string        `json:"label"`
	Options   []FieldOption `json:"options,omitempty"`
}

// PaletteItem is an insertable block template that is not yet placed.
type PaletteItem struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ComponentName ComponentName `json:"componentName"`
}

type attr struct {
	key, value string
}

// default attributes per component, in display order
var defaultAttributes = map[ComponentName][]attr{
	HeadingText: {
		{"text", "Your heading"},
		{"color", "#111827"},
		{"fontSize", "28px"},
		{"textAlign", "left"},
		{"padding", "16px"},
	},
	ParagraphText: {
		{"content", "Write something your readers will enjoy."},
		{"color", "#374151"},
		{"fontSize", "16px"},
		{"textAlign", "left"},
		{"padding", "16px"},
	},
	Button: {
		{"text", "Click me"},
		{"href", "https://example.com"},
		{"color", "#ffffff"},
		{"backgroundColor", "#2563eb"},
		{"borderRadius", "4px"},
		{"align", "center"},
		{"padding", "16px"},
	},
	Image: {
		{"src", "https://placehold.co/600x300"},
		{"alt", "Image"},
		{"href", ""},
		{"width", "100%"},
		{"align", "center"},
		{"padding", "16px"},
	},
	Spacer: {
		{"height", "20px"},
	},
	List: {
		{"items", "First item\nSecond item\nThird item"},
		{"listStyle", "disc"},
		{"color", "#374151"},
		{"fontSize", "16px"},
		{"padding", "16px"},
	},
}

var paletteNames = map[ComponentName]string{
	HeadingText:   "Heading",
	ParagraphText: "Paragraph",
	Button:        "Button",
	Image:         "Image",
	Spacer:        "Spacer",
	List:          "List",
}

func opts(values ...string) []FieldOption {
	out := make([]FieldOption, len(values))
	for i, v := range values {
		out[i] = FieldOption{Value: v, Label: v}
	}
	return out
}

var alignOptions = []FieldOption{
	{Value: "left", Label: "Left"},
	{Value: "center", Label: "Center"},
	{Value: "right", Label: "Right"},
}

var fieldMeta = map[string]FieldMeta{
	"text":            {InputKind: InputText, Label: "Text"},
	"content":         {InputKind: InputTextarea, Label: "Content"},
	"color":           {InputKind: InputColor, Label: "Text colour"},
	"backgroundColor": {InputKind: InputColor, Label: "Background colour"},
	"fontSize":        {InputKind: InputSelect, Label: "Font size", Options: opts("12px", "14px", "16px", "18px", "20px", "24px", "28px", "32px", "40px")},
	"textAlign":       {InputKind: InputSelect, Label: "Text alignment", Options: alignOptions},
	"align":           {InputKind: InputSelect, Label: "Alignment", Options: alignOptions},
	"padding":         {InputKind: InputSelect, Label: "Padding", Options: opts("0px", "8px", "16px", "24px", "32px")},
	"href":            {InputKind: InputText, Label: "Link URL"},
	"borderRadius":    {InputKind: InputSelect, Label: "Corner radius", Options: opts("0px", "4px", "8px", "16px", "9999px")},
	"src":             {InputKind: InputText, Label: "Image URL"},
	"alt":             {InputKind: InputText, Label: "Alt text"},
	"width":           {InputKind: InputSelect, Label: "Width", Options: opts("25%", "50%", "75%", "100%")},
	"height":          {InputKind: InputSelect, Label: "Height", Options: opts("8px", "16px", "20px", "32px", "48px", "64px")},
	"items":           {InputKind: InputTextarea, Label: "Items (one per line)"},
	"listStyle": {InputKind: InputSelect, Label: "Bullet style", Options: []FieldOption{
		{Value: "disc", Label: "Disc"},
		{Value: "circle", Label: "Circle"},
		{Value: "square", Label: "Square"},
		{Value: "decimal", Label: "Numbered"},
	}},
}

var defaultGlobalStyles = map[string]string{
	"backgroundColor":        "#f3f4f6",
	"contentBackgroundColor": "#ffffff",
	"fontFamily":             "Helvetica, Arial, sans-serif",
	"linkColor":              "#2563eb",
}

var globalStyleKeys = []string{"backgroundColor", "contentBackgroundColor", "fontFamily", "linkColor"}

var globalStyleMeta = map[string]FieldMeta{
	"backgroundColor":        {InputKind: InputColor, Label: "Page background"},
	"contentBackgroundColor": {InputKind: InputColor, Label: "Content background"},
	"fontFamily": {InputKind: InputSelect, Label: "Font", Options: opts(
		"Helvetica, Arial, sans-serif",
		"Georgia, serif",
		"'Courier New', monospace",
		"Verdana, sans-serif",
	)},
	"linkColor": {InputKind: InputColor, Label: "Link colour"},
}

// Known reports whether name is one of the six component kinds.
func Known(name ComponentName) bool {
	_, ok := defaultAttributes[name]
	return ok
}

// DefaultAttributes returns a fresh copy of the defaults for name.
func DefaultAttributes(name ComponentName) (Attributes, bool) {
	list, ok := defaultAttributes[name]
	if !ok {
		return nil, false
	}
	out := make(Attributes, len(list))
	for _, a := range list {
		out[a.key] = a.value
	}
	return out, true
}

// AttributeKeys returns the attribute keys of name in display order.
func AttributeKeys(name ComponentName) []string {
	list := defaultAttributes[name]
	keys := make([]string, len(list))
	for i, a := range list {
		keys[i] = a.key
	}
	return keys
}

// LookupField returns the edit widget metadata for an attribute key.
func LookupField(key string) (FieldMeta, bool) {
	m, ok := fieldMeta[key]
	return m, ok
}

// Palette returns the insertable block templates.
func Palette() []PaletteItem {
	out := make([]PaletteItem, 0, len(Components))
	for _, c := range Components {
		out = append(out, PaletteItem{ID: PaletteID(c), Name: paletteNames[c], ComponentName: c})
	}
	return out
}

const palettePrefix = "palette-"

func PaletteID(name ComponentName) string { return palettePrefix + string(name) }

// PaletteComponent resolves a palette item id to its component.
func PaletteComponent(id string) (ComponentName, bool) {
	if len(id) <= len(palettePrefix) || id[:len(palettePrefix)] != palettePrefix {
		return "", false
	}
	name := ComponentName(id[len(palettePrefix):])
	return name, Known(name)
}

// Validate checks a block against the registry.
func Validate(b Block) error {
	if b.ID == "" {
		return fmt.Errorf("block id is empty")
	}
	list, ok := defaultAttributes[b.ComponentName]
	if !ok {
		return fmt.Errorf("block %s: unknown component %q", b.ID, b.ComponentName)
	}
	var extra []string
	for k := range b.Attributes {
		found := false
		for _, a := range list {
			if a.key == k {
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("block %s: unknown attributes %v for %s", b.ID, extra, b.ComponentName)
	}
	return nil
}

// ValidateList checks every block and id uniqueness.
func ValidateList(list []Block) error {
	for _, b := range list {
		if err := Validate(b); err != nil {
			return err
		}
	}
	return CheckIDs(list)
}

// CheckIDs reports an empty or repeated block id. Component names and
// attributes are not looked at, so unsupported blocks pass.
func CheckIDs(list []Block) error {
	seen := make(map[string]struct{}, len(list))
	for _, b := range list {
		if b.ID == "" {
			return fmt.Errorf("block id is empty")
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate block id %s", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	return nil
}

func DefaultGlobalStyles() GlobalStyles {
	out := make(GlobalStyles, len(defaultGlobalStyles))
	for k, v := range defaultGlobalStyles {
		out[k] = v
	}
	return out
}

func GlobalStyleKeys() []string {
	return append([]string(nil), globalStyleKeys...)
}

func LookupGlobalStyleField(key string) (FieldMeta, bool) {
	m, ok := globalStyleMeta[key]
	return m, ok
}
