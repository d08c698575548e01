package blocks

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ComponentName identifies the kind of a block.
type ComponentName string

const (
	HeadingText   ComponentName = "HeadingText"
	ParagraphText ComponentName = "ParagraphText"
	Button        ComponentName = "Button"
	Image         ComponentName = "Image"
	Spacer        ComponentName = "Spacer"
	List          ComponentName = "List"
)

// Components lists the known component kinds in palette order.
var Components = []ComponentName{HeadingText, ParagraphText, Button, Image, Spacer, List}

// Attributes maps a field name to its value.
type Attributes map[string]string

func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts scalar values of any JSON type and keeps their
// string form. Nested objects and arrays are kept as raw JSON text.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*a = nil
		return nil
	}
	out := make(Attributes, len(raw))
	for k, v := range raw {
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = s
	}
	*a = out
	return nil
}

func scalarString(v json.RawMessage) (string, error) {
	var val interface{}
	if err := json.Unmarshal(v, &val); err != nil {
		return "", err
	}
	switch t := val.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return string(v), nil
	}
}

// Block is one visual unit of an email. Element is the rendered form and is
// never persisted.
type Block struct {
	ID            string        `json:"id"`
	ComponentName ComponentName `json:"componentName"`
	Attributes    Attributes    `json:"attributes"`
	Element       Element       `json:"-"`
}

// Clone copies the block with its own attribute map. The element is shared,
// elements are immutable.
func (b Block) Clone() Block {
	b.Attributes = b.Attributes.Clone()
	return b
}

// IndexOf returns the position of id in list, or -1.
func IndexOf(list []Block, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// GlobalStyles holds campaign wide style settings.
type GlobalStyles map[string]string

func (g GlobalStyles) Clone() GlobalStyles {
	out := make(GlobalStyles, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// Get returns the value for key, falling back to the registry default.
func (g GlobalStyles) Get(key string) string {
	if v, ok := g[key]; ok && v != "" {
		return v
	}
	return defaultGlobalStyles[key]
}
