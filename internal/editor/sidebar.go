package editor

import (
	"sort"

	"github.com/Mutter0815/blockmail/internal/blocks"
)

type ViewKind string

const (
	PaletteView ViewKind = "palette"
	EditView    ViewKind = "edit"
)

// Field is one editable input in the edit view.
type Field struct {
	Key       string               `json:"key"`
	Label     string               `json:"label"`
	InputKind blocks.InputKind     `json:"inputKind"`
	Options   []blocks.FieldOption `json:"options,omitempty"`
	Value     string               `json:"value"`
}

// View is what the sidebar shows: the palette, or the fields of the block
// under edit.
type View struct {
	Kind          ViewKind             `json:"kind"`
	Palette       []blocks.PaletteItem `json:"palette,omitempty"`
	BlockID       string               `json:"blockId,omitempty"`
	ComponentName blocks.ComponentName `json:"componentName,omitempty"`
	Fields        []Field              `json:"fields,omitempty"`
}

func (e *Editor) Sidebar() View {
	i, err := e.editIndex()
	if err != nil {
		return View{Kind: PaletteView, Palette: blocks.Palette()}
	}
	b := e.blocks[i]
	return View{
		Kind:          EditView,
		BlockID:       b.ID,
		ComponentName: b.ComponentName,
		Fields:        fields(b),
	}
}

// fields lists attributes in registry order followed by any others sorted.
// Attributes without widget metadata are not editable and are skipped.
func fields(b blocks.Block) []Field {
	keys := blocks.AttributeKeys(b.ComponentName)
	var rest []string
	for k := range b.Attributes {
		if !contains(keys, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		v, present := b.Attributes[k]
		if !present {
			continue
		}
		meta, ok := blocks.LookupField(k)
		if !ok {
			continue
		}
		out = append(out, Field{
			Key:       k,
			Label:     meta.Label,
			InputKind: meta.InputKind,
			Options:   meta.Options,
			Value:     v,
		})
	}
	return out
}

// GlobalStyleFields lists the inputs of the global styles tab.
func (e *Editor) GlobalStyleFields() []Field {
	keys := blocks.GlobalStyleKeys()
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		meta, _ := blocks.LookupGlobalStyleField(k)
		out = append(out, Field{
			Key:       k,
			Label:     meta.Label,
			InputKind: meta.InputKind,
			Options:   meta.Options,
			Value:     e.styles.Get(k),
		})
	}
	return out
}
