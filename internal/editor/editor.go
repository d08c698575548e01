// Package editor holds the state of one campaign being edited: the ordered
// block list, the editing session, global styles and the drag in progress.
// An Editor is not safe for concurrent use; Registry serialises access.
package editor

import (
	"errors"

	"github.com/Mutter0815/blockmail/internal/blocks"
)

var (
	ErrBlockNotFound     = errors.New("block not found")
	ErrNotEditing        = errors.New("no block is being edited")
	ErrUnknownComponent  = errors.New("unknown component")
	ErrAttributeNotFound = errors.New("attribute not valid for block")
)

// maxIDAttempts bounds re-draws of a colliding generated id.
const maxIDAttempts = 16

type Editor struct {
	blocks  []blocks.Block
	styles  blocks.GlobalStyles
	session Session
	active  string
	ids     IDGenerator
}

type Option func(*Editor)

func WithIDGenerator(g IDGenerator) Option {
	return func(e *Editor) { e.ids = g }
}

// New builds an editor over list. Blocks without an element are rendered.
func New(list []blocks.Block, styles blocks.GlobalStyles, opts ...Option) *Editor {
	e := &Editor{
		blocks: make([]blocks.Block, 0, len(list)),
		styles: blocks.DefaultGlobalStyles(),
		ids:    UUIDGenerator{},
	}
	for k, v := range styles {
		e.styles[k] = v
	}
	for _, b := range list {
		b = b.Clone()
		if b.Element == nil {
			b.Element = blocks.Render(b.ComponentName, b.Attributes)
		}
		e.blocks = append(e.blocks, b)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load decodes persisted blocks and styles. Unparseable input opens empty.
func Load(serializedBlocks, serializedStyles string, opts ...Option) *Editor {
	list, _ := blocks.Decode(serializedBlocks)
	styles, _ := blocks.DecodeGlobalStyles(serializedStyles)
	return New(list, styles, opts...)
}

// Blocks returns a copy of the current list.
func (e *Editor) Blocks() []blocks.Block {
	out := make([]blocks.Block, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = b.Clone()
	}
	return out
}

func (e *Editor) Len() int { return len(e.blocks) }

func (e *Editor) IDs() []string {
	out := make([]string, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = b.ID
	}
	return out
}

func (e *Editor) IndexOf(id string) int { return blocks.IndexOf(e.blocks, id) }

// Block returns a copy of the block with id.
func (e *Editor) Block(id string) (blocks.Block, bool) {
	i := e.IndexOf(id)
	if i < 0 {
		return blocks.Block{}, false
	}
	return e.blocks[i].Clone(), true
}

func (e *Editor) GlobalStyles() blocks.GlobalStyles { return e.styles.Clone() }

func (e *Editor) SetGlobalStyle(key, value string) error {
	if _, ok := blocks.LookupGlobalStyleField(key); !ok {
		return ErrAttributeNotFound
	}
	e.styles[key] = value
	return nil
}

// DeleteBlock removes id from the list. Deleting the block under edit drops
// the editing session.
func (e *Editor) DeleteBlock(id string) error {
	i := e.IndexOf(id)
	if i < 0 {
		if e.session.BlockID == id {
			e.session = Session{}
		}
		return ErrBlockNotFound
	}
	e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
	if e.session.BlockID == id {
		e.session = Session{}
	}
	return nil
}

// Snapshot encodes the current blocks and global styles for persistence.
func (e *Editor) Snapshot() (serializedBlocks, serializedStyles string, err error) {
	serializedBlocks, err = blocks.Encode(e.blocks)
	if err != nil {
		return "", "", err
	}
	serializedStyles, err = blocks.EncodeGlobalStyles(e.styles)
	if err != nil {
		return "", "", err
	}
	return serializedBlocks, serializedStyles, nil
}

func (e *Editor) newID() string {
	id := e.ids.NewID()
	for i := 0; i < maxIDAttempts && (id == "" || e.IndexOf(id) >= 0); i++ {
		id = e.ids.NewID()
	}
	if id == "" || e.IndexOf(id) >= 0 {
		id = UUIDGenerator{}.NewID()
	}
	return id
}

func (e *Editor) rerender(i int) {
	e.blocks[i].Element = blocks.Render(e.blocks[i].ComponentName, e.blocks[i].Attributes)
}
