package editor

import "github.com/Mutter0815/blockmail/internal/blocks"

type DragOutcome string

const (
	DragNoOp      DragOutcome = "noop"
	DragReordered DragOutcome = "reordered"
	DragInserted  DragOutcome = "inserted"
)

// DragStart records the item being dragged. It only drives the overlay.
func (e *Editor) DragStart(activeID string) { e.active = activeID }

func (e *Editor) ActiveDrag() string { return e.active }

func (e *Editor) DragCancel() { e.active = "" }

// DragEnd commits a gesture. A block dropped on another block moves to that
// block's position; a palette item dropped on a block is inserted at that
// position, or appended when dropped outside the list.
func (e *Editor) DragEnd(activeID, overID string) (DragOutcome, *blocks.Block) {
	e.active = ""
	if activeID == "" || activeID == overID {
		return DragNoOp, nil
	}

	if e.IndexOf(activeID) >= 0 {
		if e.Reorder(activeID, overID) {
			return DragReordered, nil
		}
		return DragNoOp, nil
	}

	name, ok := blocks.PaletteComponent(activeID)
	if !ok {
		return DragNoOp, nil
	}
	at := e.IndexOf(overID)
	if at < 0 {
		at = len(e.blocks)
	}
	b, err := e.InsertFromPalette(name, at)
	if err != nil {
		return DragNoOp, nil
	}
	return DragInserted, &b
}

// Reorder moves activeID to the position of overID, shifting the items in
// between by one.
func (e *Editor) Reorder(activeID, overID string) bool {
	if activeID == overID {
		return false
	}
	from, to := e.IndexOf(activeID), e.IndexOf(overID)
	if from < 0 || to < 0 {
		return false
	}
	e.blocks = move(e.blocks, from, to)
	return true
}

// InsertFromPalette places a new block of kind name with default attributes
// at index at (clamped to the list bounds).
func (e *Editor) InsertFromPalette(name blocks.ComponentName, at int) (blocks.Block, error) {
	attrs, ok := blocks.DefaultAttributes(name)
	if !ok {
		return blocks.Block{}, ErrUnknownComponent
	}
	b := blocks.Block{
		ID:            e.newID(),
		ComponentName: name,
		Attributes:    attrs,
		Element:       blocks.Render(name, attrs),
	}

	if at < 0 {
		at = 0
	}
	if at > len(e.blocks) {
		at = len(e.blocks)
	}
	e.blocks = append(e.blocks, blocks.Block{})
	copy(e.blocks[at+1:], e.blocks[at:])
	e.blocks[at] = b
	return b.Clone(), nil
}

func move(list []blocks.Block, from, to int) []blocks.Block {
	item := list[from]
	out := make([]blocks.Block, 0, len(list))
	out = append(out, list[:from]...)
	out = append(out, list[from+1:]...)

	out = append(out, blocks.Block{})
	copy(out[to+1:], out[to:])
	out[to] = item
	return out
}
