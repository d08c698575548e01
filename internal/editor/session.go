package editor

import "github.com/Mutter0815/blockmail/internal/blocks"

// Session tracks the block under edit and the snapshot taken when editing
// began.
type Session struct {
	BlockID       string            `json:"blockId"`
	Current       bool              `json:"current"`
	InitialValues blocks.Attributes `json:"initialValues"`
	values        blocks.Attributes
}

func (e *Editor) Session() Session {
	s := e.session
	s.InitialValues = s.InitialValues.Clone()
	s.values = nil
	return s
}

func (e *Editor) Editing() bool { return e.session.Current }

// BeginEdit opens the edit view for id. An edit already in progress is
// closed as if saved.
func (e *Editor) BeginEdit(id string) error {
	i := e.IndexOf(id)
	if i < 0 {
		e.session = Session{}
		return ErrBlockNotFound
	}
	attrs := e.blocks[i].Attributes
	e.session = Session{
		BlockID:       id,
		Current:       true,
		InitialValues: attrs.Clone(),
		values:        attrs.Clone(),
	}
	return nil
}

// UpdateAttribute writes one field through to the block under edit and
// re-renders it.
func (e *Editor) UpdateAttribute(key, value string) error {
	return e.UpdateAttributes(blocks.Attributes{key: value})
}

func (e *Editor) UpdateAttributes(changes blocks.Attributes) error {
	i, err := e.editIndex()
	if err != nil {
		return err
	}
	b := &e.blocks[i]
	if blocks.Known(b.ComponentName) {
		allowed := blocks.AttributeKeys(b.ComponentName)
		for k := range changes {
			if !contains(allowed, k) {
				return ErrAttributeNotFound
			}
		}
	}

	for k, v := range changes {
		e.session.values[k] = v
	}
	b.Attributes = e.session.values.Clone()
	e.rerender(i)
	return nil
}

// CancelEdit restores the attributes captured by BeginEdit and closes the
// edit view.
func (e *Editor) CancelEdit() error {
	i, err := e.editIndex()
	if err != nil {
		return err
	}
	e.blocks[i].Attributes = e.session.InitialValues.Clone()
	e.rerender(i)
	e.session = Session{}
	return nil
}

// SaveEdit closes the edit view, keeping the buffered values. Nothing is
// persisted.
func (e *Editor) SaveEdit() error {
	if _, err := e.editIndex(); err != nil {
		return err
	}
	e.session = Session{}
	return nil
}

// editIndex resolves the block under edit. A stale session, whose block has
// gone, is dropped.
func (e *Editor) editIndex() (int, error) {
	if !e.session.Current {
		return -1, ErrNotEditing
	}
	i := e.IndexOf(e.session.BlockID)
	if i < 0 {
		e.session = Session{}
		return -1, ErrBlockNotFound
	}
	return i, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
