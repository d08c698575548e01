package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/blockmail/internal/blocks"
	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/editor"
	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/pkg/metrics"
)

type blockView struct {
	blocks.Block
	Unsupported bool `json:"unsupported,omitempty"`
}

type sessionView struct {
	SessionID         string              `json:"session_id"`
	CampaignID        int64               `json:"campaign_id"`
	Blocks            []blockView         `json:"blocks"`
	GlobalStyles      blocks.GlobalStyles `json:"global_styles"`
	GlobalStyleFields []editor.Field      `json:"global_style_fields"`
	Session           editor.Session      `json:"session"`
	Sidebar           editor.View         `json:"sidebar"`
	ActiveDrag        string              `json:"active_drag,omitempty"`
}

type dragReq struct {
	ActiveID string `json:"active_id" binding:"required"`
	OverID   string `json:"over_id"`
}

type dragEndResp struct {
	Outcome  editor.DragOutcome `json:"outcome"`
	Inserted *blocks.Block      `json:"inserted,omitempty"`
	View     sessionView        `json:"view"`
}

type attributesReq struct {
	Attributes blocks.Attributes `json:"attributes" binding:"required"`
}

type stylesReq struct {
	Styles blocks.Attributes `json:"styles" binding:"required"`
}

func buildView(sid string, campaignID int64, ed *editor.Editor) sessionView {
	list := ed.Blocks()
	out := make([]blockView, 0, len(list))
	for _, b := range list {
		out = append(out, blockView{Block: b, Unsupported: blocks.IsUnsupported(b.Element)})
	}
	return sessionView{
		SessionID:         sid,
		CampaignID:        campaignID,
		Blocks:            out,
		GlobalStyles:      ed.GlobalStyles(),
		GlobalStyleFields: ed.GlobalStyleFields(),
		Session:           ed.Session(),
		Sidebar:           ed.Sidebar(),
		ActiveDrag:        ed.ActiveDrag(),
	}
}

// withSession runs fn on the editor of session sid and builds the resulting
// view under the same lock. It returns false when a response has already
// been written.
func (h *Handlers) withSession(c *gin.Context, sid, op string, fn func(ed *editor.Editor) error) (sessionView, bool) {
	var (
		view  sessionView
		opErr error
	)
	err := h.Sessions.With(sid, func(campaignID int64, ed *editor.Editor) error {
		opErr = fn(ed)
		view = buildView(sid, campaignID, ed)
		return nil
	})
	if err != nil {
		writeError(c, "editor_session_error", err)
		return view, false
	}

	metrics.EditorOp(op, opErr)
	if opErr != nil {
		// A block that vanished mid-edit is a no-op; the session is already dropped.
		if errors.Is(opErr, editor.ErrBlockNotFound) {
			reqLog(c).Warnw("editor_block_missing", "op", op)
			return view, true
		}
		writeError(c, "editor_"+op+"_error", opErr)
		return view, false
	}
	return view, true
}

func (h *Handlers) respondSession(c *gin.Context, op string, fn func(ed *editor.Editor) error) {
	if view, ok := h.withSession(c, c.Param("sid"), op, fn); ok {
		c.JSON(http.StatusOK, view)
	}
}

func (h *Handlers) OpenEditorSession(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	camp, err := h.Store.GetCampaign(ctx, id)
	if err != nil {
		writeError(c, "get_campaign_error", err)
		return
	}
	if camp.Locked() {
		writeError(c, "open_editor_error", campaign.ErrAlreadySent)
		return
	}
	if _, ok := blocks.Decode(camp.Blocks); !ok && camp.Blocks != "" {
		reqLog(c).Warnw("editor_blocks_unparseable", "campaign_id", id)
	}

	sid := h.Sessions.Open(id, editor.Load(camp.Blocks, camp.GlobalStyles))
	metrics.EditorSessionsOpen.Set(float64(h.Sessions.Len()))
	reqLog(c).Infow("editor_session_opened", "campaign_id", id, "sid", sid)

	if view, ok := h.withSession(c, sid, "open", func(*editor.Editor) error { return nil }); ok {
		c.JSON(http.StatusCreated, view)
	}
}

func (h *Handlers) GetEditorSession(c *gin.Context) {
	h.respondSession(c, "view", func(*editor.Editor) error { return nil })
}

func (h *Handlers) CloseEditorSession(c *gin.Context) {
	if !h.Sessions.Close(c.Param("sid")) {
		writeError(c, "editor_session_error", editor.ErrSessionNotFound)
		return
	}
	metrics.EditorSessionsOpen.Set(float64(h.Sessions.Len()))
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DragStart(c *gin.Context) {
	var req dragReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondSession(c, "drag_start", func(ed *editor.Editor) error {
		ed.DragStart(req.ActiveID)
		return nil
	})
}

func (h *Handlers) DragCancel(c *gin.Context) {
	h.respondSession(c, "drag_cancel", func(ed *editor.Editor) error {
		ed.DragCancel()
		return nil
	})
}

func (h *Handlers) DragEnd(c *gin.Context) {
	var req dragReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var resp dragEndResp
	view, ok := h.withSession(c, c.Param("sid"), "drag_end", func(ed *editor.Editor) error {
		resp.Outcome, resp.Inserted = ed.DragEnd(req.ActiveID, req.OverID)
		return nil
	})
	if !ok {
		return
	}
	resp.View = view
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) BeginEdit(c *gin.Context) {
	blockID := c.Param("blockId")
	h.respondSession(c, "begin_edit", func(ed *editor.Editor) error {
		return ed.BeginEdit(blockID)
	})
}

func (h *Handlers) UpdateAttributes(c *gin.Context) {
	var req attributesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respondSession(c, "update_attributes", func(ed *editor.Editor) error {
		return ed.UpdateAttributes(req.Attributes)
	})
}

func (h *Handlers) CancelEdit(c *gin.Context) {
	h.respondSession(c, "cancel_edit", func(ed *editor.Editor) error {
		return ed.CancelEdit()
	})
}

func (h *Handlers) SaveEdit(c *gin.Context) {
	h.respondSession(c, "save_edit", func(ed *editor.Editor) error {
		return ed.SaveEdit()
	})
}

func (h *Handlers) DeleteBlock(c *gin.Context) {
	blockID := c.Param("blockId")
	h.respondSession(c, "delete_block", func(ed *editor.Editor) error {
		return ed.DeleteBlock(blockID)
	})
}

func (h *Handlers) SetGlobalStyles(c *gin.Context) {
	var req stylesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	keys := make([]string, 0, len(req.Styles))
	for k := range req.Styles {
		if _, ok := blocks.LookupGlobalStyleField(k); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown global style " + k})
			return
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h.respondSession(c, "set_global_styles", func(ed *editor.Editor) error {
		for _, k := range keys {
			if err := ed.SetGlobalStyle(k, req.Styles[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveEditorSession persists the session's current blocks and styles. The
// snapshot is taken under the session lock and written after it is released.
func (h *Handlers) SaveEditorSession(c *gin.Context) {
	sid := c.Param("sid")
	var (
		cid            int64
		blockJSON, css string
	)
	err := h.Sessions.With(sid, func(campaignID int64, ed *editor.Editor) error {
		cid = campaignID
		var err error
		blockJSON, css, err = ed.Snapshot()
		return err
	})
	metrics.EditorOp("save", err)
	if err != nil {
		writeError(c, "editor_snapshot_error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.UpdateCampaignBlocks(ctx, cid, blockJSON, css); err != nil {
		writeError(c, "save_blocks_error", err)
		return
	}
	reqLog(c).Infow("editor_session_saved", "campaign_id", cid)
	c.Status(http.StatusNoContent)
}

// EditorSessionHTML previews the session's unsaved state.
func (h *Handlers) EditorSessionHTML(c *gin.Context) {
	var doc export.Document
	err := h.Sessions.With(c.Param("sid"), func(_ int64, ed *editor.Editor) error {
		doc = export.Document{Blocks: ed.Blocks(), Styles: ed.GlobalStyles()}
		return nil
	})
	if err != nil {
		writeError(c, "editor_session_error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	out, ok := h.render(c, ctx, doc)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out.HTML))
}
