package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/blockmail/internal/blocks"
	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/editor"
	"github.com/Mutter0815/blockmail/internal/export"
	"github.com/Mutter0815/blockmail/internal/store"
	"github.com/Mutter0815/blockmail/pkg/metrics"
)

type storeAPI interface {
	InsertCampaign(ctx context.Context, name, subject, fromName string, listID int64) (int64, error)
	GetCampaign(ctx context.Context, id int64) (campaign.Campaign, error)
	GetList(ctx context.Context, id int64) (campaign.List, error)
	GetContact(ctx context.Context, id int64) (campaign.Contact, error)
	GetCampaignStats(ctx context.Context, id int64) (store.CampaignStats, error)
	ListCampaigns(ctx context.Context, limit, offset int) ([]store.CampaignSummary, error)
	UpdateCampaign(ctx context.Context, id int64, name, subject, sendFromName string, listID int64) error
	UpdateCampaignBlocks(ctx context.Context, id int64, blocks, globalStyles string) error
	DeleteCampaigns(ctx context.Context, ids []int64) ([]int64, error)
	ScheduleCampaign(ctx context.Context, id int64, at *time.Time) error
	CountSentCampaigns(ctx context.Context) (int, error)
}

type renderer interface {
	Render(ctx context.Context, doc export.Document) (export.Rendered, error)
	Personalize(markup string, r export.Recipient, campaignName string) (string, error)
}

type storeAdapter struct{ *store.Store }

type Handlers struct {
	Store    storeAPI
	Export   renderer
	Sessions *editor.Registry
}

func NewHandlers(s *store.Store, x *export.Exporter, sessions *editor.Registry) *Handlers {
	return &Handlers{Store: &storeAdapter{s}, Export: x, Sessions: sessions}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func campaignID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) CreateCampaign(c *gin.Context) {
	var req campaign.CreateCampaignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Store.GetList(ctx, req.ListID); err != nil {
		writeError(c, "get_list_error", err)
		return
	}
	id, err := h.Store.InsertCampaign(ctx, req.Name, req.Subject, req.FromName, req.ListID)
	if err != nil {
		writeError(c, "insert_campaign_error", err)
		return
	}

	reqLog(c).Infow("campaign_created", "id", id, "list_id", req.ListID)
	c.JSON(http.StatusCreated, campaign.CreateCampaignResp{ID: id})
}

func (h *Handlers) ListCampaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Store.ListCampaigns(ctx, limit, offset)
	if err != nil {
		writeError(c, "list_campaigns_error", err)
		return
	}

	out := make([]campaign.CampaignListItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, campaign.CampaignListItem{
			ID:            r.ID,
			Name:          r.Name,
			Subject:       r.Subject,
			HasSent:       r.HasSent,
			ScheduledSend: r.ScheduledSend,
			Status:        r.Status(),
			UpdatedAt:     r.UpdatedAt,
			List:          campaign.ListRef{ID: r.ListID, Name: r.ListName},
		})
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handlers) GetCampaign(c *gin.Context) {
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
	list, err := h.Store.GetList(ctx, camp.ListID)
	if err != nil && !campaign.IsNotFound(err) {
		writeError(c, "get_list_error", err)
		return
	}
	stats, err := h.Store.GetCampaignStats(ctx, id)
	if err != nil {
		writeError(c, "get_campaign_stats_error", err)
		return
	}

	resp := campaign.CampaignDetails{
		ID:            camp.ID,
		Name:          camp.Name,
		Subject:       camp.Subject,
		SendFromName:  camp.SendFromName,
		Blocks:        camp.Blocks,
		GlobalStyles:  camp.GlobalStyles,
		HasSent:       camp.HasSent,
		ScheduledSend: camp.ScheduledSend,
		Status:        camp.Status(),
		CreatedAt:     camp.CreatedAt,
		UpdatedAt:     camp.UpdatedAt,
		List:          list,
	}
	resp.Stats.Total = stats.Total
	resp.Stats.Pending = stats.Pending
	resp.Stats.Sent = stats.Sent
	resp.Stats.Failed = stats.Failed

	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) UpdateCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req campaign.UpdateCampaignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.UpdateCampaign(ctx, id, req.Name, req.Subject, req.SendFromName, req.ListID); err != nil {
		writeError(c, "update_campaign_error", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetEditorInfo(c *gin.Context) {
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
	c.JSON(http.StatusOK, campaign.EditorInfo{
		ID:           camp.ID,
		Name:         camp.Name,
		Subject:      camp.Subject,
		SendFromName: camp.SendFromName,
		Blocks:       camp.Blocks,
		GlobalStyles: camp.GlobalStyles,
	})
}

// UpdateCampaignBlocks stores a serialized block list as sent by a client
// that edits locally.
func (h *Handlers) UpdateCampaignBlocks(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req campaign.UpdateBlocksReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	list, ok := blocks.Decode(req.Blocks)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "blocks must be a JSON list"})
		return
	}
	if err := blocks.CheckIDs(list); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	styles := req.GlobalStyles
	if styles == "" {
		styles = "{}"
	}
	if _, ok := blocks.DecodeGlobalStyles(styles); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "global_styles must be a JSON object"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.UpdateCampaignBlocks(ctx, id, req.Blocks, styles); err != nil {
		writeError(c, "update_blocks_error", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DeleteCampaigns(c *gin.Context) {
	var req campaign.DeleteCampaignsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deleted, err := h.Store.DeleteCampaigns(ctx, req.IDs)
	if err != nil {
		writeError(c, "delete_campaigns_error", err)
		return
	}
	// Sessions on campaigns that were kept (sent or scheduled) stay open.
	for _, id := range deleted {
		h.Sessions.CloseCampaign(id)
	}
	metrics.EditorSessionsOpen.Set(float64(h.Sessions.Len()))
	reqLog(c).Infow("campaigns_deleted", "requested", len(req.IDs), "deleted", len(deleted))
	c.JSON(http.StatusOK, campaign.DeleteCampaignsResp{Deleted: int64(len(deleted))})
}

func (h *Handlers) ScheduleCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req campaign.ScheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ScheduledSend == nil && !req.Unschedule {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_send or unschedule is required"})
		return
	}
	at := req.ScheduledSend
	if req.Unschedule {
		at = nil
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.ScheduleCampaign(ctx, id, at); err != nil {
		writeError(c, "schedule_campaign_error", err)
		return
	}
	reqLog(c).Infow("campaign_scheduled", "id", id, "scheduled_send", at)
	c.Status(http.StatusNoContent)
}

// CampaignHTML renders the stored campaign, personalized for contact_id
// when given.
func (h *Handlers) CampaignHTML(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	camp, err := h.Store.GetCampaign(ctx, id)
	if err != nil {
		writeError(c, "get_campaign_error", err)
		return
	}
	list, _ := blocks.Decode(camp.Blocks)
	styles, _ := blocks.DecodeGlobalStyles(camp.GlobalStyles)
	out, ok := h.render(c, ctx, export.Document{Subject: camp.Subject, Blocks: list, Styles: merged(styles)})
	if !ok {
		return
	}

	markup := out.HTML
	if raw := c.Query("contact_id"); raw != "" {
		cid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cid <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact_id"})
			return
		}
		contact, err := h.Store.GetContact(ctx, cid)
		if err != nil {
			writeError(c, "get_contact_error", err)
			return
		}
		markup, err = h.Export.Personalize(markup, export.Recipient{
			Email: contact.Email, FirstName: contact.FirstName, LastName: contact.LastName,
		}, camp.Name)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(markup))
}

func (h *Handlers) render(c *gin.Context, ctx context.Context, doc export.Document) (export.Rendered, bool) {
	out, err := h.Export.Render(ctx, doc)
	metrics.Export(err)
	if err != nil {
		reqLog(c).Errorw("export_render_error", "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "render failed"})
		return out, false
	}
	return out, true
}

func merged(styles blocks.GlobalStyles) blocks.GlobalStyles {
	out := blocks.DefaultGlobalStyles()
	for k, v := range styles {
		out[k] = v
	}
	return out
}

func (h *Handlers) SentCount(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Store.CountSentCampaigns(ctx)
	if err != nil {
		writeError(c, "count_sent_error", err)
		return
	}
	c.JSON(http.StatusOK, campaign.SentCountResp{Count: n})
}
