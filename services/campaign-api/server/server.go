package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/blockmail/docs"
	"github.com/Mutter0815/blockmail/pkg/metrics"
)

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/docs", serveSwagger)
	r.GET("/docs/campaign-api/openapi.yaml", serveOpenAPI)

	r.GET("/campaigns", h.ListCampaigns)
	r.POST("/campaigns", h.CreateCampaign)
	r.DELETE("/campaigns", h.DeleteCampaigns)
	r.GET("/campaigns/:id", h.GetCampaign)
	r.PUT("/campaigns/:id", h.UpdateCampaign)
	r.PUT("/campaigns/:id/blocks", h.UpdateCampaignBlocks)
	r.GET("/campaigns/:id/editor", h.GetEditorInfo)
	r.POST("/campaigns/:id/editor/sessions", h.OpenEditorSession)
	r.POST("/campaigns/:id/schedule", h.ScheduleCampaign)
	r.GET("/campaigns/:id/html", h.CampaignHTML)
	r.GET("/stats/campaigns/sent", h.SentCount)

	s := r.Group("/editor/sessions/:sid")
	s.GET("", h.GetEditorSession)
	s.DELETE("", h.CloseEditorSession)
	s.POST("/drag/start", h.DragStart)
	s.POST("/drag/cancel", h.DragCancel)
	s.POST("/drag/end", h.DragEnd)
	s.POST("/blocks/:blockId/edit", h.BeginEdit)
	s.DELETE("/blocks/:blockId", h.DeleteBlock)
	s.PATCH("/edit", h.UpdateAttributes)
	s.POST("/edit/cancel", h.CancelEdit)
	s.POST("/edit/save", h.SaveEdit)
	s.PUT("/styles", h.SetGlobalStyles)
	s.POST("/save", h.SaveEditorSession)
	s.GET("/html", h.EditorSessionHTML)

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

func serveSwagger(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", docs.CampaignSwaggerHTML)
}

func serveOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", docs.CampaignOpenAPI)
}
