package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"council/internal/repository"
	"council/internal/service"
)

type BundleHandler struct {
	Ingest *service.IngestService
	Repo   repository.Repository
}

func (h *BundleHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.POST("/bundles", h.submit)
	g.GET("/assertions", h.listAssertions)
	g.GET("/bets", h.listBets)
}

func (h *BundleHandler) submit(c *gin.Context) {
	if h.Ingest == nil {
		Error(c, http.StatusInternalServerError, "ingest unavailable", nil)
		return
	}
	var req service.BundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	result, err := h.Ingest.SubmitBundle(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *BundleHandler) listAssertions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListAssertionsParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		ExpertID: strQueryPtr(c, "expert_id"),
		GameID:   strQueryPtr(c, "game_id"),
		Category: strQueryPtr(c, "category"),
		Graded:   boolQueryPtr(c, "graded"),
	}
	items, err := h.Repo.ListAssertions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, len(items)))
}

func (h *BundleHandler) listBets(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListBetsParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		ExpertID: strQueryPtr(c, "expert_id"),
		GameID:   strQueryPtr(c, "game_id"),
		Season:   strQueryPtr(c, "season"),
		Settled:  boolQueryPtr(c, "settled"),
	}
	if v := strings.TrimSpace(c.Query("outcome")); v != "" {
		params.Outcome = &v
	}
	items, err := h.Repo.ListBets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, len(items)))
}
