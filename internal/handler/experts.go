package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"council/internal/repository"
)

// ExpertHandler exposes the per-expert read surfaces: bankrolls, outcome
// history, calibration timeline and factor-weight timeline.
type ExpertHandler struct {
	Repo repository.Repository
}

func (h *ExpertHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/bankrolls", h.listBankrolls)
	g.GET("/experts/:expert_id/outcomes", h.listOutcomes)
	g.GET("/experts/:expert_id/calibration", h.calibrationHistory)
	g.GET("/experts/:expert_id/factors", h.factorWeights)
}

func (h *ExpertHandler) listBankrolls(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListBankrollsParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		Season:   strQueryPtr(c, "season"),
		IsActive: boolQueryPtr(c, "is_active"),
	}
	items, err := h.Repo.ListBankrolls(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, len(items)))
}

func (h *ExpertHandler) listOutcomes(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	expertID := strings.TrimSpace(c.Param("expert_id"))
	params := repository.ListOutcomesParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		ExpertID: &expertID,
		Category: strQueryPtr(c, "category"),
	}
	items, err := h.Repo.ListOutcomes(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, len(items)))
}

func (h *ExpertHandler) calibrationHistory(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	expertID := strings.TrimSpace(c.Param("expert_id"))
	category := strings.TrimSpace(c.Query("category"))
	if category == "" {
		Error(c, http.StatusBadRequest, "category query parameter is required", nil)
		return
	}
	items, err := h.Repo.ListCalibrationHistory(c.Request.Context(), expertID, category)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *ExpertHandler) factorWeights(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	expertID := strings.TrimSpace(c.Param("expert_id"))
	params := repository.ListFactorWeightsParams{
		Limit:      intQuery(c, "limit", 200),
		Offset:     intQuery(c, "offset", 0),
		ExpertID:   &expertID,
		Category:   strQueryPtr(c, "category"),
		Factor:     strQueryPtr(c, "factor"),
		ActiveOnly: c.Query("active") == "true",
	}
	items, err := h.Repo.ListFactorWeights(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, len(items)))
}
