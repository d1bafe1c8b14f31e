package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"council/internal/repository"
	"council/internal/service"
)

// GameHandler exposes the per-game pipeline: ground-truth ingestion, the
// on-demand consensus run and the stored platform outputs.
type GameHandler struct {
	Repo      repository.Repository
	Outcome   *service.OutcomeService
	Consensus *service.ConsensusService
}

func (h *GameHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/games")
	g.POST("/:game_id/truth", h.submitTruth)
	g.POST("/:game_id/consensus", h.runConsensus)
	g.GET("/:game_id/consensus", h.getConsensus)
	g.GET("/:game_id/seats", h.listSeats)
	g.GET("/:game_id/outcomes", h.listOutcomes)
}

func (h *GameHandler) submitTruth(c *gin.Context) {
	if h.Outcome == nil {
		Error(c, http.StatusInternalServerError, "outcome service unavailable", nil)
		return
	}
	var req service.TruthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req.GameID = strings.TrimSpace(c.Param("game_id"))
	if err := h.Outcome.SubmitTruth(c.Request.Context(), req); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"game_id": req.GameID}, nil)
}

func (h *GameHandler) runConsensus(c *gin.Context) {
	if h.Consensus == nil {
		Error(c, http.StatusInternalServerError, "consensus service unavailable", nil)
		return
	}
	gameID := strings.TrimSpace(c.Param("game_id"))
	if err := h.Consensus.RunGame(c.Request.Context(), gameID); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"game_id": gameID}, nil)
}

func (h *GameHandler) getConsensus(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	gameID := strings.TrimSpace(c.Param("game_id"))
	outputs, err := h.Repo.ListConsensusByGame(c.Request.Context(), gameID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	record, err := h.Repo.GetProjectionRecord(c.Request.Context(), gameID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"outputs": outputs, "projection": record}, nil)
}

func (h *GameHandler) listSeats(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	gameID := strings.TrimSpace(c.Param("game_id"))
	seats, err := h.Repo.ListSeatsByGame(c.Request.Context(), gameID, strQueryPtr(c, "family"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, seats, nil)
}

func (h *GameHandler) listOutcomes(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	gameID := strings.TrimSpace(c.Param("game_id"))
	outcomes, err := h.Repo.ListOutcomesByGame(c.Request.Context(), gameID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, outcomes, nil)
}
