package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"council/internal/reason"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps a reason-coded error onto an HTTP status and surfaces the code
// in the response meta so callers can tell rejection classes apart.
func Fail(c *gin.Context, err error) {
	var re *reason.Error
	if !errors.As(err, &re) {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	status := http.StatusInternalServerError
	switch re.Code {
	case reason.CodeValidationFailed, reason.CodeInactiveBankroll:
		status = http.StatusUnprocessableEntity
	case reason.CodeInsufficientData, reason.CodeStaleOutcome:
		status = http.StatusConflict
	case reason.CodeConstraintInfeasible, reason.CodeSettlementConflict:
		status = http.StatusInternalServerError
	}
	Error(c, status, re.Message, map[string]any{"reason": re.Code})
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func strQueryPtr(c *gin.Context, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

func boolQueryPtr(c *gin.Context, key string) *bool {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

func paginationMeta(limit, offset, count int) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return map[string]any{
		"limit":  limit,
		"offset": offset,
		"count":  count,
	}
}
