package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"staffattend/internal/apperrors"
	"staffattend/internal/auth"
	"staffattend/internal/httpmiddleware"
	"staffattend/internal/mutation"
)

const maxSyncBatch = 500

// SyncRequest is a batch of buffered writes from a capture station.
type SyncRequest struct {
	Mutations []mutation.Mutation `json:"mutations"`
}

// SyncResponse carries one result per mutation, in request order.
type SyncResponse struct {
	Results []mutation.Result `json:"results"`
}

func (h *Handler) sync(c *gin.Context) {
	var req SyncRequest
	if !bind(c, &req) {
		return
	}
	if len(req.Mutations) > maxSyncBatch {
		httpmiddleware.Error(c, apperrors.Validation("too many mutations in one batch"))
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	caller := mutation.Caller{Role: claims.Role, DeviceID: auth.DeviceID(c)}
	results := h.Applier.ApplyAll(c.Request.Context(), caller, req.Mutations)
	c.JSON(http.StatusOK, SyncResponse{Results: results})
}
