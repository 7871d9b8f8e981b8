package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/service"
)

type escalationRequest struct {
	Image         json.Number `json:"image"`
	Reason        string      `json:"reason"`
	ContactNumber string      `json:"contact_number"`
}

type statusRequest struct {
	Status entity.EscalationStatus `json:"status"`
}

func (h *Handler) CreateEscalation(c *gin.Context) {
	var req escalationRequest
	if !h.bind(c, &req) {
		return
	}
	imageID, err := parseID(req.Image.String())
	if err != nil {
		h.fail(c, fmt.Errorf("%w: image is required", entity.ErrInvalid))
		return
	}

	escalation, err := h.escalations.Create(c.Request.Context(), currentUser(c), service.EscalationInput{
		ImageID:       imageID,
		Reason:        req.Reason,
		ContactNumber: req.ContactNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info("Escalation submitted",
		zap.Int64("escalation_id", escalation.ID),
		zap.Int64("image_id", escalation.ImageID))
	c.JSON(http.StatusCreated, newEscalationView(escalation))
}

func (h *Handler) ListEscalations(c *gin.Context) {
	escalations, err := h.escalations.List(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]escalationView, 0, len(escalations))
	for i := range escalations {
		views = append(views, newEscalationView(&escalations[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetEscalation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	detail, err := h.escalations.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newEscalationDetailView(detail))
}

func (h *Handler) UpdateEscalation(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req statusRequest
	if !h.bind(c, &req) {
		return
	}

	reviewer := currentUser(c)
	escalation, err := h.escalations.UpdateStatus(c.Request.Context(), reviewer, id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info("Escalation reviewed",
		zap.Int64("escalation_id", id),
		zap.String("status", string(escalation.Status)),
		zap.Int64("reviewer_id", reviewer.ID))
	c.JSON(http.StatusOK, newEscalationView(escalation))
}
