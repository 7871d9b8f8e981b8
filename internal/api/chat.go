package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/explain"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if !h.bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.fail(c, fmt.Errorf("%w: message is required", entity.ErrInvalid))
		return
	}

	reply, err := h.chat.Reply(c.Request.Context(), req.Message)
	if errors.Is(err, explain.ErrDisabled) {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.log.Warn("Chat provider failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat provider unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply})
}
