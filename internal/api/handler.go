package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/explain"
	"github.com/Brownie44l1/skinlens/internal/service"
)

const (
	userKey  = "user"
	tokenKey = "token"
)

type Handler struct {
	accounts      *service.AccountService
	posts         *service.PostService
	uploads       *service.UploadService
	escalations   *service.EscalationService
	chat          *service.ChatService
	log           *zap.Logger
	maxUploadSize int64
}

type Services struct {
	Accounts    *service.AccountService
	Posts       *service.PostService
	Uploads     *service.UploadService
	Escalations *service.EscalationService
	Chat        *service.ChatService
}

func NewHandler(s Services, log *zap.Logger, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	return &Handler{
		accounts:      s.Accounts,
		posts:         s.Posts,
		uploads:       s.Uploads,
		escalations:   s.Escalations,
		chat:          s.Chat,
		log:           log,
		maxUploadSize: maxUploadSize,
	}
}

func bearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireAuth resolves the bearer token and stores the caller in the context.
func (h *Handler) RequireAuth(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	user, err := h.accounts.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	c.Set(userKey, user)
	c.Set(tokenKey, token)
	c.Next()
}

func currentUser(c *gin.Context) *entity.User {
	return c.MustGet(userKey).(*entity.User)
}

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, entity.ErrInvalid):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, entity.ErrUnauthorized):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, entity.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, entity.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, entity.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, explain.ErrDisabled):
		status, message = http.StatusServiceUnavailable, err.Error()
	default:
		h.log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", entity.ErrInvalid, err))
		return false
	}
	return true
}

func parseID(raw string) (int64, error) {
	id, err := json.Number(raw).Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", entity.ErrInvalid, raw)
	}
	return id, nil
}

// pathID reads the :id route parameter. A malformed id names no resource,
// so it is reported as not found.
func pathID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := parseID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", entity.ErrNotFound, c.FullPath(), err)
	}
	return id, nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
