package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/service"
)

func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, fmt.Errorf("%w: upload exceeds %d bytes", entity.ErrInvalid, h.maxUploadSize))
			return
		}
		h.fail(c, fmt.Errorf("%w: image file is required", entity.ErrInvalid))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	owner := currentUser(c)
	upload, err := h.uploads.Upload(c.Request.Context(), owner, service.UploadInput{
		Filename: fileHeader.Filename,
		Data:     data,
		Metadata: []byte(c.PostForm("metadata")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info("Image uploaded",
		zap.Int64("upload_id", upload.ID),
		zap.Int64("user_id", owner.ID),
		zap.Bool("predicted", upload.HasPrediction()))
	c.JSON(http.StatusCreated, newUploadView(upload))
}

func (h *Handler) ListUploads(c *gin.Context) {
	uploads, err := h.uploads.List(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]uploadView, 0, len(uploads))
	for i := range uploads {
		views = append(views, newUploadView(&uploads[i]))
	}
	c.JSON(http.StatusOK, views)
}
