package session

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rxlens/rxlens-api/internal/extractor"
	"github.com/rxlens/rxlens-api/internal/handler"
	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/service/prescription"
	apperrors "github.com/rxlens/rxlens-api/pkg/errors"
)

// Handler exposes the accumulation session lifecycle: create a
// session, feed it images one at a time, read or reset the
// accumulated record, and share the result.
type Handler struct {
	service       *prescription.Service
	maxUploadSize int64
}

func NewHandler(service *prescription.Service, maxUploadSize int64) *Handler {
	return &Handler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.POST("/:id/images", h.SubmitImage)
		sessions.GET("/:id/jobs/:jobID", h.GetJob)
		sessions.POST("/:id/reset", h.ResetSession)
		sessions.POST("/:id/share", h.ShareRecord)
	}
}

type sessionResponse struct {
	SessionID string                   `json:"session_id"`
	Record    model.PrescriptionRecord `json:"record"`
}

type jobResponse struct {
	JobID     string  `json:"job_id"`
	SessionID string  `json:"session_id"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	LastError *string `json:"last_error,omitempty"`
}

func newJobResponse(job *model.ExtractionJob) jobResponse {
	return jobResponse{
		JobID:     job.ID.String(),
		SessionID: job.SessionID.String(),
		Status:    job.Status,
		Attempts:  job.Attempts,
		LastError: job.LastError,
	}
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(sessionResponse{
		SessionID: sess.ID.String(),
		Record:    sess.Record,
	}))
}

func (h *Handler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	sess, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessionResponse{
		SessionID: sess.ID.String(),
		Record:    sess.Record,
	}))
}

// SubmitImage accepts one prescription image, as a multipart upload
// (field "image") or as JSON carrying an image URL. With ?async=true
// the image is queued for the worker and a job reference is returned
// instead of the merged record.
func (h *Handler) SubmitImage(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	img, err := h.readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if c.Query("async") == "true" {
		job, err := h.service.EnqueueImage(c.Request.Context(), id, img)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, handler.NewSuccessResponse(newJobResponse(job)))
		return
	}

	record, err := h.service.ProcessImage(c.Request.Context(), id, img)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessionResponse{
		SessionID: id.String(),
		Record:    record,
	}))
}

func (h *Handler) GetJob(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(c.Param("jobID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid job ID"))
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id, jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(newJobResponse(job)))
}

func (h *Handler) ResetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	sess, err := h.service.ResetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessionResponse{
		SessionID: sess.ID.String(),
		Record:    sess.Record,
	}))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("session deleted"))
}

func (h *Handler) ShareRecord(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req model.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.ShareRecord(c.Request.Context(), id, req.Email); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("record shared"))
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return uuid.Nil, false
	}
	return id, true
}

// Image formats the extraction model accepts.
var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".bmp":  true,
}

func allowedImageName(name string) bool {
	return allowedImageExts[strings.ToLower(filepath.Ext(name))]
}

func (h *Handler) readImage(c *gin.Context) (extractor.Image, error) {
	contentType := c.GetHeader("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := c.Request.FormFile("image")
		if err != nil {
			return extractor.Image{}, err
		}
		defer file.Close()

		if !allowedImageName(header.Filename) {
			return extractor.Image{}, errUnsupportedType(header.Filename)
		}
		if header.Size > h.maxUploadSize {
			return extractor.Image{}, errTooLarge(h.maxUploadSize)
		}

		data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
		if err != nil {
			return extractor.Image{}, err
		}
		if int64(len(data)) > h.maxUploadSize {
			return extractor.Image{}, errTooLarge(h.maxUploadSize)
		}
		return extractor.Image{Data: data}, nil
	}

	var req model.SubmitImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return extractor.Image{}, err
	}

	// Extension-less URLs (signed URLs and the like) pass; the model
	// fetch fails on non-images anyway. A URL that names a type must
	// name an image type.
	if u, err := url.Parse(req.ImageURL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" && !allowedImageExts[strings.ToLower(ext)] {
			return extractor.Image{}, errUnsupportedType(u.Path)
		}
	}
	return extractor.Image{URL: req.ImageURL}, nil
}

func errTooLarge(limit int64) error {
	return fmt.Errorf("image exceeds maximum upload size of %d bytes", limit)
}

func errUnsupportedType(name string) error {
	return fmt.Errorf("unsupported image type %q: allowed extensions are jpg, jpeg, png, tiff, bmp", filepath.Ext(name))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus(), handler.NewErrorResponse(appErr.Message))
		return
	}
	c.Error(err)
	c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("internal server error"))
}
