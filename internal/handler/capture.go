package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"capture-relay-api/internal/imaging"
	"capture-relay-api/internal/model"
	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/service"
	"capture-relay-api/pkg/apierror"
	"capture-relay-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// CaptureHandler handles capture ingestion and list HTTP requests.
type CaptureHandler struct {
	captureService *service.CaptureService
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(captureService *service.CaptureService) *CaptureHandler {
	return &CaptureHandler{captureService: captureService}
}

// uploadRequest is the mobile/desktop upload payload. ImageData is
// base64, optionally with a data-URL prefix.
type uploadRequest struct {
	ImageData  string `json:"image_data"`
	ClientHash string `json:"client_hash,omitempty"`
	Metadata   struct {
		Side        string `json:"side,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"metadata"`
}

func decodeImageData(raw string) ([]byte, error) {
	if idx := strings.Index(raw, ";base64,"); idx >= 0 && strings.HasPrefix(raw, "data:image/") {
		raw = raw[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(raw)
}

// Upload handles POST /api/v1/accounts/{account_id}/images
func (h *CaptureHandler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if req.ImageData == "" {
		response.Error(w, apierror.BadRequest("image_data is required"))
		return
	}
	if side := req.Metadata.Side; side != "" && side != "R" && side != "L" {
		response.Error(w, apierror.BadRequest("side must be R or L"))
		return
	}

	data, err := decodeImageData(req.ImageData)
	if err != nil {
		response.Error(w, apierror.BadRequest("image_data is not valid base64"))
		return
	}

	result, err := h.captureService.Ingest(r.Context(), service.IngestInput{
		AccountID:   accountID,
		Data:        data,
		ClientHash:  req.ClientHash,
		Side:        req.Metadata.Side,
		Description: req.Metadata.Description,
	})
	if err != nil {
		response.Error(w, mapIngestError(err))
		return
	}

	response.Created(w, map[string]interface{}{
		"image_id":     result.Record.ImageID,
		"content_key":  result.Record.ContentKey,
		"filename":     result.Record.Filename(),
		"size_bytes":   result.Record.SizeBytes,
		"width":        result.Record.Width,
		"height":       result.Record.Height,
		"expires_at":   result.Record.ExpiresAt,
		"upload_count": result.UploadCount,
		"limit":        result.Limit,
	})
}

func mapIngestError(err error) *apierror.Error {
	var quotaErr *service.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		return apierror.QuotaExceeded("").WithMeta(map[string]interface{}{
			"upload_count":       quotaErr.UploadCount,
			"limit":              quotaErr.Limit,
			"show_upgrade_modal": true,
		})
	case errors.Is(err, imaging.ErrDecode):
		return apierror.UnprocessableImage("")
	case errors.Is(err, service.ErrStorageWrite):
		return apierror.ServiceUnavailable("storage temporarily unavailable, retry the upload")
	case errors.Is(err, repository.ErrAccountNotFound):
		return apierror.NotFound("account not found")
	default:
		return apierror.InternalError("")
	}
}

type imageView struct {
	ImageID     string `json:"image_id"`
	ContentKey  string `json:"content_key"`
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Side        string `json:"side,omitempty"`
	Description string `json:"description,omitempty"`
	ClientHash  string `json:"client_hash,omitempty"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at"`
}

func toImageView(record *model.UploadRecord) imageView {
	return imageView{
		ImageID:     record.ImageID,
		ContentKey:  record.ContentKey,
		Filename:    record.Filename(),
		SizeBytes:   record.SizeBytes,
		Width:       record.Width,
		Height:      record.Height,
		Side:        record.Side,
		Description: record.Description,
		ClientHash:  record.ClientHash,
		CreatedAt:   record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:   record.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List handles GET /api/v1/accounts/{account_id}/images
func (h *CaptureHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	records, err := h.captureService.List(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, apierror.NotFound("account not found"))
			return
		}
		response.Error(w, apierror.InternalError(""))
		return
	}

	views := make([]imageView, 0, len(records))
	for i := range records {
		views = append(views, toImageView(&records[i]))
	}

	response.OK(w, map[string]interface{}{
		"images": views,
		"count":  len(views),
	})
}

// Content handles GET /api/v1/accounts/{account_id}/images/{image_id}/content
func (h *CaptureHandler) Content(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	imageID := chi.URLParam(r, "image_id")

	data, contentType, err := h.captureService.GetContent(r.Context(), accountID, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			response.Error(w, apierror.NotFound("image not found"))
			return
		}
		response.Error(w, apierror.InternalError(""))
		return
	}

	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Usage handles GET /api/v1/accounts/{account_id}/usage
func (h *CaptureHandler) Usage(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	status, err := h.captureService.Usage(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, apierror.NotFound("account not found"))
			return
		}
		response.Error(w, apierror.InternalError(""))
		return
	}
	response.OK(w, status)
}

// GraceUnlock handles POST /api/v1/accounts/{account_id}/grace-unlock
func (h *CaptureHandler) GraceUnlock(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	status, err := h.captureService.GraceUnlock(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			response.Error(w, apierror.NotFound("account not found"))
		case errors.Is(err, repository.ErrGraceUnlocksExhausted):
			response.Error(w, apierror.Conflict("no grace unlocks left this period"))
		default:
			response.Error(w, apierror.InternalError(""))
		}
		return
	}
	response.OK(w, status)
}
