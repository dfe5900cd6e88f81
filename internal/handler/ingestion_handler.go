package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/importer"
	"github.com/MangalNathYadav/aakash-lm-student/internal/middleware"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/response"
)

const defaultMaxUpload = 10 << 20

type ingestionService interface {
	Ingest(ctx context.Context, req dto.IngestionRequest) (*models.IngestionRun, error)
	RunStatus(ctx context.Context, runID string) (*models.IngestionRun, error)
	Rebuild(ctx context.Context) (int64, error)
}

// IngestionHandler accepts result documents from operators.
type IngestionHandler struct {
	service   ingestionService
	logger    *zap.Logger
	maxUpload int64
}

// NewIngestionHandler constructs the handler. maxUpload caps sheet uploads in bytes.
func NewIngestionHandler(service ingestionService, logger *zap.Logger, maxUpload int64) *IngestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &IngestionHandler{service: service, logger: logger, maxUpload: maxUpload}
}

// Create godoc
// @Summary Ingest one result document
// @Description Accepts parsed records as JSON, or a multipart upload with a "sheet" file (xlsx or csv) plus test metadata form fields.
// @Tags Ingestion
// @Accept json
// @Accept mpfd
// @Produce json
// @Param payload body dto.IngestionRequest false "Parsed records"
// @Param sheet formData file false "Result sheet"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/ingestions [post]
func (h *IngestionHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()

	var (
		req dto.IngestionRequest
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = h.bindSheet(c)
	} else {
		err = c.ShouldBindJSON(&req)
		if err != nil {
			err = appErrors.Clone(appErrors.ErrValidation, "invalid ingestion payload")
		}
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.Source == "" {
		if id := operatorID(c); id != "" {
			req.Source = "api:" + id
		}
	}

	run, err := h.service.Ingest(c.Request.Context(), req)
	if err != nil {
		if run != nil {
			h.logger.Warn("ingestion rejected",
				zap.String("run_id", run.RunID),
				zap.String("failed_stage", string(run.FailedStage)),
				zap.Error(err))
			response.ErrorWithData(c, err, run)
			return
		}
		response.Error(c, err)
		return
	}
	middleware.SetPublishedVersion(c, run.PublishedVersion)
	response.JSON(c, http.StatusOK, run, nil, responseMeta(c, start))
}

func (h *IngestionHandler) bindSheet(c *gin.Context) (dto.IngestionRequest, error) {
	var req dto.IngestionRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	if err := c.ShouldBind(&req); err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "invalid ingestion form")
	}
	header, err := c.FormFile("sheet")
	if err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "sheet file is required")
	}
	f, err := header.Open()
	if err != nil {
		return req, appErrors.Clone(appErrors.ErrValidation, "sheet file is unreadable")
	}
	defer f.Close()

	parsed, err := importer.ParseFile(f, header.Filename)
	if err != nil {
		return req, appErrors.Clonef(appErrors.ErrMalformedRecord, "%s: %v", header.Filename, err)
	}
	h.logger.Debug("sheet parsed",
		zap.String("file", header.Filename),
		zap.String("sheet", parsed.Sheet),
		zap.Int("records", len(parsed.Records)),
		zap.Int("skipped", len(parsed.Skipped)))

	req.Records = parsed.Records
	req.Skipped = parsed.Skipped
	if req.Source == "" {
		req.Source = header.Filename
	}
	return req, nil
}

// Status godoc
// @Summary Ingestion run status
// @Tags Ingestion
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/ingestions/{runId} [get]
func (h *IngestionHandler) Status(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	runID := strings.TrimSpace(c.Param("runId"))
	if runID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "runId is required"))
		return
	}
	start := time.Now()
	run, err := h.service.RunStatus(c.Request.Context(), runID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil, responseMeta(c, start))
}

// Rebuild godoc
// @Summary Recompute and republish every view from the store
// @Tags Ingestion
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/rebuild [post]
func (h *IngestionHandler) Rebuild(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	version, err := h.service.Rebuild(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetPublishedVersion(c, version)
	response.JSON(c, http.StatusOK, gin.H{"published_version": version}, nil, responseMeta(c, start))
}
