package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MangalNathYadav/aakash-lm-student/internal/middleware"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/response"
)

type studentViews interface {
	Student(psid string) (models.StudentSnapshot, error)
	Prediction(psid string) (models.PredictionSnapshot, error)
	Graphs(psid string) (models.StudentGraphs, error)
}

// StudentHandler serves the published per-student views.
type StudentHandler struct {
	views studentViews
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(views studentViews) *StudentHandler {
	return &StudentHandler{views: views}
}

func psidParam(c *gin.Context) (string, bool) {
	psid := strings.TrimSpace(c.Param("psid"))
	if psid == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "psid is required"))
		return "", false
	}
	return psid, true
}

// Snapshot godoc
// @Summary Student analytics snapshot
// @Tags Students
// @Produce json
// @Param psid path string true "Student PSID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{psid} [get]
func (h *StudentHandler) Snapshot(c *gin.Context) {
	psid, ok := psidParam(c)
	if !ok {
		return
	}
	start := time.Now()
	snapshot, err := h.views.Student(psid)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetPublishedVersion(c, snapshot.Meta.PublishedVersion)
	response.JSON(c, http.StatusOK, snapshot, nil, responseMeta(c, start))
}

// Prediction godoc
// @Summary Student score prediction
// @Tags Students
// @Produce json
// @Param psid path string true "Student PSID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{psid}/prediction [get]
func (h *StudentHandler) Prediction(c *gin.Context) {
	psid, ok := psidParam(c)
	if !ok {
		return
	}
	start := time.Now()
	prediction, err := h.views.Prediction(psid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prediction, nil, responseMeta(c, start))
}

// Graphs godoc
// @Summary Student trend graphs and progress delta
// @Tags Students
// @Produce json
// @Param psid path string true "Student PSID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{psid}/graphs [get]
func (h *StudentHandler) Graphs(c *gin.Context) {
	psid, ok := psidParam(c)
	if !ok {
		return
	}
	start := time.Now()
	graphs, err := h.views.Graphs(psid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graphs, nil, responseMeta(c, start))
}
