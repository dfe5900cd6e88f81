package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/middleware"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/service"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/export"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/response"
)

const maxPageSize = 500

type leaderboardReader interface {
	Leaderboard(ctx context.Context, method models.RankingMethod, batch string) (models.LeaderboardSnapshot, bool, error)
}

type exportLinker interface {
	Link(method models.RankingMethod, format export.Format) (dto.ExportLink, error)
	Open(token string) (*service.ExportFile, error)
}

// LeaderboardHandler serves published leaderboards and their exports.
type LeaderboardHandler struct {
	boards  leaderboardReader
	exports exportLinker
}

// NewLeaderboardHandler constructs the handler. exports may be nil when
// export files are disabled.
func NewLeaderboardHandler(boards leaderboardReader, exports exportLinker) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, exports: exports}
}

func methodParam(c *gin.Context) (models.RankingMethod, bool) {
	method, err := models.ParseRankingMethod(strings.TrimSpace(c.Param("method")))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return "", false
	}
	return method, true
}

// Get godoc
// @Summary Published leaderboard with masked PSIDs
// @Tags Leaderboards
// @Produce json
// @Param method path string true "latest_scores, overall_average, consistency_index or subject_<name>"
// @Param batch query string false "Restrict to one batch"
// @Param page query int false "Page number, starting at 1"
// @Param page_size query int false "Entries per page; omit for the whole board"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /leaderboards/{method} [get]
func (h *LeaderboardHandler) Get(c *gin.Context) {
	h.serve(c, true)
}

// Private godoc
// @Summary Leaderboard with full PSIDs
// @Tags Leaderboards
// @Produce json
// @Param method path string true "Ranking method"
// @Param batch query string false "Restrict to one batch"
// @Param page query int false "Page number (1-based)"
// @Param page_size query int false "Entries per page; omit for the whole board"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /leaderboards/{method}/private [get]
func (h *LeaderboardHandler) Private(c *gin.Context) {
	h.serve(c, false)
}

func (h *LeaderboardHandler) serve(c *gin.Context, masked bool) {
	method, ok := methodParam(c)
	if !ok {
		return
	}
	var query dto.LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.Page < 0 || query.PageSize < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid leaderboard query"))
		return
	}

	start := time.Now()
	board, hit, err := h.boards.Leaderboard(c.Request.Context(), method, strings.TrimSpace(query.Batch))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	middleware.SetPublishedVersion(c, board.Version)

	pagination := paginate(&board, query.Page, query.PageSize)
	if masked {
		board = board.Public()
	}
	response.JSON(c, http.StatusOK, board, pagination, responseMeta(c, start))
}

// paginate trims the board to the requested window. A zero page size keeps
// every entry and returns no pagination block.
func paginate(board *models.LeaderboardSnapshot, page, size int) *response.Pagination {
	if size <= 0 {
		return nil
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	total := len(board.Entries)
	from := total
	if page-1 <= total/size {
		from = (page - 1) * size
		if from > total {
			from = total
		}
	}
	to := from + size
	if to > total {
		to = total
	}
	board.Entries = board.Entries[from:to]
	return &response.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// Export godoc
// @Summary Signed download link for a leaderboard export
// @Tags Leaderboards
// @Produce json
// @Param method path string true "Ranking method"
// @Param format query string false "csv, pdf or xlsx (default csv)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /leaderboards/{method}/export [get]
func (h *LeaderboardHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	method, ok := methodParam(c)
	if !ok {
		return
	}
	raw := strings.TrimSpace(c.Query("format"))
	if raw == "" {
		raw = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	start := time.Now()
	link, err := h.exports.Link(method, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetPublishedVersion(c, link.Version)
	response.JSON(c, http.StatusOK, link, nil, responseMeta(c, start))
}

// Download godoc
// @Summary Download a leaderboard export
// @Tags Leaderboards
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *LeaderboardHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.exports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()

	info, err := file.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), file.ContentType, file.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.Name),
		"Cache-Control":       "no-store",
	})
}
