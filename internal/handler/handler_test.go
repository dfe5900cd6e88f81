package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MangalNathYadav/aakash-lm-student/internal/dto"
	"github.com/MangalNathYadav/aakash-lm-student/internal/models"
	"github.com/MangalNathYadav/aakash-lm-student/internal/service"
	appErrors "github.com/MangalNathYadav/aakash-lm-student/pkg/errors"
	"github.com/MangalNathYadav/aakash-lm-student/pkg/export"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

type fakeIngestion struct {
	lastReq dto.IngestionRequest
	run     *models.IngestionRun
	err     error
	version int64
}

func (f *fakeIngestion) Ingest(_ context.Context, req dto.IngestionRequest) (*models.IngestionRun, error) {
	f.lastReq = req
	return f.run, f.err
}

func (f *fakeIngestion) RunStatus(_ context.Context, runID string) (*models.IngestionRun, error) {
	if f.run == nil || f.run.RunID != runID {
		return nil, appErrors.ErrNotFound
	}
	return f.run, nil
}

func (f *fakeIngestion) Rebuild(context.Context) (int64, error) {
	return f.version, f.err
}

func TestIngestionHandlerCreateJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeIngestion{run: &models.IngestionRun{RunID: "run-1", Status: models.OutcomeSuccess, PublishedVersion: 3}}
	handler := NewIngestionHandler(srv, nil, 0)

	body := `{"test_id":"FT-01","test_type":"FT","test_date":"2024-05-01","max_marks":720,"records":[{"psid":"P1","subjects":{"phy":120}}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingestions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decode(t, rec)
	assert.Equal(t, "run-1", envelope.Data["run_id"])
	assert.EqualValues(t, 3, envelope.Meta["published_version"])
	assert.Equal(t, "FT-01", srv.lastReq.TestID)
	require.Len(t, srv.lastReq.Records, 1)
	assert.Equal(t, 120.0, srv.lastReq.Records[0].Subjects["phy"])
}

func TestIngestionHandlerCreateSheetUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeIngestion{run: &models.IngestionRun{RunID: "run-2", Status: models.OutcomeSuccess}}
	handler := NewIngestionHandler(srv, nil, 0)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("test_id", "NBTS-02"))
	require.NoError(t, w.WriteField("test_type", "NBTS"))
	require.NoError(t, w.WriteField("test_date", "2024-06-01"))
	require.NoError(t, w.WriteField("max_marks", "720"))
	part, err := w.CreateFormFile("sheet", "marks.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("PSID,Name,Batch,Phy,Che,Bot,Zoo\nP1,Asha,B1,100,90,80,70\nP2,Ravi,B2,AB,60,70,80\n,Nobody,B1,10,10,10,10\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingestions", &buf)
	c.Request.Header.Set("Content-Type", w.FormDataContentType())

	handler.Create(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NBTS-02", srv.lastReq.TestID)
	assert.Equal(t, 720.0, srv.lastReq.MaxMarks)
	assert.Equal(t, "marks.csv", srv.lastReq.Source)
	require.Len(t, srv.lastReq.Records, 2)
	assert.Equal(t, "P1", srv.lastReq.Records[0].PSID)
	assert.Len(t, srv.lastReq.Records[0].Subjects, 4)
	_, hasPhy := srv.lastReq.Records[1].Subjects[string(models.SubjectPhysics)]
	assert.False(t, hasPhy)
	assert.Equal(t, []string{"row 4: missing psid"}, srv.lastReq.Skipped)
}

func TestIngestionHandlerFailedRunCarriesReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeIngestion{
		run: &models.IngestionRun{RunID: "run-3", Status: models.OutcomeFailed, FailedStage: models.StageNormalized},
		err: appErrors.Clone(appErrors.ErrMalformedRecord, "record 2: missing psid"),
	}
	handler := NewIngestionHandler(srv, nil, 0)

	body := `{"test_id":"FT-01","test_type":"FT","test_date":"2024-05-01","max_marks":720,"records":[{"subjects":{"phy":1}}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingestions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decode(t, rec)
	assert.Equal(t, "normalized", envelope.Data["failed_stage"])
	assert.Equal(t, "MALFORMED_RECORD", envelope.Error["code"])
}

func TestIngestionHandlerRejectsBrokenJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIngestionHandler(&fakeIngestion{}, nil, 0)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/ingestions", strings.NewReader("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestionHandlerStatusAndRebuild(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeIngestion{run: &models.IngestionRun{RunID: "run-4"}, version: 9}
	handler := NewIngestionHandler(srv, nil, 0)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/ingestions/missing", nil)
	c.Params = gin.Params{{Key: "runId", Value: "missing"}}
	handler.Status(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/rebuild", nil)
	handler.Rebuild(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9, decode(t, rec).Data["published_version"])
}

type fakeViews struct {
	snapshot models.StudentSnapshot
}

func (f *fakeViews) Student(psid string) (models.StudentSnapshot, error) {
	if psid != f.snapshot.PSID {
		return models.StudentSnapshot{}, appErrors.ErrSnapshotUnavailable
	}
	return f.snapshot, nil
}

func (f *fakeViews) Prediction(psid string) (models.PredictionSnapshot, error) {
	if psid != f.snapshot.PSID {
		return models.PredictionSnapshot{}, appErrors.ErrSnapshotUnavailable
	}
	return models.PredictionSnapshot{PSID: psid, ConfidenceLevel: models.ConfidenceLow}, nil
}

func (f *fakeViews) Graphs(psid string) (models.StudentGraphs, error) {
	return models.StudentGraphs{PSID: psid}, nil
}

func TestStudentHandlerSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	views := &fakeViews{snapshot: models.StudentSnapshot{PSID: "P1", Name: "Asha", Meta: models.SnapshotMeta{PublishedVersion: 4}}}
	handler := NewStudentHandler(views)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/P1", nil)
	c.Params = gin.Params{{Key: "psid", Value: "P1"}}
	handler.Snapshot(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decode(t, rec)
	assert.Equal(t, "Asha", envelope.Data["name"])
	assert.EqualValues(t, 4, envelope.Meta["published_version"])
}

func TestStudentHandlerUnknownStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(&fakeViews{snapshot: models.StudentSnapshot{PSID: "P1"}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/P9/prediction", nil)
	c.Params = gin.Params{{Key: "psid", Value: "P9"}}
	handler.Prediction(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SNAPSHOT_UNAVAILABLE", decode(t, rec).Error["code"])
}

type fakeBoards struct {
	board     models.LeaderboardSnapshot
	hit       bool
	lastBatch string
}

func (f *fakeBoards) Leaderboard(_ context.Context, method models.RankingMethod, batch string) (models.LeaderboardSnapshot, bool, error) {
	f.lastBatch = batch
	board := f.board
	board.Method = method
	return board.FilterBatch(batch), f.hit, nil
}

type fakeExports struct {
	path string
}

func (f *fakeExports) Link(method models.RankingMethod, format export.Format) (dto.ExportLink, error) {
	return dto.ExportLink{Method: method, Format: string(format), URL: "/api/v1/exports/download?token=abc", Version: 2}, nil
}

func (f *fakeExports) Open(token string) (*service.ExportFile, error) {
	if token != "abc" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return &service.ExportFile{File: file, Name: filepath.Base(f.path), ContentType: export.FormatCSV.ContentType()}, nil
}

func sampleBoard() models.LeaderboardSnapshot {
	return models.LeaderboardSnapshot{
		Version:     2,
		GeneratedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Entries: []models.LeaderboardEntry{
			{Rank: 1, PSID: "241001001", Batch: "B1", Score: 650},
			{Rank: 2, PSID: "241001002", Batch: "B2", Score: 600},
			{Rank: 2, PSID: "241001003", Batch: "B1", Score: 600},
			{Rank: 3, PSID: "241001004", Batch: "B1", Score: 550},
		},
	}
}

func TestLeaderboardHandlerRejectsUnknownMethod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLeaderboardHandler(&fakeBoards{}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/fastest", nil)
	c.Params = gin.Params{{Key: "method", Value: "fastest"}}
	handler.Get(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboardHandlerFiltersAndPaginates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	boards := &fakeBoards{board: sampleBoard(), hit: true}
	handler := NewLeaderboardHandler(boards, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/latest_scores?batch=B1&page=2&page_size=2", nil)
	c.Params = gin.Params{{Key: "method", Value: "latest_scores"}}
	handler.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B1", boards.lastBatch)
	envelope := decode(t, rec)
	entries := envelope.Data["entries"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "*******004", entries[0].(map[string]interface{})["psid"])
	assert.EqualValues(t, 3, envelope.Pagination["total_count"])
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, "241001004", boards.board.Entries[3].PSID)
}

func TestLeaderboardHandlerPrivateKeepsPSIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLeaderboardHandler(&fakeBoards{board: sampleBoard()}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/latest_scores/private", nil)
	c.Params = gin.Params{{Key: "method", Value: "latest_scores"}}
	handler.Private(c)

	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec).Data["entries"].([]interface{})
	require.Len(t, entries, 4)
	assert.Equal(t, "241001001", entries[0].(map[string]interface{})["psid"])
	assert.Nil(t, decode(t, rec).Pagination)
}

func TestLeaderboardHandlerHugePageIsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLeaderboardHandler(&fakeBoards{board: sampleBoard()}, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/latest_scores?page=9223372036854775807&page_size=2", nil)
	c.Params = gin.Params{{Key: "method", Value: "latest_scores"}}
	handler.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decode(t, rec)
	assert.Empty(t, envelope.Data["entries"])
	assert.EqualValues(t, 4, envelope.Pagination["total_count"])
}

func TestPaginateWithoutPageSizeKeepsBoard(t *testing.T) {
	board := sampleBoard()
	assert.Nil(t, paginate(&board, 3, 0))
	assert.Len(t, board.Entries, 4)

	board = sampleBoard()
	p := paginate(&board, 9, 2)
	require.NotNil(t, p)
	assert.Empty(t, board.Entries)
	assert.Equal(t, 4, p.TotalCount)

	board = sampleBoard()
	p = paginate(&board, math.MaxInt, 2)
	require.NotNil(t, p)
	assert.Empty(t, board.Entries)

	board = sampleBoard()
	paginate(&board, 3, 2)
	assert.Empty(t, board.Entries)

	board = sampleBoard()
	paginate(&board, 2, 3)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "241001004", board.Entries[0].PSID)
}

func TestLeaderboardHandlerExportAndDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "leaderboard_latest_scores_v2.csv")
	require.NoError(t, os.WriteFile(path, []byte("Rank,PSID\n1,P1\n"), 0o600))
	handler := NewLeaderboardHandler(&fakeBoards{}, &fakeExports{path: path})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/latest_scores/export?format=doc", nil)
	c.Params = gin.Params{{Key: "method", Value: "latest_scores"}}
	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/leaderboards/latest_scores/export", nil)
	c.Params = gin.Params{{Key: "method", Value: "latest_scores"}}
	handler.Export(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", decode(t, rec).Data["format"])

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=abc", nil)
	handler.Download(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rank,PSID\n1,P1\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leaderboard_latest_scores_v2.csv")
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token=forged", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	handler.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["store"])
	assert.Equal(t, "connection refused", body.Checks["cache"])
}
