package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sheetviz/backend/internal/access"
	"github.com/sheetviz/backend/internal/chart"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/render"
	"github.com/sheetviz/backend/internal/spreadsheet"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/testutil"
	"github.com/sheetviz/backend/internal/upload"
)

type testServer struct {
	e         *echo.Echo
	state     *state.Store
	storage   *testutil.MockStorage
	machine   *upload.Machine
	generator *chart.Generator
}

func newTestServer(t *testing.T, uploadDelay, generationDelay time.Duration) *testServer {
	t.Helper()
	st := state.NewStore()
	store := testutil.NewMockStorage(t.TempDir())

	machine := upload.NewMachine(st, spreadsheet.NewSimulatedRegistry(), upload.Options{
		Delay:   uploadDelay,
		Scratch: store,
	})
	t.Cleanup(func() { machine.Close() })

	generator := chart.NewGenerator(st, chart.Options{Delay: generationDelay})
	t.Cleanup(func() { generator.Close() })

	e := echo.New()
	SetupMiddleware(e, MiddlewareOptions{}, nil)
	h := NewHandlers(&Dependencies{
		Storage:  store,
		State:    st,
		Uploads:  machine,
		Charts:   generator,
		Renderer: render.NewRenderer(time.Minute, nil),
		Users:    access.NewDirectory(access.SeedUsers),
		Scene:    SceneOptions{FrameInterval: 5 * time.Millisecond},
		Usage:    func() int64 { return 42 },
		Version:  "test",
	})
	RegisterRoutes(e, h)
	RegisterWebSocketRoutes(e, h)

	return &testServer{e: e, state: st, storage: store, machine: machine, generator: generator}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return s.do(req)
}

func (s *testServer) postJSON(method, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req)
}

func (s *testServer) submit(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	part.Write(data)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return s.do(req)
}

// uploadSample submits a spreadsheet and waits for its columns to publish.
func (s *testServer) uploadSample(t *testing.T) {
	t.Helper()
	rec := s.submit(t, "sales.xlsx", []byte("not really a workbook"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s.machine.Wait()
	require.Equal(t, spreadsheet.SampleColumns, s.state.Columns().Columns)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func sampleRows() []models.Row {
	return []models.Row{
		{"Region": "North", "Sales": 120.0},
		{"Region": "South", "Sales": 80.0},
		{"Region": "East", "Sales": 150.0},
	}
}

func TestUploadHandler_Submit(t *testing.T) {
	s := newTestServer(t, 0, 0)

	rec := s.submit(t, "sales.xlsx", []byte("workbook bytes"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var up models.UploadRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, "sales.xlsx", up.Filename)
	assert.Equal(t, models.UploadStatusProcessing, up.Status)
	assert.Equal(t, int64(len("workbook bytes")), up.FileSize)

	s.machine.Wait()

	rec = s.get("/api/uploads/" + up.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, models.UploadStatusCompleted, up.Status)
	assert.Equal(t, 100, up.RowCount)

	rec = s.get("/api/columns")
	require.Equal(t, http.StatusOK, rec.Code)
	var reg state.ColumnRegistry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, up.ID, reg.UploadID)
	assert.Equal(t, spreadsheet.SampleColumns, reg.Columns)

	assert.Equal(t, 0, s.storage.GetFileCount(), "scratch file should be released")

	rec = s.get("/api/uploads/state")
	assert.Contains(t, rec.Body.String(), `"state":"completed"`)
}

func TestUploadHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		data       []byte
		noFile     bool
		wantStatus int
		errCode    string
	}{
		{
			name:       "text file",
			filename:   "notes.txt",
			data:       []byte("hello"),
			wantStatus: http.StatusUnsupportedMediaType,
			errCode:    "INVALID_FORMAT",
		},
		{
			name:       "no extension",
			filename:   "upload",
			data:       []byte("plain words"),
			wantStatus: http.StatusUnsupportedMediaType,
			errCode:    "INVALID_FORMAT",
		},
		{
			name:       "missing file field",
			noFile:     true,
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0, 0)

			var rec *httptest.ResponseRecorder
			if tt.noFile {
				req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(""))
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
				rec = s.do(req)
			} else {
				rec = s.submit(t, tt.filename, tt.data)
			}

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
			assert.Empty(t, s.state.Uploads())
			assert.Equal(t, 0, s.storage.GetFileCount())
			assert.Equal(t, upload.StateIdle, s.machine.State())
		})
	}
}

func TestUploadHandler_ConflictWhileProcessing(t *testing.T) {
	s := newTestServer(t, time.Hour, 0)

	rec := s.submit(t, "first.xlsx", []byte("a"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.submit(t, "second.xlsx", []byte("b"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/uploads/reset", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The rejected file never reached processing, so only the first remains.
	assert.Len(t, s.state.Uploads(), 1)
	assert.Equal(t, 1, s.storage.GetFileCount())
}

func TestUploadHandler_ListAndReset(t *testing.T) {
	s := newTestServer(t, 0, 0)
	s.uploadSample(t)

	rec := s.get("/api/uploads")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.UploadRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/uploads/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	rec = s.get("/api/uploads/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChartHandler_GenerateValidation(t *testing.T) {
	s := newTestServer(t, 0, 0)
	s.uploadSample(t)

	tests := []struct {
		name    string
		request chart.Request
		field   string
	}{
		{"missing title", chart.Request{XAxis: "Region", YAxis: "Sales", Data: sampleRows()}, "title"},
		{"missing x axis", chart.Request{Title: "T", YAxis: "Sales", Data: sampleRows()}, "xAxis"},
		{"missing y axis", chart.Request{Title: "T", XAxis: "Region", Data: sampleRows()}, "yAxis"},
		{"unknown column", chart.Request{Title: "T", XAxis: "Nope", YAxis: "Sales", Data: sampleRows()}, "xAxis"},
		{"unknown type", chart.Request{Type: "radar", Title: "T", XAxis: "Region", YAxis: "Sales", Data: sampleRows()}, "type"},
		{"no data", chart.Request{Title: "T", XAxis: "Region", YAxis: "Sales"}, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postJSON(http.MethodPost, "/api/charts", tt.request)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
			assert.Contains(t, apiErr.Message, tt.field)
		})
	}

	snap := s.state.Snapshot()
	assert.Empty(t, snap.Charts)
	assert.False(t, snap.IsGenerating)
	assert.Empty(t, snap.Error)
}

func TestChartHandler_GenerateAndExport(t *testing.T) {
	s := newTestServer(t, 0, 0)
	s.uploadSample(t)

	rec := s.postJSON(http.MethodPost, "/api/charts", chart.Request{
		Title: "Sales by Region",
		XAxis: "Region",
		YAxis: "Sales",
		Data:  sampleRows(),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"generating"}`, rec.Body.String())

	require.Eventually(t, func() bool {
		_, ok := s.state.CurrentChart()
		return ok && !s.state.IsGenerating()
	}, 2*time.Second, 5*time.Millisecond)

	rec = s.get("/api/charts/current")
	require.Equal(t, http.StatusOK, rec.Code)
	var current models.ChartRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, models.ChartTypeBar, current.Type)
	assert.Len(t, current.Data, 3)

	base := "/api/charts/" + current.ID

	rec = s.get("/api/charts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rowCount":3`)

	rec = s.get(base + "/series")
	require.Equal(t, http.StatusOK, rec.Code)
	var series render.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, []string{"North", "South", "East"}, series.Labels)
	require.Len(t, series.Datasets, 1)
	assert.Equal(t, []float64{120, 80, 150}, series.Datasets[0].Data)

	rec = s.get(base + "/data/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var decoded models.ChartRecord
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, current.ID, decoded.ID)
	assert.Equal(t, "Sales by Region", decoded.Title)

	rec = s.get(base + "/export.png?width=320&height=200")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	assert.Equal(t, `attachment; filename="Sales_by_Region.png"`, rec.Header().Get(echo.HeaderContentDisposition))

	rec = s.get(base + "/export.docx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	assert.Equal(t, `attachment; filename="Sales_by_Region.docx"`, rec.Header().Get(echo.HeaderContentDisposition))

	rec = s.get(base + "/export.png?width=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.get(base + "/export.png?width=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.get("/api/charts/unknown/series")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.get("/api/dashboard/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalUploads":1,"totalCharts":1,"storageUsed":21,"scratchBytes":42}`, rec.Body.String())
}

func TestChartHandler_ConcurrentGenerationRejected(t *testing.T) {
	s := newTestServer(t, 0, time.Hour)
	s.uploadSample(t)

	req := chart.Request{Title: "A", XAxis: "Region", YAxis: "Sales", Data: sampleRows()}
	rec := s.postJSON(http.MethodPost, "/api/charts", req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.postJSON(http.MethodPost, "/api/charts", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)

	rec = s.get("/api/state")
	assert.Contains(t, rec.Body.String(), `"isGenerating":true`)
}

func TestChartHandler_CurrentSelection(t *testing.T) {
	s := newTestServer(t, 0, 0)

	rec := s.get("/api/charts/current")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, s.state.BeginGeneration())
	s.state.FinishGeneration(&models.ChartRecord{ID: "c1", Type: models.ChartTypeLine, Title: "One"})
	require.NoError(t, s.state.BeginGeneration())
	s.state.FinishGeneration(&models.ChartRecord{ID: "c2", Type: models.ChartTypePie, Title: "Two"})

	rec = s.postJSON(http.MethodPut, "/api/charts/current", map[string]string{"id": "c1"})
	require.Equal(t, http.StatusOK, rec.Code)
	cur, _ := s.state.CurrentChart()
	assert.Equal(t, "c1", cur.ID)

	rec = s.postJSON(http.MethodPut, "/api/charts/current", map[string]string{"id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.postJSON(http.MethodPut, "/api/charts/current", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateHandler_ClearError(t *testing.T) {
	s := newTestServer(t, 0, 0)
	require.NoError(t, s.state.BeginGeneration())
	s.state.FailGeneration("boom")

	rec := s.get("/api/state")
	assert.Contains(t, rec.Body.String(), `"error":"boom"`)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/api/state/error", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.state.LastError())
}

func TestUserHandler(t *testing.T) {
	s := newTestServer(t, 0, 0)

	tests := []struct {
		name       string
		path       string
		userID     string
		wantStatus int
		contains   string
	}{
		{"me without header", "/api/me", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"me unknown user", "/api/me", "99", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"me regular user", "/api/me", "1", http.StatusOK, `"isAdmin":false`},
		{"me admin", "/api/me", "3", http.StatusOK, `"isAdmin":true`},
		{"admin list as user", "/api/admin/users", "2", http.StatusForbidden, "FORBIDDEN"},
		{"admin list as admin", "/api/admin/users", "3", http.StatusOK, "Bob Johnson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.userID == "" {
				rec = s.get(tt.path)
			} else {
				rec = s.get(tt.path, HeaderUserID, tt.userID)
			}
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, 0, 0)

	rec := s.get("/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"upload":"idle"`)
	assert.Contains(t, rec.Body.String(), `"generating":false`)
}
