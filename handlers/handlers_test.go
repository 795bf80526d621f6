package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixeltruth/analysis"
	"pixeltruth/classifier"
	"pixeltruth/database"
	"pixeltruth/models"
	"pixeltruth/storage"
	"pixeltruth/testsupport"
)

const testUser = "user-1"

type fakeAuth struct {
	users       map[string]*models.User
	invalidated []string
	counts      map[string]int
	loginErr    error
	refreshErr  error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		users:  map[string]*models.User{testUser: {ID: testUser, Email: "a@example.com", Username: "alice", Plan: models.PlanFree, IsActive: true}},
		counts: map[string]int{},
	}
}

func (f *fakeAuth) CreateUser(_ context.Context, req models.RegisterRequest) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == req.Email || u.Username == req.Username {
			return nil, database.ErrUserExists
		}
	}
	u := &models.User{ID: "user-2", Email: req.Email, Username: req.Username, Plan: models.PlanFree, IsActive: true}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAuth) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrUserNotFound
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.TokenResponse{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer", ExpiresIn: 1800}, nil
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*models.TokenResponse, error) {
	if f.refreshErr != nil || token != "refresh" {
		return nil, database.ErrInvalidToken
	}
	return &models.TokenResponse{AccessToken: "access2", RefreshToken: "refresh2", TokenType: "bearer", ExpiresIn: 1800}, nil
}

func (f *fakeAuth) InvalidateToken(_ context.Context, _, token string) error {
	f.invalidated = append(f.invalidated, token)
	return nil
}

func (f *fakeAuth) IncrementAnalysisCount(_ context.Context, id string) error {
	f.counts[id]++
	return nil
}

type fakeAnalyses struct {
	records map[string]*models.AnalysisRecord
	logs    []models.APILog
	seq     int
	pingErr error
	saveErr error
}

func newFakeAnalyses() *fakeAnalyses {
	return &fakeAnalyses{records: map[string]*models.AnalysisRecord{}}
}

func (f *fakeAnalyses) Ping(context.Context) error { return f.pingErr }

func (f *fakeAnalyses) SaveAnalysis(_ context.Context, rec *models.AnalysisRecord) (*models.AnalysisRecord, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.seq++
	rec.ID = "analysis-" + string(rune('0'+f.seq))
	rec.HasPreview = len(rec.Preview) > 0
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeAnalyses) get(userID, id string) (*models.AnalysisRecord, error) {
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return nil, database.ErrAnalysisNotFound
	}
	return rec, nil
}

func (f *fakeAnalyses) GetAnalysis(_ context.Context, userID, id string) (*models.AnalysisRecord, error) {
	return f.get(userID, id)
}

func (f *fakeAnalyses) GetPreview(_ context.Context, userID, id string) ([]byte, error) {
	rec, err := f.get(userID, id)
	if err != nil {
		return nil, err
	}
	if len(rec.Preview) == 0 {
		return nil, database.ErrAnalysisNotFound
	}
	return rec.Preview, nil
}

func (f *fakeAnalyses) ListAnalyses(_ context.Context, userID string, page, pageSize int) ([]models.HistoryItem, int, error) {
	var all []*models.AnalysisRecord
	for _, rec := range f.records {
		if rec.UserID == userID {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	items := []models.HistoryItem{}
	for i := (page - 1) * pageSize; i < len(all) && i < page*pageSize; i++ {
		items = append(items, models.HistoryItem{
			AnalysisID: all[i].ID,
			Filename:   all[i].Filename,
			Prediction: string(all[i].Result.Prediction),
		})
	}
	return items, len(all), nil
}

func (f *fakeAnalyses) DeleteAnalysis(_ context.Context, userID, id string) error {
	if _, err := f.get(userID, id); err != nil {
		return err
	}
	delete(f.records, id)
	return nil
}

func (f *fakeAnalyses) Stats(_ context.Context, userID string) (*models.StatsResponse, error) {
	stats := &models.StatsResponse{ByPrediction: map[string]int{}}
	for _, rec := range f.records {
		if rec.UserID == userID {
			stats.ByPrediction[string(rec.Result.Prediction)]++
			stats.Total++
		}
	}
	return stats, nil
}

func (f *fakeAnalyses) LogAPICall(_ context.Context, entry models.APILog) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fixedPredictor struct {
	prediction classifier.Prediction
}

func (f fixedPredictor) Predict(context.Context, classifier.Tensor) classifier.Prediction {
	return f.prediction
}

type fakePublisher struct {
	events []models.AnalysisEvent
	err    error
}

func (f *fakePublisher) Publish(message interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, message.(models.AnalysisEvent))
	return nil
}

type statusString string

func (s statusString) Status() string { return string(s) }

type env struct {
	auth      *fakeAuth
	analyses  *fakeAnalyses
	files     *storage.Uploads
	publisher *fakePublisher
	handlers  *Handlers
	router    *gin.Engine
	uploadDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	files, err := storage.NewUploads(dir, 1<<20, []string{".jpg", ".jpeg", ".png"})
	require.NoError(t, err)

	e := &env{
		auth:      newFakeAuth(),
		analyses:  newFakeAnalyses(),
		files:     files,
		publisher: &fakePublisher{},
		uploadDir: dir,
	}
	predictor := fixedPredictor{classifier.Prediction{
		Label:      classifier.LabelAuthentic,
		Confidence: 0.9,
		Probabilities: map[classifier.Label]float64{
			classifier.LabelAuthentic:   0.9,
			classifier.LabelAIGenerated: 0.05,
			classifier.LabelManipulated: 0.05,
		},
	}}
	e.handlers = NewHandlers(Deps{
		Auth:          e.auth,
		Analyses:      e.analyses,
		Files:         files,
		Pipeline:      analysis.NewPipeline(predictor, "2.1.0"),
		Classifier:    statusString(classifier.StatusLoaded),
		Publisher:     e.publisher,
		ModelVersion:  "2.1.0",
		StorePreviews: true,
	})
	e.handlers.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	e.router = gin.New()
	withUser := func(c *gin.Context) {
		c.Set("user_id", testUser)
		c.Set("token", "access")
	}
	h := e.handlers
	e.router.GET("/health", h.HealthCheck)
	e.router.POST("/api/auth/register", h.Register)
	e.router.POST("/api/auth/login", h.Login)
	e.router.POST("/api/auth/refresh", h.RefreshToken)
	e.router.GET("/api/auth/test", h.AuthTest)
	e.router.GET("/api/auth/me", withUser, h.Me)
	e.router.GET("/api/auth/me-anon", h.Me)
	e.router.POST("/api/auth/logout", withUser, h.Logout)
	e.router.POST("/api/analyze/upload", withUser, h.Upload)
	e.router.POST("/api/analyze/analyze", withUser, h.AnalyzeUpload)
	e.router.POST("/api/analyze/image", withUser, h.AnalyzeImage)
	e.router.GET("/api/history", withUser, h.History)
	e.router.GET("/api/history/stats", withUser, h.Stats)
	e.router.GET("/api/history/image/:id", withUser, h.GetAnalysis)
	e.router.GET("/api/history/image/:id/preview", withUser, h.GetPreview)
	e.router.DELETE("/api/history/image/:id", withUser, h.DeleteAnalysis)
	return e
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, field, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	testCases := []struct {
		name       string
		classifier string
		pingErr    error
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", classifier: classifier.StatusLoaded, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "mock mode", classifier: classifier.StatusMockMode, wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "database down", classifier: classifier.StatusLoaded, pingErr: errors.New("down"), wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.handlers.Classifier = statusString(tc.classifier)
			e.analyses.pingErr = tc.pingErr

			w := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.wantCode, w.Code)
			resp := decode[models.HealthResponse](t, w)
			assert.Equal(t, tc.wantStatus, resp.Status)
			assert.Equal(t, tc.classifier, resp.Classifier)
			assert.Equal(t, "2.1.0", resp.ModelVersion)
			assert.Equal(t, "2024-05-01T10:00:00Z", resp.Time)
		})
	}
}

func TestRegister(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "created", body: `{"email":"b@example.com","username":"bob","password":"password123"}`, wantCode: http.StatusCreated},
		{name: "duplicate", body: `{"email":"a@example.com","username":"alice","password":"password123"}`, wantCode: http.StatusConflict},
		{name: "short password", body: `{"email":"b@example.com","username":"bob","password":"short"}`, wantCode: http.StatusBadRequest},
		{name: "bad email", body: `{"email":"nope","username":"bob","password":"password123"}`, wantCode: http.StatusBadRequest},
		{name: "bad username", body: `{"email":"b@example.com","username":"b!","password":"password123"}`, wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(jsonRequest(http.MethodPost, "/api/auth/register", tc.body))
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{name: "ok", body: `{"email":"a@example.com","password":"password123"}`, wantCode: http.StatusOK},
		{name: "bad credentials", body: `{"email":"a@example.com","password":"x"}`, err: database.ErrInvalidCredentials, wantCode: http.StatusUnauthorized},
		{name: "inactive", body: `{"email":"a@example.com","password":"x"}`, err: database.ErrUserInactive, wantCode: http.StatusForbidden},
		{name: "store failure", body: `{"email":"a@example.com","password":"x"}`, err: errors.New("db gone"), wantCode: http.StatusInternalServerError},
		{name: "missing fields", body: `{}`, wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.auth.loginErr = tc.err
			w := e.do(jsonRequest(http.MethodPost, "/api/auth/login", tc.body))

			assert.Equal(t, tc.wantCode, w.Code)
			if tc.wantCode == http.StatusOK {
				resp := decode[models.TokenResponse](t, w)
				assert.Equal(t, "access", resp.AccessToken)
				assert.Equal(t, "bearer", resp.TokenType)
			}
		})
	}
}

func TestRefreshToken(t *testing.T) {
	t.Run("body", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(jsonRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"refresh"}`))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "access2", decode[models.TokenResponse](t, w).AccessToken)
	})

	t.Run("bearer header", func(t *testing.T) {
		e := newEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
		req.Header.Set("Authorization", "Bearer refresh")
		w := e.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(jsonRequest(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"stale"}`))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMeAndLogout(t *testing.T) {
	e := newEnv(t)

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[models.User](t, w).Username)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/auth/me-anon", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"access"}, e.auth.invalidated)
}

func TestAuthTest(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"connected","message":"Backend is running","timestamp":"2024-05-01T10:00:00Z"}`, w.Body.String())
}

func TestAnalyzeImage(t *testing.T) {
	e := newEnv(t)
	data := testsupport.JPEGWithExif(640, 480, testsupport.CameraTags())

	w := e.do(multipartRequest(t, "/api/analyze/image", "file", "holiday.jpg", data, nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.AnalysisResponse](t, w)
	assert.Equal(t, "analysis-1", resp.AnalysisID)
	assert.Equal(t, "holiday.jpg", resp.Filename)
	assert.Equal(t, "authentic", resp.Prediction)
	assert.Equal(t, 0.9, resp.ConfidenceScore)
	assert.Equal(t, 0.9, resp.Metadata.OriginalConfidence)
	assert.False(t, resp.Metadata.IsMock)
	assert.NotNil(t, resp.Metadata.QualityMetrics)
	assert.Len(t, resp.Metadata.MLProbabilities, 3)
	assert.Equal(t, "Canon", resp.ExifData["Make"])
	assert.True(t, resp.HasPreview)

	entries, err := os.ReadDir(e.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "one-shot upload is removed")

	assert.Equal(t, 1, e.auth.counts[testUser])
	require.Len(t, e.analyses.logs, 1)
	assert.Equal(t, "/api/analyze/image", e.analyses.logs[0].Endpoint)
	assert.Equal(t, http.StatusOK, e.analyses.logs[0].StatusCode)
	assert.Equal(t, "authentic", e.analyses.logs[0].Prediction)

	require.Len(t, e.publisher.events, 1)
	assert.Equal(t, "analysis-1", e.publisher.events[0].AnalysisID)
	assert.Equal(t, testUser, e.publisher.events[0].UserID)
}

func TestAnalyzeImageCorrupted(t *testing.T) {
	e := newEnv(t)

	w := e.do(multipartRequest(t, "/api/analyze/image", "file", "broken.jpg", []byte("not an image at all"), nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.AnalysisResponse](t, w)
	assert.Equal(t, "error", resp.Prediction)
	assert.Zero(t, resp.ConfidenceScore)
	assert.Contains(t, resp.Metadata.Error, "preprocessing failed")
	assert.False(t, resp.HasPreview)
	assert.Equal(t, "error", e.publisher.events[0].Prediction)
}

func TestAnalyzeImageRejected(t *testing.T) {
	testCases := []struct {
		name     string
		field    string
		filename string
		data     []byte
		wantCode int
	}{
		{name: "missing file", field: "", wantCode: http.StatusBadRequest},
		{name: "wrong extension", field: "file", filename: "doc.pdf", data: []byte("%PDF"), wantCode: http.StatusBadRequest},
		{name: "empty", field: "file", filename: "a.jpg", data: nil, wantCode: http.StatusBadRequest},
		{name: "too large", field: "file", filename: "a.jpg", data: make([]byte, 1<<20+1), wantCode: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(multipartRequest(t, "/api/analyze/image", tc.field, tc.filename, tc.data, nil))
			assert.Equal(t, tc.wantCode, w.Code, w.Body.String())
			assert.Empty(t, e.analyses.records)
		})
	}
}

func TestAnalyzeImageSaveFailure(t *testing.T) {
	e := newEnv(t)
	e.analyses.saveErr = errors.New("disk full")

	w := e.do(multipartRequest(t, "/api/analyze/image", "file", "a.jpg", testsupport.JPEG(64, 64), nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, e.analyses.logs, 1)
	assert.Equal(t, http.StatusInternalServerError, e.analyses.logs[0].StatusCode)
	assert.Empty(t, e.publisher.events)
	assert.Zero(t, e.auth.counts[testUser])
}

func TestAnalyzeImagePublishFailureIsNotFatal(t *testing.T) {
	e := newEnv(t)
	e.publisher.err = errors.New("broker down")

	w := e.do(multipartRequest(t, "/api/analyze/image", "file", "a.jpg", testsupport.JPEG(64, 64), nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadThenAnalyze(t *testing.T) {
	e := newEnv(t)

	w := e.do(multipartRequest(t, "/api/analyze/upload", "image", "cat.png", testsupport.EncodePNG(testsupport.Pattern(128, 96)), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	up := decode[models.UploadResponse](t, w)
	assert.True(t, strings.HasSuffix(up.Name, ".png"))
	assert.Equal(t, "cat.png", up.OriginalName)
	assert.Len(t, up.Hash, 64)

	w = e.do(multipartRequest(t, "/api/analyze/analyze", "", "", nil, map[string]string{
		"filename":      up.Name,
		"original_name": "cat.png",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.AnalysisResponse](t, w)
	assert.Equal(t, "cat.png", resp.Filename)
	assert.Equal(t, "authentic", resp.Prediction)

	_, err := os.Stat(filepath.Join(e.uploadDir, up.Name))
	assert.NoError(t, err, "stored upload is kept")
	assert.Equal(t, up.Hash, e.analyses.records[resp.AnalysisID].FileHash)
}

func TestAnalyzeUploadErrors(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		wantCode int
	}{
		{name: "missing", filename: "", wantCode: http.StatusBadRequest},
		{name: "traversal", filename: "../etc/passwd.jpg", wantCode: http.StatusBadRequest},
		{name: "unknown", filename: "6f1c1a8e-2f3b-4d5e-8a9b-0c1d2e3f4a5b.jpg", wantCode: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(multipartRequest(t, "/api/analyze/analyze", "", "", nil, map[string]string{"filename": tc.filename}))
			assert.Equal(t, tc.wantCode, w.Code)
		})
	}
}

func TestHistoryFlow(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		w := e.do(multipartRequest(t, "/api/analyze/image", "file", "a.jpg", testsupport.JPEG(64, 64), nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	e.analyses.records["analysis-9"] = &models.AnalysisRecord{
		ID: "analysis-9", UserID: "someone-else", Result: &analysis.Result{Prediction: classifier.LabelAIGenerated},
	}

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/history?page=1&page_size=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.HistoryResponse](t, w)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "analysis-3", page.Items[0].AnalysisID)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/history/image/analysis-2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analysis-2", decode[models.AnalysisResponse](t, w).AnalysisID)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/history/image/analysis-9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "other users' analyses are hidden")

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/history/image/analysis-2/preview", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8}, w.Body.Bytes()[:2])

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/history/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.StatsResponse](t, w)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByPrediction["authentic"])

	w = e.do(httptest.NewRequest(http.MethodDelete, "/api/history/image/analysis-2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(httptest.NewRequest(http.MethodDelete, "/api/history/image/analysis-2", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryPagingValidation(t *testing.T) {
	testCases := []struct {
		query    string
		wantCode int
	}{
		{"", http.StatusOK},
		{"?page=0", http.StatusBadRequest},
		{"?page=x", http.StatusBadRequest},
		{"?page_size=0", http.StatusBadRequest},
		{"?page_size=101", http.StatusBadRequest},
		{"?page_size=100", http.StatusOK},
		{"?page=1000000", http.StatusOK},
		{"?page=1000001", http.StatusBadRequest},
		{"?page=9223372036854775807", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		e := newEnv(t)
		w := e.do(httptest.NewRequest(http.MethodGet, "/api/history"+tc.query, nil))
		assert.Equal(t, tc.wantCode, w.Code, tc.query)
		if w.Code == http.StatusOK && tc.query == "" {
			page := decode[models.HistoryResponse](t, w)
			assert.Equal(t, 20, page.PageSize)
			assert.Equal(t, 1, page.Page)
			assert.NotNil(t, page.Items)
		}
	}
}

func TestPreviewDisabled(t *testing.T) {
	e := newEnv(t)
	e.handlers.StorePreviews = false

	w := e.do(multipartRequest(t, "/api/analyze/image", "file", "a.jpg", testsupport.JPEG(64, 64), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.AnalysisResponse](t, w).HasPreview)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/history/image/analysis-1/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
