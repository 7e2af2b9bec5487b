package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service"
	"github.com/reelforge/reelforge/internal/service/generator"
	"github.com/reelforge/reelforge/internal/service/renderer"
	"github.com/reelforge/reelforge/internal/vault"
)

const testToken = "trigger-token-for-tests"

type fakeDrafter struct{}

func (fakeDrafter) Draft(_ context.Context, req generator.DraftRequest) (*models.Content, error) {
	slides := make([]models.Slide, len(req.Format.Frames))
	for i, frame := range req.Format.Frames {
		slides[i] = models.Slide{
			Role: frame.Role,
			Text: fmt.Sprintf("Slide %d keeps it short and concrete about %s.", i+1, req.Topic),
		}
	}
	return &models.Content{
		Title:   "All About " + req.Topic,
		Hook:    "Wait until you see this.",
		Slides:  slides,
		Caption: "A closer look at " + req.Topic + ".",
		Tags:    []string{req.Topic, "learning"},
	}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, req renderer.RenderRequest) ([]string, error) {
	urls := make([]string, len(req.Format.Frames))
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.test/frames/%s/%d.png", req.JobID, i)
	}
	return urls, nil
}

type fakeEncoder struct{}

func (fakeEncoder) StillClip(context.Context, string, string, float64) error { return nil }
func (fakeEncoder) Concat(context.Context, string, string, string, float64) error {
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, service.Migrate(db))
	return db
}

// newTestServer wires the route surface against sqlite and in-process fakes
// for the generator and renderer collaborators.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	logger := zap.NewNop()

	v, err := vault.NewAESGCM(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("k"), 32)))
	require.NoError(t, err)

	store := service.NewJobStore(db, logger)
	registry := service.NewTenantRegistry(db, v, nil, time.Minute, logger)
	monitor := service.NewMonitoringService(db, logger)
	pipeCfg := &config.PipelineConfig{}

	srv := &Server{
		Config:     &config.Config{},
		DB:         db,
		Router:     gin.New(),
		Logger:     logger,
		Auth:       service.NewAuthService(logger, testToken),
		Store:      store,
		Registry:   registry,
		Monitor:    monitor,
		Generation: service.NewGenerationService(pipeCfg, store, registry, fakeDrafter{}, service.NewFormatSelector(7), monitor, logger),
		Frames:     service.NewFrameService(pipeCfg, store, fakeRenderer{}, monitor, logger),
		Assembly:   service.NewAssemblyService(pipeCfg, store, registry, fakeEncoder{}, monitor, logger),
		Upload:     service.NewUploadService(&config.HostingConfig{}, pipeCfg, store, registry, monitor, logger),
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func seedTenant(t *testing.T, db *gorm.DB, status models.TenantStatus) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:       uuid.NewString(),
		Name:     "tenant-" + uuid.NewString()[:8],
		Status:   status,
		Personas: models.StringList{"coach_maya"},
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

type apiResponse struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error"`
	Summary *service.CycleSummary `json:"summary"`
	Jobs    []models.Job          `json:"jobs"`
	Job     *models.Job           `json:"job"`
	Count   int                   `json:"count"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)
	job, err := srv.Store.CreateJob(context.Background(), tenant.ID, "coach_maya", "math")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing": "",
		"wrong":   "not-the-token",
	} {
		w := doRequest(t, srv, http.MethodPost, "/api/v1/pipeline/generate", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		resp := decode(t, w)
		assert.False(t, resp.Success, name)
		assert.Equal(t, "authentication required", resp.Error, name)
	}

	// The gate fires before any claim, so the job is untouched.
	got, err := srv.Store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestGenerateTriggerAdvancesJob(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)
	job, err := srv.Store.CreateJob(context.Background(), tenant.ID, "coach_maya", "fractions")
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/pipeline/generate", testToken,
		map[string]string{"tenantId": tenant.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, "generate", resp.Summary.Stage)
	assert.Equal(t, 1, resp.Summary.Claimed)
	assert.Equal(t, 1, resp.Summary.Succeeded)

	got, err := srv.Store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepFrames, got.Step)
	assert.Equal(t, models.StatusFramesPending, got.Status)
	require.NotNil(t, got.Payload.Content)
	assert.Equal(t, "All About fractions", got.Payload.Content.Title)
}

func TestCreateJobsBulk(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/jobs", testToken, map[string]any{
		"tenantId": tenant.ID,
		"persona":  "coach_maya",
		"topics":   []string{"fractions", " decimals ", ""},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.True(t, resp.Success)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "fractions", resp.Jobs[0].Topic)
	assert.Equal(t, "decimals", resp.Jobs[1].Topic)
	for _, job := range resp.Jobs {
		assert.Equal(t, models.StepGenerate, job.Step)
		assert.Equal(t, models.StatusPending, job.Status)
	}
}

func TestCreateJobsRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t)
	active := seedTenant(t, srv.DB, models.TenantActive)
	suspended := seedTenant(t, srv.DB, models.TenantSuspended)

	// No persona.
	w := doRequest(t, srv, http.MethodPost, "/api/v1/jobs", testToken, map[string]any{
		"tenantId": active.ID,
		"topic":    "math",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No usable topic.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/jobs", testToken, map[string]any{
		"tenantId": active.ID,
		"persona":  "coach_maya",
		"topics":   []string{"  "},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "at least one topic is required", decode(t, w).Error)

	// Unknown tenant.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/jobs", testToken, map[string]any{
		"tenantId": "nope",
		"persona":  "coach_maya",
		"topic":    "math",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Tenant exists but is not active.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/jobs", testToken, map[string]any{
		"tenantId": suspended.ID,
		"persona":  "coach_maya",
		"topic":    "math",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "tenant is not active", decode(t, w).Error)
}

func TestListJobsFilters(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)

	for _, topic := range []string{"a", "b", "c"} {
		_, err := srv.Store.CreateJob(context.Background(), tenant.ID, "coach_maya", topic)
		require.NoError(t, err)
	}
	other := seedTenant(t, srv.DB, models.TenantActive)
	_, err := srv.Store.CreateJob(context.Background(), other.ID, "coach_maya", "d")
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/jobs?tenantId="+tenant.ID+"&step=1&status=pending", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 3, resp.Count)
	for _, job := range resp.Jobs {
		assert.Equal(t, tenant.ID, job.TenantID)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/jobs?step=9", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/jobs?limit=zero", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobRoute(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)
	job, err := srv.Store.CreateJob(context.Background(), tenant.ID, "coach_maya", "math")
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/jobs/"+job.ID, testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Job)
	assert.Equal(t, job.ID, resp.Job.ID)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "job not found", decode(t, w).Error)
}

func TestStatsSummaryRoute(t *testing.T) {
	srv := newTestServer(t)
	tenant := seedTenant(t, srv.DB, models.TenantActive)
	_, err := srv.Store.CreateJob(context.Background(), tenant.ID, "coach_maya", "math")
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/stats/summary", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Summary struct {
			StatusCounts map[string]int `json:"statusCounts"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Summary.StatusCounts["pending"])
}
