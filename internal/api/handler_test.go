package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/notification"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/report"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/syncjob"
	pkgerrors "github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// memRepo is an in-memory store backing the full request path through the
// handlers.
type memRepo struct {
	mu            sync.Mutex
	nextID        int64
	notifications map[int64]*model.PaymentNotification
	fathers       map[string]*model.Father
}

func newMemRepo() *memRepo {
	return &memRepo{
		notifications: make(map[int64]*model.PaymentNotification),
		fathers:       make(map[string]*model.Father),
	}
}

func (r *memRepo) CreateNotification(ctx context.Context, n *model.PaymentNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	copied := *n
	r.notifications[n.ID] = &copied
	return nil
}

func (r *memRepo) GetNotification(ctx context.Context, id int64) (*model.PaymentNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		copied := *n
		return &copied, nil
	}
	return nil, nil
}

func (r *memRepo) GetNotificationByExternalID(ctx context.Context, externalID string) (*model.PaymentNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ExternalTransactionID != nil && *n.ExternalTransactionID == externalID {
			copied := *n
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) UpdateNotificationStatus(ctx context.Context, id int64, status model.NotificationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notifications[id]; ok {
		n.Status = status
	}
	return nil
}

func (r *memRepo) MarkNotificationProcessed(ctx context.Context, id int64, result *model.PaymentProcessResult, processedAt time.Time) error {
	return nil
}

func (r *memRepo) MarkNotificationFailed(ctx context.Context, id int64, errorMessage string, result *model.PaymentProcessResult) error {
	return nil
}

func (r *memRepo) GetFailedNotifications(ctx context.Context) ([]model.PaymentNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []model.PaymentNotification
	for _, n := range r.notifications {
		if n.Status == model.NotificationStatusFailed {
			failed = append(failed, *n)
		}
	}
	return failed, nil
}

func (r *memRepo) GetFatherByCardCode(ctx context.Context, cardCode string) (*model.Father, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fathers[cardCode]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, nil
}

func (r *memRepo) CreateFather(ctx context.Context, f *model.Father) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	f.ID = r.nextID
	copied := *f
	r.fathers[f.CardCode] = &copied
	return nil
}

func (r *memRepo) UpdateFather(ctx context.Context, f *model.Father) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *f
	r.fathers[f.CardCode] = &copied
	return nil
}

func (r *memRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.fathers {
		if f.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) UpdateFatherUsername(ctx context.Context, id int64, username string) error {
	return nil
}

func (r *memRepo) GetAPIClient(ctx context.Context, clientID string) (*model.APIClient, error) {
	return nil, nil
}

type memEnqueuer struct {
	mu   sync.Mutex
	jobs []model.ProcessingJob
}

func (e *memEnqueuer) EnqueueProcessingJob(ctx context.Context, job model.ProcessingJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

type noopPoster struct{}

func (p *noopPoster) ProcessPaymentNotification(ctx context.Context, req *model.PostingRequest) (*model.PaymentProcessResult, error) {
	return &model.PaymentProcessResult{}, nil
}

type fakeQRGenerator struct {
	err  error
	resp *model.QRResponse
}

func (g *fakeQRGenerator) GenerateQR(ctx context.Context, req *model.QRRequest) (*model.QRResponse, error) {
	if req.Amount <= 0 {
		return nil, pkgerrors.ErrInvalidAmount
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

type emptyAccountSource struct{}

func (s *emptyAccountSource) FetchAccounts(ctx context.Context, filters model.SyncFilters, skip, top int) ([]model.ExternalAccountRecord, error) {
	return nil, nil
}

// memArchive stores uploaded payloads in memory.
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArchive() *memArchive {
	return &memArchive{objects: make(map[string][]byte)}
}

func (a *memArchive) Upload(ctx context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = body
	return nil
}

func (a *memArchive) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (a *memArchive) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok, nil
}

func allowAll(c *gin.Context) {
	c.Next()
}

func newTestRouter(t *testing.T) (*gin.Engine, *memRepo, *memEnqueuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.App.Name = "colegio-integration"
	cfg.App.Version = "test"
	cfg.Sync.BatchSize = 50
	cfg.Sync.BatchPause = time.Millisecond
	cfg.ERP.PartnersPageSize = 100

	repo := newMemRepo()
	enqueuer := &memEnqueuer{}
	orchestrator := notification.NewOrchestrator(cfg, repo, &noopPoster{}, enqueuer, nil)
	engine := syncjob.NewEngine(cfg, repo, &emptyAccountSource{}, syncjob.NewMemoryRegistry(time.Hour))
	qr := &fakeQRGenerator{resp: &model.QRResponse{Success: true, QR: "base64-qr", ID: "QR-1"}}
	handler := NewHandler(orchestrator, engine, report.NewBuilder(repo), qr, nil, cfg)

	router := gin.New()
	SetupRoutes(router, handler, allowAll)

	return router, repo, enqueuer
}

// newArchivedRouter wires the same stack with a live payload archive shared
// between the orchestrator and the payload endpoint.
func newArchivedRouter(t *testing.T) (*gin.Engine, *memArchive) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.App.Name = "colegio-integration"
	cfg.Sync.BatchSize = 50
	cfg.Sync.BatchPause = time.Millisecond

	repo := newMemRepo()
	archive := newMemArchive()
	orchestrator := notification.NewOrchestrator(cfg, repo, &noopPoster{}, &memEnqueuer{}, archive)
	engine := syncjob.NewEngine(cfg, repo, &emptyAccountSource{}, syncjob.NewMemoryRegistry(time.Hour))
	qr := &fakeQRGenerator{resp: &model.QRResponse{Success: true}}
	handler := NewHandler(orchestrator, engine, report.NewBuilder(repo), qr, archive, cfg)

	router := gin.New()
	SetupRoutes(router, handler, allowAll)

	return router, archive
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func notificationBody(externalID string) map[string]interface{} {
	return map[string]interface{}{
		"external_transaction_id": externalID,
		"source":                  "sip",
		"payment_method":          "qr",
		"payer_code":              "PF001",
		"currency":                "BOB",
		"detail": []map[string]interface{}{
			{
				"student_code": "ST001",
				"lines": []map[string]interface{}{
					{"order_doc_entry": 900, "line_num": 0, "amount": 150.50},
				},
			},
		},
	}
}

func TestAcceptNotificationEnqueuesJob(t *testing.T) {
	router, _, enqueuer := newTestRouter(t)

	w := postJSON(router, "/api/v1/notifications", notificationBody("TX-001"))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.AcceptResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyProcessed)
	assert.Equal(t, model.NotificationStatusReceived, resp.Notification.Status)
	assert.Equal(t, 150.50, resp.Notification.TotalAmount)
	assert.Len(t, enqueuer.jobs, 1)
	assert.Equal(t, resp.Notification.ID, enqueuer.jobs[0].NotificationID)
}

func TestAcceptNotificationDuplicateAnswersWithoutEnqueue(t *testing.T) {
	router, _, enqueuer := newTestRouter(t)

	first := postJSON(router, "/api/v1/notifications", notificationBody("TX-002"))
	assert.Equal(t, http.StatusOK, first.Code)

	second := postJSON(router, "/api/v1/notifications", notificationBody("TX-002"))
	assert.Equal(t, http.StatusOK, second.Code)

	var resp model.AcceptResponse
	assert.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyProcessed)
	assert.Len(t, enqueuer.jobs, 1, "duplicate must not enqueue again")
}

func TestAcceptNotificationEmptyDetailRejected(t *testing.T) {
	router, _, enqueuer := newTestRouter(t)

	body := notificationBody("TX-003")
	body["detail"] = []map[string]interface{}{}

	w := postJSON(router, "/api/v1/notifications", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, enqueuer.jobs)
}

func TestAcceptNotificationMalformedBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNotificationStatusNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := get(router, "/api/v1/notifications/TX-404")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNotificationStatusFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	postJSON(router, "/api/v1/notifications", notificationBody("TX-005"))

	w := get(router, "/api/v1/notifications/TX-005")

	assert.Equal(t, http.StatusOK, w.Code)

	var record model.PaymentNotification
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "TX-005", *record.ExternalTransactionID)
}

func TestGetNotificationPayloadRoundTrip(t *testing.T) {
	router, _ := newArchivedRouter(t)

	body := notificationBody("TX-020")
	accepted := postJSON(router, "/api/v1/notifications", body)
	assert.Equal(t, http.StatusOK, accepted.Code)

	w := get(router, "/api/v1/notifications/TX-020/payload")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var stored map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, "TX-020", stored["external_transaction_id"])
}

func TestGetNotificationPayloadUnknownNotification(t *testing.T) {
	router, _ := newArchivedRouter(t)

	w := get(router, "/api/v1/notifications/TX-404/payload")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNotificationPayloadArchivingDisabled(t *testing.T) {
	router, _, _ := newTestRouter(t)

	postJSON(router, "/api/v1/notifications", notificationBody("TX-021"))

	w := get(router, "/api/v1/notifications/TX-021/payload")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartFatherSyncBackgroundAccepted(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/api/v1/sync/fathers", map[string]interface{}{"background": true})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp model.SyncStartResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)

	status := get(router, "/api/v1/sync/jobs/"+resp.JobID)
	assert.Equal(t, http.StatusOK, status.Code)
}

func TestStartFatherSyncInlineReturnsResult(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/api/v1/sync/fathers", map[string]interface{}{})

	assert.Equal(t, http.StatusOK, w.Code)

	var result model.MassSyncResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Total)
}

func TestGenerateQRReturnsCode(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/api/v1/payments/qr", map[string]interface{}{
		"payer_name":     "Juan Perez",
		"payer_document": "1234567",
		"amount":         150.50,
		"currency":       "BOB",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp model.QRResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "QR-1", resp.ID)
}

func TestGenerateQRInvalidAmount(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/api/v1/payments/qr", map[string]interface{}{
		"payer_name": "Juan Perez",
		"amount":     0,
		"currency":   "BOB",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSyncJobStatusNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := get(router, "/api/v1/sync/jobs/no-such-job")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFailedNotificationsReport(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	postJSON(router, "/api/v1/notifications", notificationBody("TX-010"))
	repo.UpdateNotificationStatus(context.Background(), 1, model.NotificationStatusFailed)

	w := get(router, "/api/v1/reports/failed-notifications")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := get(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "colegio-integration", body["service"])
}
