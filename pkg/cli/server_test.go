package cli

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/govai-platform/govai/pkg/config"
	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/metrics"
	"github.com/govai-platform/govai/pkg/middleware"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/govai-platform/govai/pkg/scoring"
	"github.com/govai-platform/govai/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxBody = 4096

func testRouter(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "data.db")
	require.NoError(t, data.Init(dsn))
	db, err := data.GetDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	p := newPipeline(config.Default(dir), newStore(db), service.MultiObserver{m})
	return makeRouter(routerDeps{
		pipeline:    p,
		db:          db,
		metrics:     m,
		maxBody:     testMaxBody,
		concurrency: 2,
	}), db
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	h, _ := testRouter(t)
	w := serve(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	r := decodeBody[rootResponse](t, w)
	assert.Equal(t, config.AppName, r.Service)
	assert.Equal(t, string(scoring.ModeHeuristic), r.Mode)
	assert.Contains(t, r.Endpoints, "POST /fraud-detect")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = serve(h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	h, db := testRouter(t)
	w := serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	r := decodeBody[healthResponse](t, w)
	assert.Equal(t, statusHealthy, r.Status)
	assert.False(t, r.ModelLoaded)
	assert.Equal(t, string(scoring.ModeHeuristic), r.Mode)
	require.NotNil(t, r.Database)
	assert.Zero(t, r.Database.Contracts)

	require.NoError(t, db.Close())
	w = serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	r = decodeBody[healthResponse](t, w)
	assert.Equal(t, statusDegraded, r.Status)
	assert.Nil(t, r.Database)
	assert.NotEmpty(t, r.DBError)
}

func TestFraudDetect(t *testing.T) {
	h, _ := testRouter(t)
	body := `{"contract_number":"C-1","description":"emergency road works","amount":25000000,
		"supplier":"Acme","country":"Kenya","procurement_type":"Direct","duration":2,"bid_count":1}`
	w := serve(h, http.MethodPost, "/fraud-detect", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	a := decodeBody[service.Assessment](t, w)
	assert.Equal(t, "C-1", a.ContractNumber)
	assert.NotEmpty(t, a.ID)
	assert.GreaterOrEqual(t, a.RiskScore, 0.0)
	assert.LessOrEqual(t, a.RiskScore, 1.0)
	assert.Equal(t, string(scoring.ModeHeuristic), a.Mode)
	assert.NotEmpty(t, a.Recommendation)
	assert.True(t, a.Persisted)

	lvl, _ := risk.Classify(a.RiskScore)
	assert.Equal(t, lvl, a.RiskLevel)

	w = serve(h, http.MethodGet, "/contracts/C-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	c := decodeBody[data.ContractAssessment](t, w)
	assert.Equal(t, a.ID, c.AssessmentID)
	assert.Equal(t, "Acme", c.Supplier)
}

func TestFraudDetect_AutoNumber(t *testing.T) {
	h, _ := testRouter(t)
	w := serve(h, http.MethodPost, "/fraud-detect", `{"amount":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	a := decodeBody[service.Assessment](t, w)
	assert.True(t, strings.HasPrefix(a.ContractNumber, service.AutoIDPrefix), a.ContractNumber)
}

func TestFraudDetect_Errors(t *testing.T) {
	h, _ := testRouter(t)

	w := serve(h, http.MethodPost, "/fraud-detect", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeBody[map[string]string](t, w)
	assert.Contains(t, e["error"], "invalid JSON")
	assert.NotEmpty(t, e["request_id"])

	w = serve(h, http.MethodPost, "/fraud-detect", `{"amount":10,"bid_count":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	e = decodeBody[map[string]string](t, w)
	assert.Contains(t, e["error"], "bid_count")

	w = serve(h, http.MethodPost, "/fraud-detect", `{"amount":10,"duration":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := `{"amount":10,"description":"` + strings.Repeat("x", testMaxBody) + `"}`
	w = serve(h, http.MethodPost, "/fraud-detect", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(h, http.MethodGet, "/fraud-detect", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestFraudDetectBatch(t *testing.T) {
	h, _ := testRouter(t)
	body := `[{"contract_number":"B-1","amount":1000},
		{"contract_number":"B-2","amount":10,"bid_count":-3},
		{"contract_number":"B-3","amount":90000000,"bid_count":1}]`
	w := serve(h, http.MethodPost, "/fraud-detect/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	r := decodeBody[batchResponse](t, w)
	require.Len(t, r.Results, 3)
	assert.Equal(t, 1, r.Failed)
	for i, res := range r.Results {
		assert.Equal(t, i, res.Index)
	}
	assert.NotNil(t, r.Results[0].Assessment)
	assert.Nil(t, r.Results[1].Assessment)
	assert.Contains(t, r.Results[1].Error, "bid_count")
	assert.Equal(t, "B-3", r.Results[2].Assessment.ContractNumber)

	w = serve(h, http.MethodPost, "/fraud-detect/batch", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(h, http.MethodPost, "/fraud-detect/batch", `{"amount":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContracts(t *testing.T) {
	h, _ := testRouter(t)
	for _, b := range []string{
		`{"contract_number":"L-1","amount":100,"bid_count":5,"duration":12}`,
		`{"contract_number":"L-2","amount":200,"bid_count":6,"duration":12}`,
	} {
		require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/fraud-detect", b).Code)
	}

	w := serve(h, http.MethodGet, "/contracts", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]data.ContractAssessment](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "L-2", list[0].ContractNumber)

	w = serve(h, http.MethodGet, "/contracts?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]data.ContractAssessment](t, w), 1)

	w = serve(h, http.MethodGet, "/contracts?risk_level=critical", "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range decodeBody[[]data.ContractAssessment](t, w) {
		assert.Equal(t, risk.LevelCritical, c.RiskLevel)
	}

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/contracts?risk_level=extreme", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/contracts?limit=-2", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/contracts/missing", "").Code)
}

func TestSummary(t *testing.T) {
	h, _ := testRouter(t)
	for _, b := range []string{
		`{"contract_number":"S-1","supplier":"A","amount":100}`,
		`{"contract_number":"S-2","supplier":"B","amount":300}`,
		`{"contract_number":"S-3","supplier":"A","amount":50}`,
	} {
		require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/fraud-detect", b).Code)
	}

	w := serve(h, http.MethodGet, "/analytics/summary?top=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	s := decodeBody[data.RiskSummary](t, w)
	assert.Equal(t, int64(3), s.TotalContracts)
	assert.Equal(t, "450", s.TotalValue.String())
	require.Len(t, s.TopSuppliers, 1)
	assert.Equal(t, "B", s.TopSuppliers[0].Supplier)

	var n int64
	for _, c := range s.RiskDistribution {
		n += c
	}
	assert.Equal(t, s.TotalContracts, n)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/analytics/summary?top=x", "").Code)
}

func TestModels(t *testing.T) {
	h, _ := testRouter(t)
	w := serve(h, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, w.Code)

	r := decodeBody[modelsResponse](t, w)
	assert.Equal(t, string(scoring.ModeHeuristic), r.Mode)
	assert.Len(t, r.Bands, len(risk.Levels()))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := testRouter(t)
	require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/fraud-detect", `{"amount":5}`).Code)

	w := serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "govai_assessments_total")
	assert.Contains(t, w.Body.String(), "govai_http_requests_total")
}
