package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/govai-platform/govai/pkg/config"
	"github.com/govai-platform/govai/pkg/contract"
	"github.com/govai-platform/govai/pkg/data"
	"github.com/govai-platform/govai/pkg/middleware"
	"github.com/govai-platform/govai/pkg/registry"
	"github.com/govai-platform/govai/pkg/risk"
	"github.com/govai-platform/govai/pkg/service"
)

const (
	maxBatchRecords = 1000

	msgInternalError = "Internal scoring error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := map[string]string{"error": msg}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, status, body)
}

// writeDecodeError maps a body decode failure to 413 or 400.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

type rootResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Mode      string   `json:"mode"`
	Endpoints []string `json:"endpoints"`
}

func rootHandler(p *pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rootResponse{
			Service: config.AppName,
			Version: version,
			Mode:    string(p.scorer.Mode()),
			Endpoints: []string{
				"GET /health",
				"POST /fraud-detect",
				"POST /fraud-detect/batch",
				"GET /contracts",
				"GET /contracts/{id}",
				"GET /analytics/summary",
				"GET /models",
				"GET /metrics",
			},
		})
	}
}

type healthResponse struct {
	Status      string      `json:"status" yaml:"status"`
	ModelLoaded bool        `json:"model_loaded" yaml:"modelLoaded"`
	Mode        string      `json:"mode" yaml:"mode"`
	Tier        string      `json:"tier" yaml:"tier"`
	Model       string      `json:"model,omitempty" yaml:"model,omitempty"`
	Database    *data.State `json:"database,omitempty" yaml:"database,omitempty"`
	DBError     string      `json:"database_error,omitempty" yaml:"databaseError,omitempty"`
}

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// healthHandler reports degraded when the store is unreachable. Scoring still
// works in that state, so the status code stays 200.
func healthHandler(p *pipeline, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:      statusHealthy,
			ModelLoaded: p.registry.Complete(),
			Mode:        string(p.scorer.Mode()),
			Tier:        string(p.registry.Tier()),
			Model:       p.scorer.ModelName(),
		}
		st, err := data.GetDataState(r.Context(), db)
		if err != nil {
			slog.Warn("health check: store unavailable", "error", err)
			resp.Status = statusDegraded
			resp.DBError = "unavailable"
		} else {
			resp.Database = st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func fraudDetectHandler(p *pipeline, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		var rec contract.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeDecodeError(w, r, err)
			return
		}

		a, err := p.service.Assess(r.Context(), rec)
		if err != nil {
			writeAssessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func writeAssessError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *contract.ValidationError
	if errors.As(err, &ve) {
		writeError(w, r, http.StatusBadRequest, ve.Error())
		return
	}
	slog.Error("assessment failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
	writeError(w, r, http.StatusInternalServerError, msgInternalError)
}

type batchResponse struct {
	Results []service.BatchResult `json:"results"`
	Failed  int                   `json:"failed"`
}

func fraudDetectBatchHandler(p *pipeline, maxBody int64, concurrency int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		var recs []contract.Record
		if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
			writeDecodeError(w, r, err)
			return
		}
		if len(recs) == 0 || len(recs) > maxBatchRecords {
			writeError(w, r, http.StatusBadRequest, "batch must hold between 1 and "+strconv.Itoa(maxBatchRecords)+" records")
			return
		}

		results, err := p.service.AssessBatch(r.Context(), recs, concurrency)
		if err != nil {
			slog.Error("batch assessment interrupted", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "batch interrupted")
			return
		}
		resp := batchResponse{Results: results}
		for i, res := range results {
			if res.Err == nil {
				continue
			}
			resp.Failed++
			if !contract.IsValidationError(res.Err) {
				slog.Error("batch record failed", "index", i, "error", res.Err)
				resp.Results[i].Error = msgInternalError
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func contractsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var level risk.Level
		if v := r.URL.Query().Get("risk_level"); v != "" {
			l, err := risk.ParseLevel(v)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			level = l
		}
		limit, ok := queryParamInt(r, "limit", data.DefaultContractLimit)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}

		list, err := data.GetContracts(r.Context(), db, level, limit)
		if err != nil {
			slog.Error("failed to list contracts", "error", err)
			writeError(w, r, http.StatusInternalServerError, "failed to list contracts")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func contractHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := data.GetAssessment(r.Context(), db, r.PathValue("id"))
		if errors.Is(err, data.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "contract not found")
			return
		}
		if err != nil {
			slog.Error("failed to get contract", "error", err)
			writeError(w, r, http.StatusInternalServerError, "failed to get contract")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func summaryHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		top, ok := queryParamInt(r, "top", data.DefaultTopSuppliers)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		s, err := data.GetRiskSummary(r.Context(), db, top)
		if err != nil {
			slog.Error("failed to summarize contracts", "error", err)
			writeError(w, r, http.StatusInternalServerError, "failed to summarize contracts")
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

type modelsResponse struct {
	Mode     string        `json:"mode" yaml:"mode"`
	Registry registry.Info `json:"registry" yaml:"registry"`
	Bands    []risk.Band   `json:"risk_bands" yaml:"riskBands"`
}

func newModelsResponse(p *pipeline) modelsResponse {
	return modelsResponse{
		Mode:     string(p.scorer.Mode()),
		Registry: p.registry.Info(),
		Bands:    risk.Bands(),
	}
}

func modelsHandler(p *pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, newModelsResponse(p))
	}
}

// queryParamInt returns def when the parameter is absent and false when it
// is present but not a positive integer.
func queryParamInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
