package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"txguard/internal/engine"
	"txguard/internal/health"
	"txguard/internal/ingest"
	"txguard/internal/logging"
	"txguard/internal/model"
)

const maxBodyBytes = 1 << 20

type evaluationResponse struct {
	EvaluationID  string                 `json:"evaluation_id"`
	TransactionID string                 `json:"transaction_id"`
	Verdict       model.Verdict          `json:"verdict"`
	Risk          *model.TransactionRisk `json:"risk"`
	EvaluatedAt   time.Time              `json:"evaluated_at"`
}

type listsPayload struct {
	SuspiciousIPs     []string `json:"suspicious_ips"`
	HighRiskCountries []string `json:"high_risk_countries"`
}

type statusResponse struct {
	Status       string          `json:"status"`
	Time         string          `json:"time"`
	Uptime       string          `json:"uptime"`
	Version      string          `json:"version"`
	ConfigPath   string          `json:"config_path"`
	TrackedUsers int             `json:"tracked_users"`
	Ingest       ingestStatus    `json:"ingest"`
	Detection    detectionStatus `json:"detection"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	FileTail  bool `json:"file_tail"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
}

type detectionStatus struct {
	AmountThreshold   float64 `json:"amount_threshold"`
	VelocityThreshold int     `json:"velocity_threshold"`
	VelocityWindow    string  `json:"velocity_window"`
	ZScoreThreshold   float64 `json:"zscore_threshold"`
	FraudThreshold    float64 `json:"fraud_threshold"`
	Retention         string  `json:"retention"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, checks := true, []health.Status{}
	if s.health != nil {
		healthy, checks = s.health.CheckAll(r.Context())
	}
	body := map[string]any{"healthy": healthy, "checks": checks}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Data: body})
		return
	}
	ok(w, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	retention := "keep_all"
	if cfg.History.Retention > 0 {
		retention = cfg.History.Retention.String()
	}
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
		},
		Detection: detectionStatus{
			AmountThreshold:   cfg.Detection.AmountThreshold,
			VelocityThreshold: cfg.Detection.VelocityThreshold,
			VelocityWindow:    cfg.Detection.VelocityWindow.String(),
			ZScoreThreshold:   cfg.Detection.ZScoreThreshold,
			FraudThreshold:    cfg.Detection.FraudThreshold,
			Retention:         retention,
		},
	}
	if s.engine != nil {
		resp.TrackedUsers = s.engine.TrackedUsers()
	}
	ok(w, resp)
}

// handleEvaluate scores one transaction synchronously. A body that is valid
// JSON but not an object is evaluated as a non-record and rejected as such.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "INVALID_BODY", "could not read request body")
		return
	}
	fields, err := ingest.ParseJSONBytes(body)
	switch {
	case errors.Is(err, ingest.ErrNotObject):
		fields = nil
	case err != nil:
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	default:
		fields.Source = "api"
	}

	res := s.proc.Process(r.Context(), fields)
	switch res.Verdict {
	case model.VerdictInvalid:
		fail(w, http.StatusUnprocessableEntity, "INVALID_TRANSACTION", res.Reason)
	case model.VerdictProcessingError:
		internalError(w, engine.ProcessingErrorReason)
	default:
		created(w, evaluationResponse{
			EvaluationID:  res.EvaluationID,
			TransactionID: res.Transaction.ID,
			Verdict:       res.Verdict,
			Risk:          res.Risk,
			EvaluatedAt:   res.EvaluatedAt,
		})
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		badRequest(w, "INVALID_LIMIT", err.Error())
		return
	}
	var list []model.Alert
	if v := r.URL.Query().Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(w, "INVALID_SINCE", "since must be an RFC 3339 timestamp")
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit)
	}
	ok(w, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		fail(w, http.StatusNotFound, "STORAGE_DISABLED", "audit storage is not enabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		badRequest(w, "INVALID_LIMIT", err.Error())
		return
	}
	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("audit query failed", "err", err)
		internalError(w, "could not read audit records")
		return
	}
	ok(w, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) handleGetLists(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	effective := s.engine.Lists()
	ok(w, map[string]any{
		"configured": listsPayload{
			SuspiciousIPs:     nonNil(cfg.Detection.SuspiciousIPs),
			HighRiskCountries: nonNil(cfg.Detection.HighRiskCountries),
		},
		"effective": listsPayload{
			SuspiciousIPs:     nonNil(effective.IPs()),
			HighRiskCountries: nonNil(effective.Countries()),
		},
	})
}

// handlePutLists replaces the configured lists, persists them through the
// config manager and applies them to the engine.
func (s *Server) handlePutLists(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "INVALID_BODY", "could not read request body")
		return
	}
	var req listsPayload
	if err := json.Unmarshal(body, &req); err != nil {
		badRequest(w, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	next, err := s.cfg.UpdateLists(
		sanitizeList(req.SuspiciousIPs, false),
		sanitizeList(req.HighRiskCountries, true),
	)
	if err != nil {
		logging.FromContext(r.Context()).Error("list update failed", "err", err)
		internalError(w, "could not save lists")
		return
	}
	s.engine.UpdateConfig(next)
	logging.FromContext(r.Context()).Info("risk lists updated",
		"suspicious_ips", len(next.Detection.SuspiciousIPs),
		"high_risk_countries", len(next.Detection.HighRiskCountries))
	ok(w, listsPayload{
		SuspiciousIPs:     next.Detection.SuspiciousIPs,
		HighRiskCountries: next.Detection.HighRiskCountries,
	})
}

// handleReset discards in-memory history and alerts. Audit records are kept.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	if s.alerts != nil {
		s.alerts.Clear()
	}
	logging.FromContext(r.Context()).Warn("history and alerts reset")
	ok(w, map[string]string{"status": "ok"})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func sanitizeList(values []string, upper bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if upper {
			v = strings.ToUpper(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
