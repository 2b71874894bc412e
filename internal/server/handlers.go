package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-privacy/sentinel/internal/anonymizer"
	"github.com/sentinel-privacy/sentinel/internal/evidence"
	"github.com/sentinel-privacy/sentinel/internal/otel"
	"github.com/sentinel-privacy/sentinel/internal/ratelimit"
	"github.com/sentinel-privacy/sentinel/internal/requestctx"
)

// AuditIDHeader carries the audit record ID of an audited request.
const AuditIDHeader = "X-Sentinel-Audit-Id"

const defaultAuditLimit = 50

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var errTrailingData = errors.New("unexpected data after JSON object")

// decodeBody decodes a size-limited body holding exactly one JSON value into
// dst. On failure it writes the error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil {
		var extra json.RawMessage
		switch err = dec.Decode(&extra); {
		case errors.Is(err, io.EOF):
			return true
		case err == nil:
			err = errTrailingData
		}
	}

	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
			"request body exceeds "+strconv.FormatInt(maxErr.Limit, 10)+" bytes")
	case errors.As(err, &typeErr):
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity",
			"field "+typeErr.Field+" must be "+typeErr.Type.String())
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is empty")
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.version != "" {
		resp["version"] = s.version
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]interface{}{
			"analyzer": map[string]interface{}{"status": "ok", "entities": s.entities},
		}
		switch {
		case s.auditStore == nil:
			components["audit_store"] = "disabled"
		case s.auditStore.Ping(r.Context()) != nil:
			components["audit_store"] = "error"
			resp["status"] = "degraded"
		default:
			components["audit_store"] = "ok"
		}
		components["rate_limiter"] = limiterKind(s.limiter)
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func limiterKind(l ratelimit.Limiter) string {
	switch l.(type) {
	case *ratelimit.Memory:
		return "memory"
	case *ratelimit.Redis:
		return "redis"
	default:
		return "disabled"
	}
}

// audit writes an audit record for a finished request and, on success, sets
// AuditIDHeader. Failed requests are audited too, with p.Error set.
func (s *Server) audit(ctx context.Context, w http.ResponseWriter, p evidence.GenerateParams) {
	if s.auditGen == nil {
		return
	}
	rec, err := s.auditGen.Generate(context.WithoutCancel(ctx), p)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", p.TenantID).Func(otel.LogTraceFields(ctx)).Msg("audit_record_failed")
		return
	}
	w.Header().Set(AuditIDHeader, rec.ID)
}

type anonymizeRequest struct {
	Text *string `json:"text"`
}

type anonymizeResponse struct {
	CleanText string            `json:"clean_text"`
	Mapping   map[string]string `json:"mapping"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "text is required")
		return
	}

	ctx := r.Context()
	tenantID := requestctx.TenantIDOrDefault(ctx)
	start := time.Now()
	res, err := s.anonymizer.Anonymize(ctx, *req.Text)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Func(otel.LogTraceFields(ctx)).Msg("anonymize_failed")
		s.audit(ctx, w, evidence.GenerateParams{
			TenantID:  tenantID,
			Operation: evidence.OperationAnonymize,
			Input:     *req.Text,
			Duration:  time.Since(start),
			Error:     err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "internal", "anonymization failed")
		return
	}

	types := res.Types()
	s.audit(ctx, w, evidence.GenerateParams{
		TenantID:         tenantID,
		Operation:        evidence.OperationAnonymize,
		EntityTypes:      types,
		EntityCount:      len(res.Entities),
		PlaceholderCount: len(res.Mapping),
		Tier:             res.Tier,
		Input:            *req.Text,
		Output:           res.CleanText,
		Duration:         time.Since(start),
	})

	log.Info().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("tenant_id", tenantID).
		Int("entity_count", len(res.Entities)).
		Strs("entity_types", types).
		Int("tier", res.Tier).
		Func(otel.LogTraceFields(ctx)).
		Msg("anonymize_completed")

	writeJSON(w, http.StatusOK, anonymizeResponse{CleanText: res.CleanText, Mapping: res.Mapping})
}

type deanonymizeRequest struct {
	AIResponse *string             `json:"ai_response"`
	Mapping    *map[string]*string `json:"mapping"`
}

type deanonymizeResponse struct {
	RealHumanText string `json:"real_human_text"`
}

func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	var req deanonymizeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.AIResponse == nil {
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "ai_response is required")
		return
	}
	if req.Mapping == nil {
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "mapping is required")
		return
	}

	mapping := make(map[string]string, len(*req.Mapping))
	for placeholder, original := range *req.Mapping {
		if original == nil {
			writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", "mapping values must be strings")
			return
		}
		mapping[placeholder] = *original
	}

	ctx := r.Context()
	tenantID := requestctx.TenantIDOrDefault(ctx)
	start := time.Now()
	restored, err := anonymizer.Deanonymize(ctx, *req.AIResponse, mapping)
	if err != nil {
		s.audit(ctx, w, evidence.GenerateParams{
			TenantID:         tenantID,
			Operation:        evidence.OperationDeanonymize,
			PlaceholderCount: len(mapping),
			Input:            *req.AIResponse,
			Duration:         time.Since(start),
			Error:            err.Error(),
		})
		if errors.Is(err, anonymizer.ErrEmptyPlaceholder) {
			writeError(w, http.StatusUnprocessableEntity, "unprocessable_entity", err.Error())
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Func(otel.LogTraceFields(ctx)).Msg("deanonymize_failed")
		writeError(w, http.StatusInternalServerError, "internal", "deanonymization failed")
		return
	}

	s.audit(ctx, w, evidence.GenerateParams{
		TenantID:         tenantID,
		Operation:        evidence.OperationDeanonymize,
		PlaceholderCount: len(mapping),
		Input:            *req.AIResponse,
		Output:           restored,
		Duration:         time.Since(start),
	})

	log.Info().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("tenant_id", tenantID).
		Int("mapping_entries", len(mapping)).
		Func(otel.LogTraceFields(ctx)).
		Msg("deanonymize_completed")

	writeJSON(w, http.StatusOK, deanonymizeResponse{RealHumanText: restored})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := evidence.Filter{
		TenantID:  requestctx.TenantID(r.Context()),
		Operation: q.Get("operation"),
		Limit:     defaultAuditLimit,
	}
	if f.TenantID == "" {
		f.TenantID = q.Get("tenant_id")
	}
	if f.Operation != "" && f.Operation != evidence.OperationAnonymize && f.Operation != evidence.OperationDeanonymize {
		writeError(w, http.StatusBadRequest, "invalid_request", "operation must be anonymize or deanonymize")
		return
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	for param, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", param+" must be RFC3339")
			return
		}
		*dst = t
	}

	records, err := s.auditStore.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// auditRecord loads the record named in the URL, hiding records owned by
// another tenant. It writes the error response and returns nil on failure.
func (s *Server) auditRecord(w http.ResponseWriter, r *http.Request) *evidence.Record {
	id := chi.URLParam(r, "id")
	rec, err := s.auditStore.Get(r.Context(), id)
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "audit record "+id+" not found")
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return nil
	}
	if tenantID := requestctx.TenantID(r.Context()); tenantID != "" && tenantID != rec.TenantID {
		writeError(w, http.StatusNotFound, "not_found", "audit record "+id+" not found")
		return nil
	}
	return rec
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	rec := s.auditRecord(w, r)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	rec := s.auditRecord(w, r)
	if rec == nil {
		return
	}
	valid, err := s.auditStore.VerifyRecord(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": rec.ID, "valid": valid})
}
