/*
handlers.go - HTTP API handlers for the footprint ledger

PURPOSE:
  Exposes the ledger operations as request/response pairs. Handlers parse
  input, read one tick from the clock, call the ledger, and serialize the
  result. They hold no domain rules of their own.

ENDPOINTS:
  Registry:
    GET    /api/admin                          Current admin
    PUT    /api/admin                          Transfer adminship
    GET    /api/factors                        List factors
    GET    /api/factors/{category}             Get factor
    PUT    /api/factors/{category}             Upsert factor (admin)

  Ledger (caller = bearer token subject):
    POST   /api/activities                     Log activity
    DELETE /api/activities/{seq}               Delete own activity
    POST   /api/delegates                      Grant delegate
    DELETE /api/delegates/{delegate}           Revoke delegate

  Queries:
    GET    /api/accounts/{account}/footprint?start=&end=
    GET    /api/accounts/{account}/daily/{day}
    GET    /api/accounts/{account}/daily-average?start=&end=
    GET    /api/accounts/{account}/activities?count=
    GET    /api/accounts/{account}/activities/{seq}
    GET    /api/accounts/{account}/sequence
    GET    /api/accounts/{account}/delegates/{delegate}
    GET    /api/accounts/{account}/access      Caller is owner or delegate
    GET    /api/categories/{category}/stats
    GET    /api/stats
    GET    /api/audit?actor=&account=&action=&limit=

ERROR HANDLING:
  - 400: InvalidArgument, InvalidRange, malformed input
  - 401: Missing or invalid bearer token on a write
  - 403: Unauthorized
  - 404: NotFound, FactorNotFound
  - 409: QuotaExceeded
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/footprint-ledger/ledger"
)

// defaultRecentCount is used when ?count= is absent.
const defaultRecentCount = 5

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Ledger
	Clock  ledger.Clock
	Logger *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(l *ledger.Ledger, clock ledger.Clock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Ledger: l, Clock: clock, Logger: logger}
}

// Healthz reports a simple OK status for container health checks.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// =============================================================================
// REGISTRY HANDLERS
// =============================================================================

// GetAdmin returns the current admin.
func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.Ledger.GetAdmin(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminDTO{Admin: string(admin)})
}

// SetAdmin transfers adminship.
func (h *Handler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req SetAdminRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Ledger.SetAdmin(r.Context(), caller, h.Clock.Now(), ledger.Identity(req.NewAdmin)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminDTO{Admin: req.NewAdmin})
}

// ListFactors returns every registered factor.
func (h *Handler) ListFactors(w http.ResponseWriter, r *http.Request) {
	factors, err := h.Ledger.ListFactors(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]FactorDTO, len(factors))
	for i, f := range factors {
		dtos[i] = toFactorDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFactor returns a single factor.
func (h *Handler) GetFactor(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	f, ok, err := h.Ledger.GetFactor(r.Context(), category)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "factor_not_found", "Emission factor not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toFactorDTO(f))
}

// UpdateFactor upserts a factor. Admin only.
func (h *Handler) UpdateFactor(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req UpdateFactorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	category := chi.URLParam(r, "category")
	if err := h.Ledger.UpdateFactor(ctx, caller, h.Clock.Now(), category, req.Factor, req.Unit, req.Description); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	f, _, err := h.Ledger.GetFactor(ctx, category)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFactorDTO(f))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// LogActivity logs an activity for the caller.
func (h *Handler) LogActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req LogActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	seq, err := h.Ledger.LogActivity(r.Context(), caller, h.Clock.Now(), req.Category, req.RawValue)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, LogActivityResponse{Seq: seq})
}

// DeleteActivity deletes one of the caller's activities.
func (h *Handler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	seq, ok := uintParam(w, chi.URLParam(r, "seq"), "seq")
	if !ok {
		return
	}

	if err := h.Ledger.DeleteActivity(r.Context(), caller, h.Clock.Now(), seq); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDelegate grants a delegate on the caller's account.
func (h *Handler) AddDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req AddDelegateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Ledger.AddDelegate(r.Context(), caller, h.Clock.Now(), ledger.Identity(req.Delegate)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DelegateDTO{Account: string(caller), Delegate: req.Delegate, Active: true})
}

// RemoveDelegate revokes a grant on the caller's account.
func (h *Handler) RemoveDelegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	delegate := ledger.Identity(chi.URLParam(r, "delegate"))

	if err := h.Ledger.RemoveDelegate(r.Context(), caller, h.Clock.Now(), delegate); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// GetFootprint sums an account's derived values over a sequence range.
func (h *Handler) GetFootprint(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	start, ok := uintParam(w, r.URL.Query().Get("start"), "start")
	if !ok {
		return
	}
	end, ok := uintParam(w, r.URL.Query().Get("end"), "end")
	if !ok {
		return
	}

	total, err := h.Ledger.GetFootprint(r.Context(), ledger.Identity(account), start, end)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FootprintDTO{Account: account, StartSeq: start, EndSeq: end, Footprint: total})
}

// GetDailyFootprint returns one day's rollup.
func (h *Handler) GetDailyFootprint(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	day, ok := uintParam(w, chi.URLParam(r, "day"), "day")
	if !ok {
		return
	}

	total, err := h.Ledger.GetDailyFootprint(r.Context(), ledger.Identity(account), ledger.Day(day))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DailyFootprintDTO{Account: account, Day: day, Total: total})
}

// GetAverageDailyFootprint averages daily rollups over a closed day range.
func (h *Handler) GetAverageDailyFootprint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := ledger.Identity(chi.URLParam(r, "account"))
	start, ok := uintParam(w, r.URL.Query().Get("start"), "start")
	if !ok {
		return
	}
	end, ok := uintParam(w, r.URL.Query().Get("end"), "end")
	if !ok {
		return
	}

	avg, err := h.Ledger.GetAverageDailyFootprint(ctx, account, ledger.Day(start), ledger.Day(end))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	exact, err := h.Ledger.GetAverageDailyFootprintExact(ctx, account, ledger.Day(start), ledger.Day(end))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AverageDailyFootprintDTO{
		Account:  string(account),
		StartDay: start,
		EndDay:   end,
		Average:  avg,
		Exact:    exact.String(),
	})
}

// GetRecentActivities returns the newest existing records of an account.
func (h *Handler) GetRecentActivities(w http.ResponseWriter, r *http.Request) {
	account := ledger.Identity(chi.URLParam(r, "account"))
	count := defaultRecentCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "count must be a non-negative integer", err)
			return
		}
		count = n
	}

	records, err := h.Ledger.GetRecentActivities(r.Context(), account, count)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	ticksPerDay := h.Ledger.Limits().TicksPerDay
	dtos := make([]ActivityDTO, len(records))
	for i, a := range records {
		dtos[i] = toActivityDTO(a, ticksPerDay)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetActivity returns a single record.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	account := ledger.Identity(chi.URLParam(r, "account"))
	seq, ok := uintParam(w, chi.URLParam(r, "seq"), "seq")
	if !ok {
		return
	}

	a, err := h.Ledger.GetActivity(r.Context(), account, seq)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(a, h.Ledger.Limits().TicksPerDay))
}

// GetSequence returns an account's last issued sequence number.
func (h *Handler) GetSequence(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	seq, err := h.Ledger.GetSequence(r.Context(), ledger.Identity(account))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SequenceDTO{Account: account, Seq: seq})
}

// GetDelegate reports whether a grant is active.
func (h *Handler) GetDelegate(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	delegate := chi.URLParam(r, "delegate")
	active, err := h.Ledger.IsDelegate(r.Context(), ledger.Identity(account), ledger.Identity(delegate))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DelegateDTO{Account: account, Delegate: delegate, Active: active})
}

// GetAccess reports whether the authenticated caller is the account itself
// or one of its active delegates.
func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	account := chi.URLParam(r, "account")
	allowed, err := h.Ledger.CanActFor(r.Context(), ledger.Identity(account), caller)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessDTO{Account: account, Caller: string(caller), Allowed: allowed})
}

// GetCategoryStats returns the global rollup for a category.
func (h *Handler) GetCategoryStats(w http.ResponseWriter, r *http.Request) {
	stat, err := h.Ledger.GetCategoryStats(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryStatsDTO{Category: stat.Category, Count: stat.Count, Total: stat.Total})
}

// GetStats returns the global counters.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.Ledger.GetTotalActivitiesLogged(ctx)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	last, err := h.Ledger.GetLastFactorUpdateTick(ctx)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		TotalActivitiesLogged: total,
		LastFactorUpdateTick:  uint64(last),
		CurrentTick:           uint64(h.Clock.Now()),
		TicksPerDay:           h.Ledger.Limits().TicksPerDay,
	})
}

// GetAudit returns audit entries matching the query filters.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.AuditFilter{
		Actor:   ledger.Identity(q.Get("actor")),
		Account: ledger.Identity(q.Get("account")),
		Action:  ledger.AuditAction(q.Get("action")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "limit must be a non-negative integer", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Ledger.AuditTrail(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func requireCaller(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Bearer token required", nil)
		return "", false
	}
	return caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "Invalid request body", err)
		return false
	}
	return true
}

func uintParam(w http.ResponseWriter, raw, name string) (uint64, bool) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", name+" must be a non-negative integer", err)
		return 0, false
	}
	return v, true
}

// statusFor maps ledger error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidArgument), errors.Is(err, ledger.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrFactorNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err)
		writeError(w, status, "internal", "Internal error", nil)
		return
	}
	writeError(w, status, ledger.Kind(err), err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
