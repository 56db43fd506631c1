/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names follow the
  ledger's data model in snake_case so collaborating services (marketplace,
  staking, governance) can read the same names they expect.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.
*/
package api

import "github.com/warp/footprint-ledger/ledger"

// =============================================================================
// REGISTRY
// =============================================================================

// AdminDTO reports the current admin.
type AdminDTO struct {
	Admin string `json:"admin"`
}

// SetAdminRequest hands adminship to another identity.
type SetAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// FactorDTO represents an emission factor.
type FactorDTO struct {
	Category    string `json:"category"`
	Factor      uint64 `json:"factor"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	UpdatedAt   uint64 `json:"updated_at"`
}

// UpdateFactorRequest upserts the factor for the category in the path.
type UpdateFactorRequest struct {
	Factor      uint64 `json:"factor"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// LogActivityRequest logs an activity for the authenticated caller.
type LogActivityRequest struct {
	Category string `json:"category"`
	RawValue uint64 `json:"raw_value"`
}

// LogActivityResponse returns the sequence number issued.
type LogActivityResponse struct {
	Seq uint64 `json:"seq"`
}

// ActivityDTO represents a ledger record.
type ActivityDTO struct {
	Account      string `json:"account"`
	Seq          uint64 `json:"seq"`
	Category     string `json:"category"`
	RawValue     uint64 `json:"raw_value"`
	LoggedAt     uint64 `json:"logged_at"`
	Day          uint64 `json:"day"`
	DerivedValue uint64 `json:"derived_value"`
}

// SequenceDTO reports an account's last issued sequence number.
type SequenceDTO struct {
	Account string `json:"account"`
	Seq     uint64 `json:"seq"`
}

// =============================================================================
// QUERIES
// =============================================================================

// FootprintDTO is the sum over a sequence range.
type FootprintDTO struct {
	Account   string `json:"account"`
	StartSeq  uint64 `json:"start_seq"`
	EndSeq    uint64 `json:"end_seq"`
	Footprint uint64 `json:"footprint"`
}

// DailyFootprintDTO is one day's rollup.
type DailyFootprintDTO struct {
	Account string `json:"account"`
	Day     uint64 `json:"day"`
	Total   uint64 `json:"total"`
}

// AverageDailyFootprintDTO is the floor average plus the exact value as a
// decimal string.
type AverageDailyFootprintDTO struct {
	Account  string `json:"account"`
	StartDay uint64 `json:"start_day"`
	EndDay   uint64 `json:"end_day"`
	Average  uint64 `json:"average"`
	Exact    string `json:"exact"`
}

// CategoryStatsDTO is the global rollup for a category.
type CategoryStatsDTO struct {
	Category string `json:"category"`
	Count    uint64 `json:"count"`
	Total    uint64 `json:"total"`
}

// StatsDTO carries the global counters.
type StatsDTO struct {
	TotalActivitiesLogged uint64 `json:"total_activities_logged"`
	LastFactorUpdateTick  uint64 `json:"last_factor_update_tick"`
	CurrentTick           uint64 `json:"current_tick"`
	TicksPerDay           uint64 `json:"ticks_per_day"`
}

// =============================================================================
// DELEGATION
// =============================================================================

// AddDelegateRequest grants a delegate on the caller's account.
type AddDelegateRequest struct {
	Delegate string `json:"delegate"`
}

// DelegateDTO reports whether a grant is active.
type DelegateDTO struct {
	Account  string `json:"account"`
	Delegate string `json:"delegate"`
	Active   bool   `json:"active"`
}

// AccessDTO reports whether the caller may read on the account's behalf.
type AccessDTO struct {
	Account string `json:"account"`
	Caller  string `json:"caller"`
	Allowed bool   `json:"allowed"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID       string `json:"id"`
	Tick     uint64 `json:"tick"`
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Account  string `json:"account,omitempty"`
	Category string `json:"category,omitempty"`
	Seq      uint64 `json:"seq,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toFactorDTO(f ledger.EmissionFactor) FactorDTO {
	return FactorDTO{
		Category:    f.Category,
		Factor:      f.Factor,
		Unit:        f.Unit,
		Description: f.Description,
		UpdatedAt:   uint64(f.UpdatedAt),
	}
}

func toActivityDTO(a ledger.Activity, ticksPerDay uint64) ActivityDTO {
	return ActivityDTO{
		Account:      string(a.Account),
		Seq:          a.Seq,
		Category:     a.Category,
		RawValue:     a.RawValue,
		LoggedAt:     uint64(a.LoggedAt),
		Day:          uint64(ledger.DayOf(a.LoggedAt, ticksPerDay)),
		DerivedValue: a.DerivedValue,
	}
}

func toAuditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:       e.ID,
		Tick:     uint64(e.Tick),
		Actor:    string(e.Actor),
		Action:   string(e.Action),
		Account:  string(e.Account),
		Category: e.Category,
		Seq:      e.Seq,
		Detail:   e.Detail,
	}
}
