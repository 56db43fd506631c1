package ledger

import "github.com/google/uuid"

// =============================================================================
// AUDIT LOG - Who changed what, appended inside the same unit of work
// =============================================================================

// AuditEntry records one successful mutation.
type AuditEntry struct {
	ID       string
	Tick     Tick
	Actor    Identity
	Action   AuditAction
	Account  Identity // owning account, empty for registry actions
	Category string
	Seq      uint64
	Detail   string
}

type AuditAction string

const (
	AuditActivityLogged  AuditAction = "activity_logged"
	AuditActivityDeleted AuditAction = "activity_deleted"
	AuditFactorUpdated   AuditAction = "factor_updated"
	AuditAdminChanged    AuditAction = "admin_changed"
	AuditDelegateAdded   AuditAction = "delegate_added"
	AuditDelegateRemoved AuditAction = "delegate_removed"
)

// AuditFilter narrows an audit query. Zero fields match everything. A
// positive Limit keeps only the most recent Limit matches.
type AuditFilter struct {
	Actor   Identity
	Account Identity
	Action  AuditAction
	Limit   int
}

// Matches reports whether e satisfies the filter (Limit is ignored).
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Account != "" && e.Account != f.Account {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

func newAuditEntry(tick Tick, actor Identity, action AuditAction) AuditEntry {
	return AuditEntry{
		ID:     uuid.NewString(),
		Tick:   tick,
		Actor:  actor,
		Action: action,
	}
}
