package ledger

// Observer receives notifications after units of work commit or fail.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ActivityLogged(a Activity)
	ActivityDeleted(a Activity)
	FactorUpdated(f EmissionFactor)
	OperationFailed(op string, err error)
}

type nopObserver struct{}

func (nopObserver) ActivityLogged(Activity) {}
func (nopObserver) ActivityDeleted(Activity) {}
func (nopObserver) FactorUpdated(EmissionFactor) {}
func (nopObserver) OperationFailed(string, error) {}
