package concurrency

import (
	"fmt"

	"storagecore/types"
)

// AbortReason is the abort taxonomy of spec.md §7.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	LockSharedOnReadUncommitted
	UpgradeConflict
	IncompatibleUpgrade
	TableLockNotPresent
	TableUnlockedBeforeUnlockingRows
	AttemptedUnlockButNoLockHeld
	AttemptedIntentionLockOnRow
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	default:
		return "UNKNOWN_ABORT_REASON"
	}
}

// AbortError is returned (and also recorded as the transaction's state
// flip to ABORTED) when a lock request violates one of the §7 rules.
type AbortError struct {
	TxnID  types.TxnID
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}
