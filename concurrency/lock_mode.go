// Package concurrency implements the transaction manager and the
// hierarchical multi-granularity lock manager of spec.md §4.4 & §5,
// grounded on the original bustub concurrency package
// (original_source/src/concurrency/lock_manager.cpp) for the queue/
// condition-variable crabbing protocol and cycle-detection algorithm,
// and on zhukovaskychina-xmysql-server's
// server/innodb/manager/lock_manager.go for Go idiom: per-resource
// request queues, a wait-for graph, and a ticker-driven background
// detector goroutine. Transaction and LockManager share one package,
// as in the original, to avoid an import cycle between them.
package concurrency

import "fmt"

// LockMode is one of the five hierarchical lock modes of spec.md §4.4.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// compatible reports whether a requester may hold `requested` while
// `held` is already granted, per spec.md §4.4's standard hierarchical
// matrix: IS conflicts only with X; IX with S/SIX/X; S with IX/SIX/X;
// SIX with everything except IS; X with everything.
var compatMatrix = [5][5]bool{
	IntentionShared:          {true, true, true, true, false},
	IntentionExclusive:       {true, true, false, false, false},
	Shared:                   {true, false, true, false, false},
	SharedIntentionExclusive: {true, false, false, false, false},
	Exclusive:                {false, false, false, false, false},
}

func compatible(held, requested LockMode) bool {
	return compatMatrix[held][requested]
}

// allowedUpgrades is spec.md §4.4's upgrade table: IS -> {S, X, IX,
// SIX}, S -> {X, SIX}, IX -> {X, SIX}, SIX -> X. Any other transition
// aborts with IncompatibleUpgrade.
var allowedUpgrades = map[LockMode]map[LockMode]bool{
	IntentionShared:          {Shared: true, Exclusive: true, IntentionExclusive: true, SharedIntentionExclusive: true},
	Shared:                   {Exclusive: true, SharedIntentionExclusive: true},
	IntentionExclusive:       {Exclusive: true, SharedIntentionExclusive: true},
	SharedIntentionExclusive: {Exclusive: true},
}

func allowedUpgrade(from, to LockMode) bool {
	if from == to {
		return true
	}
	return allowedUpgrades[from][to]
}

// isRowCompatibleMode reports whether mode is a valid row lock mode:
// rows only ever take S or X, never an intention mode (spec.md §4.4.3).
func isRowCompatibleMode(mode LockMode) bool {
	return mode == Shared || mode == Exclusive
}
