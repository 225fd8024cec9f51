package domain

import "time"

// ReminderKind identifies one of the fixed reminder offsets before a task's
// due instant. The set is closed: adding a kind means updating Offset and
// AllReminderKinds, both of which are exhaustive.
type ReminderKind string

const (
	ReminderDue24h ReminderKind = "DUE_24H"
	ReminderDue1h  ReminderKind = "DUE_1H"
	ReminderDueNow ReminderKind = "DUE_NOW"
)

// AllReminderKinds lists every kind in dispatch order: the earliest offset
// first, so simultaneous catch-up fires read chronologically.
var AllReminderKinds = []ReminderKind{ReminderDue24h, ReminderDue1h, ReminderDueNow}

// Offset returns how long before the due instant this kind fires.
func (k ReminderKind) Offset() time.Duration {
	switch k {
	case ReminderDue24h:
		return 24 * time.Hour
	case ReminderDue1h:
		return time.Hour
	case ReminderDueNow:
		return 0
	}
	return 0
}

// Valid reports whether k is a member of the reminder enum.
func (k ReminderKind) Valid() bool {
	switch k {
	case ReminderDue24h, ReminderDue1h, ReminderDueNow:
		return true
	}
	return false
}

// ReminderState is the set of kinds already fired for a task's current
// due-instant epoch. It only ever grows within an epoch; editing the due
// instant starts a new, empty epoch.
type ReminderState map[ReminderKind]bool

// Has reports whether kind was already fired in this epoch.
func (s ReminderState) Has(kind ReminderKind) bool { return s[kind] }

// Mark records kind as fired, returning a state that includes it. The
// receiver may be nil.
func (s ReminderState) Mark(kind ReminderKind) ReminderState {
	if s == nil {
		s = make(ReminderState, len(AllReminderKinds))
	}
	s[kind] = true
	return s
}

// Kinds returns the fired kinds in dispatch order.
func (s ReminderState) Kinds() []ReminderKind {
	var out []ReminderKind
	for _, k := range AllReminderKinds {
		if s[k] {
			out = append(out, k)
		}
	}
	return out
}
