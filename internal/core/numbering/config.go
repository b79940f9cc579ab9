// Package numbering implements the invoice numbering engine: a closed token
// grammar for number templates, structural validation, and a deterministic
// sequence allocator with periodic reset semantics.
//
// The engine is pure logic. Persistence and per-tenant serialization of
// allocations live in the infrastructure layer; callers run AllocateNext
// inside the transaction that saves the returned state.
package numbering

import "time"

// ResetFrequency controls when the sequence counter rolls back to its floor.
type ResetFrequency string

const (
	// ResetNever keeps a single continuous counter for the tenant.
	ResetNever ResetFrequency = "NEVER"

	// ResetYearly restarts the counter at the first allocation of a new year.
	ResetYearly ResetFrequency = "YEARLY"

	// ResetMonthly restarts the counter at the first allocation of a new month.
	ResetMonthly ResetFrequency = "MONTHLY"
)

// Valid reports whether f is a recognized reset frequency.
func (f ResetFrequency) Valid() bool {
	switch f {
	case ResetNever, ResetYearly, ResetMonthly:
		return true
	}
	return false
}

// SequenceFloor is the value the counter restarts from after a period reset.
const SequenceFloor int64 = 1

// Configuration field limits.
const (
	MinSequenceLength = 1
	MaxSequenceLength = 10

	// MaxPrefixLength bounds the prefix template before token expansion.
	MaxPrefixLength = 24
)

// Config is the tenant-scoped numbering configuration.
// Exactly one Config is authoritative per tenant at any time; updates
// replace it atomically (the repository enforces this with a single row
// per tenant).
type Config struct {
	// PrefixTemplate expands into the {PREFIX} token and may itself embed
	// date tokens (e.g. "INV-{YYYY}").
	PrefixTemplate string `db:"prefix_template" json:"prefixTemplate"`

	// FormatTemplate is literal text plus tokens. It must contain {SEQ}
	// exactly once: without it, rendered numbers are not unique.
	FormatTemplate string `db:"format_template" json:"formatTemplate"`

	// SequenceLength is the zero-padded digit count for {SEQ}.
	SequenceLength int `db:"sequence_length" json:"sequenceLength"`

	// ResetFrequency controls periodic counter resets.
	ResetFrequency ResetFrequency `db:"reset_frequency" json:"resetFrequency"`

	// AllowManualOverride gates whether a privileged caller may set
	// NextSequence directly.
	AllowManualOverride bool `db:"allow_manual_override" json:"allowManualOverride"`

	// NextSequence is the next value to allocate. Mutated transactionally.
	NextSequence int64 `db:"next_sequence" json:"nextSequence"`

	// LastPeriodKey is the period key of the most recent allocation.
	// Empty when the tenant has never allocated or after a manual override.
	LastPeriodKey string `db:"last_period_key" json:"-"`

	// UpdatedAt is informational.
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DefaultConfig returns the configuration a freshly provisioned tenant
// starts with.
func DefaultConfig() Config {
	return Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 5,
		ResetFrequency: ResetYearly,
		NextSequence:   SequenceFloor,
	}
}

// PeriodKey derives the reset window key for now under freq.
// NEVER maps to the empty key, so the counter never rolls over.
func PeriodKey(freq ResetFrequency, now time.Time) string {
	switch freq {
	case ResetYearly:
		return now.Format("2006")
	case ResetMonthly:
		return now.Format("2006-01")
	default:
		return ""
	}
}
