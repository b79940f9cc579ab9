package numbering

import (
	"time"

	"numera/internal/core/apperror"
	"numera/internal/core/security"
)

// Allocation is the result of consuming one sequence value.
type Allocation struct {
	// Number is the rendered invoice number.
	Number string `json:"number"`

	// Sequence is the numeric value that was consumed.
	Sequence int64 `json:"sequence"`

	// Config is the updated state. It must be persisted in the same
	// transaction that observes Number; otherwise a crash replays the value.
	Config Config `json:"-"`

	// Warnings are non-blocking findings (e.g. digit overflow).
	Warnings []Issue `json:"warnings,omitempty"`
}

// AllocateNext consumes the next sequence value under cfg at now and renders
// the invoice number for it.
//
// The engine is stateless between calls: it reads cfg, decides whether a
// period reset applies, and returns the updated state. At-most-once
// consumption of each value is the storage layer's contract - callers must
// hold the tenant's config row lock for the read-allocate-save cycle.
func AllocateNext(cfg Config, now time.Time) (*Allocation, error) {
	if res := Validate(cfg); !res.Valid() {
		return nil, res.asError()
	}

	key := PeriodKey(cfg.ResetFrequency, now)
	seq := cfg.NextSequence
	if key != "" && cfg.LastPeriodKey != "" && cfg.LastPeriodKey != key {
		// First allocation of a new period: restart at the floor. Under
		// NEVER the key is empty and a leftover key from an earlier
		// frequency must not read as a period change.
		seq = SequenceFloor
	}

	number, err := Render(cfg, seq, now)
	if err != nil {
		return nil, err
	}

	updated := cfg
	updated.NextSequence = seq + 1
	updated.LastPeriodKey = key
	updated.UpdatedAt = now

	return &Allocation{
		Number:   number,
		Sequence: seq,
		Config:   updated,
		Warnings: configWarnings(cfg, seq),
	}, nil
}

// Preview renders the number the next allocation would produce, including a
// pending period reset, without consuming anything. Used by the settings and
// invoice UIs to display what the next number will look like.
func Preview(cfg Config, now time.Time) (string, []Issue, error) {
	alloc, err := AllocateNext(cfg, now)
	if err != nil {
		return "", nil, err
	}
	return alloc.Number, alloc.Warnings, nil
}

// ApplyManualOverride replaces the counter with an operator-chosen value and
// clears period tracking so the next allocation recomputes it fresh.
//
// The check lives in the engine, not the UI: a caller that skips the settings
// screen still cannot bypass the per-tenant switch or the role requirement.
func ApplyManualOverride(cfg Config, requestedNext int64, actor security.Role) (Config, error) {
	if !cfg.AllowManualOverride {
		return Config{}, apperror.NewForbidden("manual override is disabled for this tenant")
	}
	if !actor.Can(security.CapabilityNumberingOverride) {
		return Config{}, apperror.NewForbidden("role lacks numbering override capability").
			WithDetail("role", string(actor))
	}
	if requestedNext < 0 {
		return Config{}, apperror.NewInvalidValue("nextSequence", requestedNext)
	}

	updated := cfg
	updated.NextSequence = requestedNext
	updated.LastPeriodKey = ""
	return updated, nil
}
