package dto

import (
	"time"

	"numera/internal/core/numbering"
)

// --- Request DTOs ---

// UpdateNumberingConfigRequest carries an edited numbering rule set.
// Counter state is deliberately absent: rule edits never move the counter.
type UpdateNumberingConfigRequest struct {
	PrefixTemplate      string `json:"prefixTemplate" binding:"required"`
	FormatTemplate      string `json:"formatTemplate" binding:"required"`
	SequenceLength      int    `json:"sequenceLength" binding:"required"`
	ResetFrequency      string `json:"resetFrequency" binding:"required"`
	AllowManualOverride bool   `json:"allowManualOverride"`
}

// ToConfig converts the request to an engine config. Structural checks
// beyond presence are the engine's job, not the binding layer's.
func (r *UpdateNumberingConfigRequest) ToConfig() numbering.Config {
	return numbering.Config{
		PrefixTemplate:      r.PrefixTemplate,
		FormatTemplate:      r.FormatTemplate,
		SequenceLength:      r.SequenceLength,
		ResetFrequency:      numbering.ResetFrequency(r.ResetFrequency),
		AllowManualOverride: r.AllowManualOverride,
	}
}

// ValidateNumberingConfigRequest checks a candidate rule set without saving.
type ValidateNumberingConfigRequest = UpdateNumberingConfigRequest

// ManualOverrideRequest sets the counter to an operator-chosen value.
type ManualOverrideRequest struct {
	NextSequence int64 `json:"nextSequence" binding:"min=0"`
}

// --- Response DTOs ---

// NumberingConfigResponse is the tenant's configuration plus its current
// validation findings.
type NumberingConfigResponse struct {
	PrefixTemplate      string            `json:"prefixTemplate"`
	FormatTemplate      string            `json:"formatTemplate"`
	SequenceLength      int               `json:"sequenceLength"`
	ResetFrequency      string            `json:"resetFrequency"`
	AllowManualOverride bool              `json:"allowManualOverride"`
	NextSequence        int64             `json:"nextSequence"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	Warnings            []numbering.Issue `json:"warnings,omitempty"`
}

// FromConfig builds the response from an engine config.
func FromConfig(cfg numbering.Config, warnings []numbering.Issue) NumberingConfigResponse {
	return NumberingConfigResponse{
		PrefixTemplate:      cfg.PrefixTemplate,
		FormatTemplate:      cfg.FormatTemplate,
		SequenceLength:      cfg.SequenceLength,
		ResetFrequency:      string(cfg.ResetFrequency),
		AllowManualOverride: cfg.AllowManualOverride,
		NextSequence:        cfg.NextSequence,
		UpdatedAt:           cfg.UpdatedAt,
		Warnings:            warnings,
	}
}

// ValidationResultResponse reports errors and warnings for a candidate
// rule set.
type ValidationResultResponse struct {
	Valid    bool              `json:"valid"`
	Errors   []numbering.Issue `json:"errors,omitempty"`
	Warnings []numbering.Issue `json:"warnings,omitempty"`
}

// PreviewResponse shows the number the next allocation would produce.
type PreviewResponse struct {
	Number   string            `json:"number"`
	Warnings []numbering.Issue `json:"warnings,omitempty"`
}

// AllocationResponse is a consumed invoice number.
type AllocationResponse struct {
	Number   string            `json:"number"`
	Sequence int64             `json:"sequence"`
	Warnings []numbering.Issue `json:"warnings,omitempty"`
}
