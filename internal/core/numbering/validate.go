package numbering

import "fmt"

// Issue codes reported by Validate.
const (
	IssueMissingSeq    = "MISSING_SEQ"
	IssueDuplicateSeq  = "DUPLICATE_SEQ"
	IssueBadToken      = "BAD_TOKEN"
	IssueBadLength     = "SEQUENCE_LENGTH_OUT_OF_RANGE"
	IssueBadReset      = "UNKNOWN_RESET_FREQUENCY"
	IssueNegativeNext  = "NEGATIVE_NEXT_SEQUENCE"
	IssuePrefixTooLong = "PREFIX_TOO_LONG"
	IssueSeqOverflow   = "SEQUENCE_OVERFLOW"
	IssueVisualRepeat  = "VISUAL_REPEAT_RISK"
)

// Issue is a single validation finding tied to a config field.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating a Config. Errors block saving the
// configuration, allocation, and preview; warnings are surfaced to the
// operator but never block.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the configuration may be saved and used.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

func (r *Result) addError(code, field, message string) {
	r.Errors = append(r.Errors, Issue{Code: code, Field: field, Message: message})
}

// Validate checks cfg for structural correctness.
func Validate(cfg Config) Result {
	var res Result

	if len(cfg.PrefixTemplate) > MaxPrefixLength {
		res.addError(IssuePrefixTooLong, "prefixTemplate",
			fmt.Sprintf("prefix template exceeds %d characters", MaxPrefixLength))
	}

	prefixSegs, err := parseTemplate(cfg.PrefixTemplate)
	if err != nil {
		res.addError(IssueBadToken, "prefixTemplate", err.Error())
	}
	for _, s := range prefixSegs {
		switch s.token {
		case TokenPrefix:
			res.addError(IssueBadToken, "prefixTemplate", "prefix template cannot reference {PREFIX}")
		case TokenSeq:
			res.addError(IssueBadToken, "prefixTemplate", "prefix template cannot contain {SEQ}")
		}
	}

	formatSegs, err := parseTemplate(cfg.FormatTemplate)
	if err != nil {
		res.addError(IssueBadToken, "formatTemplate", err.Error())
	} else {
		seqCount := 0
		for _, s := range formatSegs {
			if s.token == TokenSeq {
				seqCount++
			}
		}
		switch {
		case seqCount == 0:
			res.addError(IssueMissingSeq, "formatTemplate", "format template must contain {SEQ}")
		case seqCount > 1:
			res.addError(IssueDuplicateSeq, "formatTemplate", "format template must contain {SEQ} exactly once")
		}
	}

	if cfg.SequenceLength < MinSequenceLength || cfg.SequenceLength > MaxSequenceLength {
		res.addError(IssueBadLength, "sequenceLength",
			fmt.Sprintf("sequence length must be between %d and %d", MinSequenceLength, MaxSequenceLength))
	}

	if !cfg.ResetFrequency.Valid() {
		res.addError(IssueBadReset, "resetFrequency",
			fmt.Sprintf("unknown reset frequency %q", cfg.ResetFrequency))
	}

	if cfg.NextSequence < 0 {
		res.addError(IssueNegativeNext, "nextSequence", "next sequence must not be negative")
	}

	if res.Valid() {
		res.Warnings = configWarnings(cfg, cfg.NextSequence)
	}
	return res
}

// configWarnings computes the non-blocking findings for cfg, evaluating the
// digit overflow against the sequence value that would render next.
func configWarnings(cfg Config, seq int64) []Issue {
	var warnings []Issue

	if overflows(seq, cfg.SequenceLength) {
		warnings = append(warnings, Issue{
			Code:  IssueSeqOverflow,
			Field: "sequenceLength",
			Message: fmt.Sprintf(
				"sequence %d no longer fits in %d digits; numbers render full-width, consider widening sequenceLength",
				seq, cfg.SequenceLength),
		})
	}

	if cfg.ResetFrequency == ResetNever && hasDateTokens(cfg) {
		warnings = append(warnings, Issue{
			Code:  IssueVisualRepeat,
			Field: "resetFrequency",
			Message: "date tokens with reset frequency NEVER: numbers stay unique via the sequence, " +
				"but the date portion will repeat across periods",
		})
	}

	return warnings
}

// overflows reports whether seq needs more than width digits.
func overflows(seq int64, width int) bool {
	if width < MinSequenceLength || width > MaxSequenceLength {
		return false
	}
	limit := int64(1)
	for i := 0; i < width; i++ {
		limit *= 10
	}
	return seq >= limit
}

func hasDateTokens(cfg Config) bool {
	for _, tpl := range []string{cfg.PrefixTemplate, cfg.FormatTemplate} {
		segs, err := parseTemplate(tpl)
		if err != nil {
			continue
		}
		for _, s := range segs {
			switch s.token {
			case TokenYear4, TokenYear2, TokenMonth:
				return true
			}
		}
	}
	return false
}
