package numbering

import (
	"fmt"
	"strings"
	"time"

	"numera/internal/core/apperror"
)

// Token is a brace-delimited placeholder in a template string.
// The token set is a closed grammar: any other brace-delimited chunk is a
// validation error, which keeps persisted templates forward-compatible.
type Token string

const (
	// TokenPrefix expands to the rendered prefix template. Format templates only.
	TokenPrefix Token = "{PREFIX}"

	// TokenYear4 is the 4-digit year of the allocation date.
	TokenYear4 Token = "{YYYY}"

	// TokenYear2 is the 2-digit year.
	TokenYear2 Token = "{YY}"

	// TokenMonth is the zero-padded month (01-12).
	TokenMonth Token = "{MM}"

	// TokenSeq is the zero-padded sequence value. Format templates only,
	// exactly once.
	TokenSeq Token = "{SEQ}"
)

// segment is one parsed piece of a template: a literal run or a token.
type segment struct {
	literal string
	token   Token
}

// parseTemplate splits a template into literal and token segments.
// Tokens are matched as complete brace-delimited chunks, so {YY} can never
// shadow {YYYY} the way chained string replacement would. An unclosed brace
// or an unknown chunk fails the parse.
func parseTemplate(tpl string) ([]segment, error) {
	var segs []segment
	for i := 0; i < len(tpl); {
		open := strings.IndexByte(tpl[i:], '{')
		if open < 0 {
			segs = append(segs, segment{literal: tpl[i:]})
			break
		}
		open += i
		if open > i {
			segs = append(segs, segment{literal: tpl[i:open]})
		}
		end := strings.IndexByte(tpl[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unclosed token starting at position %d", open)
		}
		end += open
		chunk := Token(tpl[open : end+1])
		switch chunk {
		case TokenPrefix, TokenYear4, TokenYear2, TokenMonth, TokenSeq:
			segs = append(segs, segment{token: chunk})
		default:
			return nil, fmt.Errorf("unknown token %s", chunk)
		}
		i = end + 1
	}
	return segs, nil
}

// renderSegments substitutes tokens against asOf. The prefix expansion is
// inserted as literal text and never rescanned for tokens.
func renderSegments(segs []segment, prefix, seq string, asOf time.Time) string {
	var b strings.Builder
	for _, s := range segs {
		switch s.token {
		case "":
			b.WriteString(s.literal)
		case TokenPrefix:
			b.WriteString(prefix)
		case TokenYear4:
			b.WriteString(asOf.Format("2006"))
		case TokenYear2:
			b.WriteString(asOf.Format("06"))
		case TokenMonth:
			b.WriteString(asOf.Format("01"))
		case TokenSeq:
			b.WriteString(seq)
		}
	}
	return b.String()
}

// formatSequence zero-pads seq to width digits. Values wider than the
// configured width render in full; truncation would collide numbers, so
// overflow is surfaced as a warning instead.
func formatSequence(seq int64, width int) string {
	return fmt.Sprintf("%0*d", width, seq)
}

// Render produces the final invoice number for cfg with the given sequence
// value at asOf.
//
// Pure function: no I/O, no mutation, identical inputs yield an identical
// string. Invalid configurations are refused (fail closed) so a number is
// never issued from a broken template.
func Render(cfg Config, seq int64, asOf time.Time) (string, error) {
	if res := Validate(cfg); !res.Valid() {
		return "", res.asError()
	}

	prefixSegs, _ := parseTemplate(cfg.PrefixTemplate)
	formatSegs, _ := parseTemplate(cfg.FormatTemplate)

	prefix := renderSegments(prefixSegs, "", "", asOf)
	return renderSegments(formatSegs, prefix, formatSequence(seq, cfg.SequenceLength), asOf), nil
}

// asError converts a failed validation into the standard AppError used
// across the platform.
func (r Result) asError() error {
	err := apperror.NewValidation("numbering configuration is invalid")
	for _, issue := range r.Errors {
		err = err.WithDetail(issue.Field, issue.Message)
	}
	return err
}
