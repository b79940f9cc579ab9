package numbering

import (
	"testing"
	"time"
)

var march2024 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func baseConfig() Config {
	return Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetYearly,
		NextSequence:   1,
	}
}

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		tpl     string
		wantErr bool
		want    int // segment count
	}{
		{name: "literal only", tpl: "INV", want: 1},
		{name: "empty", tpl: "", want: 0},
		{name: "single token", tpl: "{SEQ}", want: 1},
		{name: "mixed", tpl: "INV-{YYYY}-{SEQ}", want: 4},
		{name: "unknown token", tpl: "{FOO}", wantErr: true},
		{name: "unclosed brace", tpl: "INV-{YYYY", wantErr: true},
		{name: "empty braces", tpl: "{}", wantErr: true},
		{name: "lowercase rejected", tpl: "{seq}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, err := parseTemplate(tt.tpl)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.tpl)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(segs) != tt.want {
				t.Errorf("expected %d segments, got %d", tt.want, len(segs))
			}
		})
	}
}

func TestParseTemplate_YearTokensDoNotCollide(t *testing.T) {
	// {YY} inside a template must never be matched as the head of {YYYY}.
	segs, err := parseTemplate("{YY}{YYYY}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].token != TokenYear2 || segs[1].token != TokenYear4 {
		t.Errorf("tokens misparsed: %+v", segs)
	}
}

func TestRender_EndToEnd(t *testing.T) {
	got, err := Render(baseConfig(), 1, march2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "INV-2024-0001" {
		t.Errorf("expected INV-2024-0001, got %s", got)
	}
}

func TestRender_AllTokens(t *testing.T) {
	cfg := baseConfig()
	cfg.PrefixTemplate = "A{YY}"
	cfg.FormatTemplate = "{PREFIX}/{MM}/{YYYY}-{SEQ}"
	cfg.SequenceLength = 3

	got, err := Render(cfg, 7, march2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A24/03/2024-007" {
		t.Errorf("expected A24/03/2024-007, got %s", got)
	}
}

func TestRender_Deterministic(t *testing.T) {
	cfg := baseConfig()
	first, err := Render(cfg, 42, march2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Render(cfg, 42, march2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("render not deterministic: %s vs %s", first, second)
	}
}

func TestRender_PrefixNotRescanned(t *testing.T) {
	// A prefix expanding to text containing braces-lookalike literals must
	// be inserted verbatim, not re-parsed.
	cfg := baseConfig()
	cfg.PrefixTemplate = "INV"
	cfg.FormatTemplate = "{PREFIX}{PREFIX}-{SEQ}"
	cfg.SequenceLength = 2

	got, err := Render(cfg, 5, march2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "INVINV-05" {
		t.Errorf("expected INVINV-05, got %s", got)
	}
}

func TestRender_InvalidConfigRefused(t *testing.T) {
	cfg := baseConfig()
	cfg.FormatTemplate = "{PREFIX}-{YYYY}" // no {SEQ}

	if _, err := Render(cfg, 1, march2024); err == nil {
		t.Fatal("expected error for template without sequence token")
	}
}

func TestFormatSequence(t *testing.T) {
	tests := []struct {
		seq   int64
		width int
		want  string
	}{
		{7, 3, "007"},
		{7, 5, "00007"},
		{1234, 3, "1234"}, // overflow renders full width
		{0, 4, "0000"},
		{10000000000, 10, "10000000000"},
	}

	for _, tt := range tests {
		if got := formatSequence(tt.seq, tt.width); got != tt.want {
			t.Errorf("formatSequence(%d, %d) = %s, want %s", tt.seq, tt.width, got, tt.want)
		}
	}
}
