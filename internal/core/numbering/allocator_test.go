package numbering

import (
	"testing"
	"time"

	"numera/internal/core/security"
)

func TestAllocateNext_FirstAllocation(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetYearly,
		NextSequence:   1,
	}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	alloc, err := AllocateNext(cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Number != "INV-2024-0001" {
		t.Errorf("expected INV-2024-0001, got %s", alloc.Number)
	}
	if alloc.Config.NextSequence != 2 {
		t.Errorf("expected next sequence 2, got %d", alloc.Config.NextSequence)
	}
	if alloc.Config.LastPeriodKey != "2024" {
		t.Errorf("expected period key 2024, got %s", alloc.Config.LastPeriodKey)
	}
}

func TestAllocateNext_YearlyReset(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetYearly,
		NextSequence:   2,
		LastPeriodKey:  "2024",
	}

	alloc, err := AllocateNext(cfg, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Number != "INV-2025-0001" {
		t.Errorf("expected INV-2025-0001, got %s", alloc.Number)
	}
	if alloc.Sequence != SequenceFloor {
		t.Errorf("expected reset to floor, got %d", alloc.Sequence)
	}
	if alloc.Config.NextSequence != 2 {
		t.Errorf("expected next sequence 2 under new period, got %d", alloc.Config.NextSequence)
	}
	if alloc.Config.LastPeriodKey != "2025" {
		t.Errorf("expected period key 2025, got %s", alloc.Config.LastPeriodKey)
	}
}

func TestAllocateNext_MonthlyReset(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "{YYYY}{MM}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 3,
		ResetFrequency: ResetMonthly,
		NextSequence:   15,
		LastPeriodKey:  "2024-03",
	}

	// Same month: no reset.
	alloc, err := AllocateNext(cfg, time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Number != "202403-015" {
		t.Errorf("expected 202403-015, got %s", alloc.Number)
	}

	// Next month: reset.
	alloc, err = AllocateNext(cfg, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Number != "202404-001" {
		t.Errorf("expected 202404-001, got %s", alloc.Number)
	}
}

func TestAllocateNext_NeverReset(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 5,
		ResetFrequency: ResetNever,
		NextSequence:   100,
		LastPeriodKey:  "",
	}

	// Years apart, counter keeps running.
	first, err := AllocateNext(cfg, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := AllocateNext(first.Config, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Number != "INV-00100" || second.Number != "INV-00101" {
		t.Errorf("expected continuous counter, got %s then %s", first.Number, second.Number)
	}
}

func TestAllocateNext_NeverIgnoresStaleKey(t *testing.T) {
	// Counter state written under YEARLY, frequency since switched to
	// NEVER. The leftover key must not trigger a reset: a reset here would
	// reissue numbers already consumed this year.
	cfg := Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetNever,
		NextSequence:   2,
		LastPeriodKey:  "2024",
	}

	alloc, err := AllocateNext(cfg, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Sequence != 2 {
		t.Fatalf("expected counter to continue at 2, got %d", alloc.Sequence)
	}
	if alloc.Number != "INV-2024-0002" {
		t.Errorf("expected INV-2024-0002, got %s", alloc.Number)
	}
	if alloc.Config.LastPeriodKey != "" {
		t.Errorf("expected empty period key under NEVER, got %q", alloc.Config.LastPeriodKey)
	}
}

func TestAllocateNext_MonotonicWithinPeriod(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetYearly,
		NextSequence:   1,
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	seen := make(map[string]bool)
	var prev int64
	for i := 0; i < 50; i++ {
		alloc, err := AllocateNext(cfg, now)
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
		if seen[alloc.Number] {
			t.Fatalf("duplicate number %s at allocation %d", alloc.Number, i)
		}
		seen[alloc.Number] = true
		if alloc.Sequence <= prev && i > 0 {
			t.Fatalf("sequence not increasing: %d after %d", alloc.Sequence, prev)
		}
		prev = alloc.Sequence
		cfg = alloc.Config
	}
}

func TestAllocateNext_OverflowWarnsButAllocates(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 3,
		ResetFrequency: ResetNever,
		NextSequence:   1234,
	}

	alloc, err := AllocateNext(cfg, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alloc.Number != "INV-1234" {
		t.Errorf("expected full-width INV-1234, got %s", alloc.Number)
	}
	if findIssue(alloc.Warnings, IssueSeqOverflow) == nil {
		t.Errorf("expected overflow warning, got %+v", alloc.Warnings)
	}
}

func TestAllocateNext_InvalidConfigRefused(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FormatTemplate = "{PREFIX}"

	if _, err := AllocateNext(cfg, time.Now()); err == nil {
		t.Fatal("expected allocation to refuse invalid config")
	}
}

func TestPreview_MatchesAllocation(t *testing.T) {
	cfg := Config{
		PrefixTemplate: "INV-{YYYY}",
		FormatTemplate: "{PREFIX}-{SEQ}",
		SequenceLength: 4,
		ResetFrequency: ResetYearly,
		NextSequence:   7,
		LastPeriodKey:  "2024",
	}
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	previewed, _, err := Preview(cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	alloc, err := AllocateNext(cfg, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if previewed != alloc.Number {
		t.Errorf("preview %s does not match allocation %s", previewed, alloc.Number)
	}
}

func TestApplyManualOverride(t *testing.T) {
	cfg := Config{
		PrefixTemplate:      "INV-{YYYY}",
		FormatTemplate:      "{PREFIX}-{SEQ}",
		SequenceLength:      4,
		ResetFrequency:      ResetYearly,
		AllowManualOverride: true,
		NextSequence:        42,
		LastPeriodKey:       "2024",
	}

	updated, err := ApplyManualOverride(cfg, 100, security.RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.NextSequence != 100 {
		t.Errorf("expected next sequence 100, got %d", updated.NextSequence)
	}
	if updated.LastPeriodKey != "" {
		t.Errorf("expected cleared period key, got %s", updated.LastPeriodKey)
	}
}

func TestApplyManualOverride_Gating(t *testing.T) {
	enabled := Config{AllowManualOverride: true}
	disabled := Config{AllowManualOverride: false}

	// Disabled by config: fails regardless of role.
	if _, err := ApplyManualOverride(disabled, 10, security.RoleAdmin); err == nil {
		t.Error("expected failure when override is disabled")
	}

	// Role without the capability.
	for _, role := range []security.Role{security.RoleAccountant, security.RoleManager, security.RoleViewer} {
		if _, err := ApplyManualOverride(enabled, 10, role); err == nil {
			t.Errorf("expected failure for role %s", role)
		}
	}

	// Negative value.
	if _, err := ApplyManualOverride(enabled, -1, security.RoleAdmin); err == nil {
		t.Error("expected failure for negative value")
	}
}

func TestPeriodKey(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		freq ResetFrequency
		want string
	}{
		{ResetNever, ""},
		{ResetYearly, "2024"},
		{ResetMonthly, "2024-03"},
	}

	for _, tt := range tests {
		if got := PeriodKey(tt.freq, now); got != tt.want {
			t.Errorf("PeriodKey(%s) = %q, want %q", tt.freq, got, tt.want)
		}
	}
}
