package numbering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/security"
	"numera/internal/core/tx"
)

// Mock objects

type mockRepo struct {
	cfg     corenumbering.Config
	getErr  error
	saveErr error
	saved   []corenumbering.Config
	locks   int
}

func (m *mockRepo) Get(ctx context.Context) (*corenumbering.Config, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	cfg := m.cfg
	return &cfg, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context) (*corenumbering.Config, error) {
	m.locks++
	return m.Get(ctx)
}

func (m *mockRepo) Save(ctx context.Context, cfg corenumbering.Config) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, cfg)
	m.cfg = cfg
	return nil
}

func (m *mockRepo) CreateDefault(ctx context.Context) (*corenumbering.Config, error) {
	cfg := corenumbering.DefaultConfig()
	m.cfg = cfg
	return &cfg, nil
}

// mockTxManager runs fn directly. Nested-call reuse is covered by the
// postgres implementation's own tests.
type mockTxManager struct {
	calls int
}

func (m *mockTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// readOnlyTxManager additionally satisfies tx.ReadOnlyManager.
type readOnlyTxManager struct {
	mockTxManager
	roCalls int
}

var _ tx.ReadOnlyManager = (*readOnlyTxManager)(nil)

func (m *readOnlyTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.roCalls++
	return fn(ctx)
}

func newTestService(repo *mockRepo, at time.Time) (*Service, *mockTxManager) {
	txm := &mockTxManager{}
	svc := NewService(repo, txm, nil)
	svc.now = func() time.Time { return at }
	return svc, txm
}

func adminContext() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:   "u-admin",
		TenantID: "t-1",
		Roles:    []security.Role{security.RoleAdmin},
		IsAdmin:  true,
	})
}

func accountantContext() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:   "u-acct",
		TenantID: "t-1",
		Roles:    []security.Role{security.RoleAccountant},
	})
}

func yearlyConfig() corenumbering.Config {
	return corenumbering.Config{
		PrefixTemplate:      "INV-{YYYY}",
		FormatTemplate:      "{PREFIX}-{SEQ}",
		SequenceLength:      5,
		ResetFrequency:      corenumbering.ResetYearly,
		AllowManualOverride: true,
		NextSequence:        1,
	}
}

func TestAllocateNext_Sequential(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, txm := newTestService(repo, at)
	ctx := accountantContext()

	first, err := svc.AllocateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", first.Number)
	assert.Equal(t, int64(1), first.Sequence)

	second, err := svc.AllocateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00002", second.Number)

	// Each allocation takes the row lock and persists the moved counter.
	assert.Equal(t, 2, repo.locks)
	assert.Equal(t, 2, txm.calls)
	require.Len(t, repo.saved, 2)
	assert.Equal(t, int64(3), repo.saved[1].NextSequence)
	assert.Equal(t, "2025", repo.saved[1].LastPeriodKey)
}

func TestAllocateNext_YearRollover(t *testing.T) {
	cfg := yearlyConfig()
	cfg.NextSequence = 43
	cfg.LastPeriodKey = "2024"
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC))

	alloc, err := svc.AllocateNext(accountantContext())
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", alloc.Number)
	assert.Equal(t, int64(1), alloc.Sequence)
	assert.Equal(t, int64(2), repo.cfg.NextSequence)
	assert.Equal(t, "2025", repo.cfg.LastPeriodKey)
}

func TestAllocateNext_InvalidConfigFailsClosed(t *testing.T) {
	cfg := yearlyConfig()
	cfg.FormatTemplate = "{PREFIX}-" // no sequence token
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Now())

	_, err := svc.AllocateNext(accountantContext())
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, repo.saved, "invalid config must not move the counter")
}

func TestPreview_DoesNotConsume(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, at)
	ctx := accountantContext()

	number, warnings, err := svc.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", number)
	assert.Empty(t, warnings)
	assert.Empty(t, repo.saved)
	assert.Equal(t, 0, repo.locks)

	// The first real allocation produces exactly the previewed number.
	alloc, err := svc.AllocateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, number, alloc.Number)
}

func TestPreview_ShowsPendingReset(t *testing.T) {
	cfg := yearlyConfig()
	cfg.NextSequence = 120
	cfg.LastPeriodKey = "2024"
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))

	number, _, err := svc.Preview(accountantContext())
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", number)
	// Counter untouched until an allocation actually happens.
	assert.Equal(t, int64(120), repo.cfg.NextSequence)
}

func TestReadPaths_UseReadOnlyTransaction(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	txm := &readOnlyTxManager{}
	svc := NewService(repo, txm, nil)
	svc.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	ctx := accountantContext()

	_, _, err := svc.Preview(ctx)
	require.NoError(t, err)
	_, _, err = svc.GetConfig(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, txm.roCalls)
	assert.Equal(t, 0, txm.calls)
	assert.Equal(t, 0, repo.locks)
}

func TestUpdateConfig_PreservesCounterState(t *testing.T) {
	cfg := yearlyConfig()
	cfg.NextSequence = 7
	cfg.LastPeriodKey = "2025"
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))

	incoming := yearlyConfig()
	incoming.SequenceLength = 6
	incoming.NextSequence = 999 // must be ignored by a rules update

	res, err := svc.UpdateConfig(accountantContext(), incoming)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	require.Len(t, repo.saved, 1)
	assert.Equal(t, 6, repo.saved[0].SequenceLength)
	assert.Equal(t, int64(7), repo.saved[0].NextSequence)
	assert.Equal(t, "2025", repo.saved[0].LastPeriodKey)
}

func TestUpdateConfig_FrequencyChangeKeepsCounter(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, at)
	ctx := accountantContext()

	first, err := svc.AllocateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-00001", first.Number)
	assert.Equal(t, "2024", repo.cfg.LastPeriodKey)

	// Switching the reset frequency must clear the stored period key;
	// otherwise the next allocation reads the old key as a period change,
	// resets to the floor, and reissues an already-consumed number.
	incoming := yearlyConfig()
	incoming.ResetFrequency = corenumbering.ResetNever

	res, err := svc.UpdateConfig(ctx, incoming)
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Empty(t, repo.cfg.LastPeriodKey)
	assert.Equal(t, int64(2), repo.cfg.NextSequence)

	second, err := svc.AllocateNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-2024-00002", second.Number)
	assert.NotEqual(t, first.Number, second.Number)
}

func TestUpdateConfig_ErrorsBlockSave(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	svc, _ := newTestService(repo, time.Now())

	incoming := yearlyConfig()
	incoming.FormatTemplate = "{PREFIX}-{SEQ}-{SEQ}"

	res, err := svc.UpdateConfig(accountantContext(), incoming)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.False(t, res.Valid())
	assert.Empty(t, repo.saved)
}

func TestUpdateConfig_WarningsDoNotBlock(t *testing.T) {
	cfg := yearlyConfig()
	cfg.NextSequence = 99998
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Now())

	incoming := yearlyConfig()
	incoming.SequenceLength = 4 // counter close to 10^4, overflow warning

	res, err := svc.UpdateConfig(accountantContext(), incoming)
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.NotEmpty(t, res.Warnings)
	require.Len(t, repo.saved, 1)
}

func TestUpdateConfig_RequiresWriteCapability(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	svc, _ := newTestService(repo, time.Now())

	viewer := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u-view",
		Roles:  []security.Role{security.RoleViewer},
	})

	_, err := svc.UpdateConfig(viewer, yearlyConfig())
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
	assert.Empty(t, repo.saved)
}

func TestManualOverride_AdminMovesCounter(t *testing.T) {
	cfg := yearlyConfig()
	cfg.NextSequence = 42
	cfg.LastPeriodKey = "2025"
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	updated, err := svc.ManualOverride(adminContext(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), updated.NextSequence)
	// Cleared so the next allocation adopts the current period as-is
	// instead of resetting the overridden value away.
	assert.Equal(t, "", updated.LastPeriodKey)
	require.Len(t, repo.saved, 1)
}

func TestManualOverride_NonAdminForbidden(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	svc, _ := newTestService(repo, time.Now())

	_, err := svc.ManualOverride(accountantContext(), 100)
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
	assert.Empty(t, repo.saved)
}

func TestManualOverride_DisabledByConfig(t *testing.T) {
	cfg := yearlyConfig()
	cfg.AllowManualOverride = false
	repo := &mockRepo{cfg: cfg}
	svc, _ := newTestService(repo, time.Now())

	_, err := svc.ManualOverride(adminContext(), 100)
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestManualOverride_RejectsNegative(t *testing.T) {
	repo := &mockRepo{cfg: yearlyConfig()}
	svc, _ := newTestService(repo, time.Now())

	_, err := svc.ManualOverride(adminContext(), -5)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Empty(t, repo.saved)
}
