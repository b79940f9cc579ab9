package invoicing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	"numera/internal/core/id"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/security"
	"numera/internal/core/tx"
)

// Mock objects

type mockInvoiceRepo struct {
	invoices map[id.ID]*Invoice
	lines    map[id.ID][]InvoiceLine
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{
		invoices: make(map[id.ID]*Invoice),
		lines:    make(map[id.ID][]InvoiceLine),
	}
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *Invoice) error {
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, apperror.NewNotFound("invoice", invoiceID)
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInvoiceRepo) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	for _, inv := range m.invoices {
		if inv.Number == number {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("invoice", number)
}

func (m *mockInvoiceRepo) Update(ctx context.Context, inv *Invoice) error {
	if _, ok := m.invoices[inv.ID]; !ok {
		return apperror.NewNotFound("invoice", inv.ID)
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoiceRepo) Delete(ctx context.Context, invoiceID id.ID) error {
	delete(m.invoices, invoiceID)
	return nil
}

func (m *mockInvoiceRepo) GetLines(ctx context.Context, invoiceID id.ID) ([]InvoiceLine, error) {
	return m.lines[invoiceID], nil
}

func (m *mockInvoiceRepo) SaveLines(ctx context.Context, invoiceID id.ID, lines []InvoiceLine) error {
	m.lines[invoiceID] = lines
	return nil
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter ListFilter) ([]*Invoice, int, error) {
	var out []*Invoice
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return m.GetByID(ctx, invoiceID)
}

type mockNumberSource struct {
	next   int64
	prefix string
	err    error
}

func (m *mockNumberSource) AllocateNext(ctx context.Context) (*corenumbering.Allocation, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.next++
	return &corenumbering.Allocation{
		Number:   m.prefix + "-" + time.Now().UTC().Format("2006") + "-" + padded(m.next),
		Sequence: m.next,
	}, nil
}

func padded(n int64) string {
	digits := []byte("00000")
	for i := len(digits) - 1; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// readOnlyTxManager additionally satisfies tx.ReadOnlyManager.
type readOnlyTxManager struct {
	passthroughTxManager
	roCalls int
}

var _ tx.ReadOnlyManager = (*readOnlyTxManager)(nil)

func (m *readOnlyTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.roCalls++
	return fn(ctx)
}

func issuerContext() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u-acct",
		Roles:  []security.Role{security.RoleAccountant},
	})
}

func draftInvoice() *Invoice {
	inv := NewInvoice("Acme GmbH", "EUR")
	inv.AddLine("Consulting", decimal.NewFromInt(10), decimal.NewFromFloat(150.00), decimal.NewFromInt(20))
	return inv
}

func TestAddLine_Totals(t *testing.T) {
	inv := draftInvoice()

	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(1500)), "subtotal %s", inv.Subtotal)
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(300)), "tax %s", inv.TaxAmount)
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(1800)), "total %s", inv.Total)

	inv.AddLine("Support", decimal.NewFromInt(3), decimal.NewFromFloat(99.99), decimal.Zero)
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromFloat(1799.97)), "subtotal %s", inv.Subtotal)
	assert.True(t, inv.Total.Equal(decimal.NewFromFloat(2099.97)), "total %s", inv.Total)
}

func TestCreate_DraftHasNoNumber(t *testing.T) {
	repo := newMockInvoiceRepo()
	svc := NewService(repo, &mockNumberSource{prefix: "INV"}, passthroughTxManager{}, nil)

	inv := draftInvoice()
	require.NoError(t, svc.Create(issuerContext(), inv))

	stored, err := svc.GetByID(issuerContext(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.Empty(t, stored.Number)
	assert.Len(t, stored.Lines, 1)
}

func TestIssue_AllocatesNumberOnce(t *testing.T) {
	repo := newMockInvoiceRepo()
	numbers := &mockNumberSource{prefix: "INV"}
	svc := NewService(repo, numbers, passthroughTxManager{}, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))

	issued, err := svc.Issue(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issued.Status)
	assert.NotEmpty(t, issued.Number)
	require.NotNil(t, issued.IssuedAt)

	// Second issuance must fail without consuming another number.
	_, err = svc.Issue(ctx, inv.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvoiceIssued, appErr.Code)
	assert.Equal(t, int64(1), numbers.next)
}

func TestIssue_RequiresCapability(t *testing.T) {
	repo := newMockInvoiceRepo()
	numbers := &mockNumberSource{prefix: "INV"}
	svc := NewService(repo, numbers, passthroughTxManager{}, nil)

	inv := draftInvoice()
	require.NoError(t, svc.Create(issuerContext(), inv))

	viewer := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u-view",
		Roles:  []security.Role{security.RoleViewer},
	})
	_, err := svc.Issue(viewer, inv.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
	assert.Equal(t, int64(0), numbers.next)
}

func TestIssue_AllocationFailureLeavesDraft(t *testing.T) {
	repo := newMockInvoiceRepo()
	numbers := &mockNumberSource{prefix: "INV", err: apperror.NewValidation("numbering configuration is invalid")}
	svc := NewService(repo, numbers, passthroughTxManager{}, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))

	_, err := svc.Issue(ctx, inv.ID)
	require.Error(t, err)

	stored, err := svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.Empty(t, stored.Number)
}

func TestIssue_RefusesDuplicateNumber(t *testing.T) {
	repo := newMockInvoiceRepo()
	numbers := &mockNumberSource{prefix: "INV"}
	svc := NewService(repo, numbers, passthroughTxManager{}, nil)
	ctx := issuerContext()

	first := draftInvoice()
	require.NoError(t, svc.Create(ctx, first))
	issued, err := svc.Issue(ctx, first.ID)
	require.NoError(t, err)

	// Counter moved backwards (a bad manual override): the source now
	// produces the number the first invoice already carries.
	numbers.next = 0

	second := draftInvoice()
	require.NoError(t, svc.Create(ctx, second))
	_, err = svc.Issue(ctx, second.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeDuplicate, appErr.Code)

	stored, err := svc.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
	assert.Empty(t, stored.Number)
	assert.Equal(t, issued.Number, repo.invoices[first.ID].Number)
}

func TestUpdate_IssuedIsImmutable(t *testing.T) {
	repo := newMockInvoiceRepo()
	svc := NewService(repo, &mockNumberSource{prefix: "INV"}, passthroughTxManager{}, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))
	issued, err := svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	issued.CustomerName = "Changed"
	err = svc.Update(ctx, issued)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvoiceIssued, appErr.Code)
}

func TestVoid_KeepsNumberConsumed(t *testing.T) {
	repo := newMockInvoiceRepo()
	numbers := &mockNumberSource{prefix: "INV"}
	svc := NewService(repo, numbers, passthroughTxManager{}, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))
	issued, err := svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	voided, err := svc.Void(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, voided.Status)
	assert.Equal(t, issued.Number, voided.Number)

	// A fresh invoice gets the next value, not the voided one.
	next := draftInvoice()
	require.NoError(t, svc.Create(ctx, next))
	issuedNext, err := svc.Issue(ctx, next.ID)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Number, issuedNext.Number)
	assert.Equal(t, int64(2), numbers.next)
}

func TestDelete_IssuedRefused(t *testing.T) {
	repo := newMockInvoiceRepo()
	svc := NewService(repo, &mockNumberSource{prefix: "INV"}, passthroughTxManager{}, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))
	_, err := svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	err = svc.Delete(ctx, inv.ID)
	require.Error(t, err)
}

func TestList_UsesReadOnlyTransaction(t *testing.T) {
	repo := newMockInvoiceRepo()
	txm := &readOnlyTxManager{}
	svc := NewService(repo, &mockNumberSource{prefix: "INV"}, txm, nil)
	ctx := issuerContext()

	inv := draftInvoice()
	require.NoError(t, svc.Create(ctx, inv))

	invoices, total, err := svc.List(ctx, ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, invoices, 1)
	assert.Equal(t, 1, txm.roCalls)
}
