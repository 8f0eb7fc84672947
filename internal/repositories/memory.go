package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"visitly/internal/models/db_models"
)

// MemoryLedger is an in-process Ledger for tests and local development. It
// keeps every aggregate in maps behind one mutex, so Transaction gives the
// same all-or-nothing view only in the trivial sense that the callback runs
// under the lock; it exists so the allocation and escalation engines can be
// exercised without a database.
type MemoryLedger struct {
	mu sync.Mutex

	accounts      map[uuid.UUID]*db_models.Account
	plans         map[uuid.UUID]*db_models.Plan
	subscriptions map[uuid.UUID]*db_models.Subscription
	payments      map[uuid.UUID]*db_models.Payment
	invoices      map[uuid.UUID]*db_models.Invoice
	sequences     map[int]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts:      make(map[uuid.UUID]*db_models.Account),
		plans:         make(map[uuid.UUID]*db_models.Plan),
		subscriptions: make(map[uuid.UUID]*db_models.Subscription),
		payments:      make(map[uuid.UUID]*db_models.Payment),
		invoices:      make(map[uuid.UUID]*db_models.Invoice),
		sequences:     make(map[int]int64),
	}
}

func (m *MemoryLedger) Accounts() AccountRepository           { return (*memAccounts)(m) }
func (m *MemoryLedger) Plans() PlanRepository                 { return (*memPlans)(m) }
func (m *MemoryLedger) Subscriptions() SubscriptionRepository { return (*memSubscriptions)(m) }
func (m *MemoryLedger) Payments() PaymentRepository           { return (*memPayments)(m) }
func (m *MemoryLedger) Invoices() InvoiceRepository           { return (*memInvoices)(m) }

func (m *MemoryLedger) Transaction(_ context.Context, fn func(tx Ledger) error) error {
	return fn(m)
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// ---------- accounts ----------

type memAccounts MemoryLedger

func (m *memAccounts) Insert(_ context.Context, account *db_models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&account.ID)
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memAccounts) FindByID(_ context.Context, id uuid.UUID) (*db_models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*db_models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAccounts) Save(_ context.Context, account *db_models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

// ---------- plans ----------

type memPlans MemoryLedger

func (m *memPlans) FindByID(_ context.Context, id uuid.UUID) (*db_models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPlans) FindByCode(_ context.Context, code string) (*db_models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.Code == code && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPlans) GetAllPlans(_ context.Context) ([]db_models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var plans []db_models.Plan
	for _, p := range m.plans {
		if p.IsActive {
			plans = append(plans, *p)
		}
	}
	return plans, nil
}

// SeedPlan registers a plan for tests.
func (m *MemoryLedger) SeedPlan(plan *db_models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&plan.ID)
	cp := *plan
	m.plans[plan.ID] = &cp
}

// ---------- subscriptions ----------

type memSubscriptions MemoryLedger

func (m *memSubscriptions) Insert(_ context.Context, sub *db_models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&sub.ID)
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().Unix()
	}
	cp := *sub
	m.subscriptions[sub.ID] = &cp
	return nil
}

func (m *memSubscriptions) Save(_ context.Context, sub *db_models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subscriptions[sub.ID] = &cp
	return nil
}

func (m *memSubscriptions) FindByID(_ context.Context, id uuid.UUID) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptions) FindByProviderSubID(_ context.Context, providerSubID string) (*db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.ProviderSubID == providerSubID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSubscriptions) ListByAccount(_ context.Context, accountID uuid.UUID, statuses ...db_models.SubscriptionStatus) ([]db_models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []db_models.Subscription
	for _, s := range m.subscriptions {
		if s.AccountID != accountID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if s.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		subs = append(subs, *s)
	}
	return subs, nil
}

// ---------- payments ----------

type memPayments MemoryLedger

func (m *memPayments) Insert(_ context.Context, payment *db_models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&payment.ID)
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memPayments) Save(_ context.Context, payment *db_models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memPayments) FindByID(_ context.Context, id uuid.UUID) (*db_models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) FindByProviderTxnID(_ context.Context, providerTxnID string) (*db_models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderTxnID == providerTxnID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPayments) ListByAccount(_ context.Context, accountID uuid.UUID) ([]db_models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []db_models.Payment
	for _, p := range m.payments {
		if p.AccountID == accountID {
			payments = append(payments, *p)
		}
	}
	return payments, nil
}

// ---------- invoices ----------

type memInvoices MemoryLedger

func (m *memInvoices) Insert(_ context.Context, invoice *db_models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&invoice.ID)
	for i := range invoice.Items {
		ensureID(&invoice.Items[i].ID)
		invoice.Items[i].InvoiceID = invoice.ID
	}
	cp := *invoice
	m.invoices[invoice.ID] = &cp
	return nil
}

func (m *memInvoices) Save(_ context.Context, invoice *db_models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *invoice
	m.invoices[invoice.ID] = &cp
	return nil
}

func (m *memInvoices) FindByID(_ context.Context, id uuid.UUID) (*db_models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoices) OpenByAccount(_ context.Context, accountID uuid.UUID) ([]db_models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var invoices []db_models.Invoice
	for _, inv := range m.invoices {
		if inv.AccountID == accountID && inv.Status.Open() {
			invoices = append(invoices, *inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].DueDate < invoices[j].DueDate
	})
	return invoices, nil
}

func (m *memInvoices) ListByAccount(_ context.Context, accountID uuid.UUID, status *db_models.InvoiceStatus, offset, limit int) ([]db_models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var invoices []db_models.Invoice
	for _, inv := range m.invoices {
		if inv.AccountID != accountID {
			continue
		}
		if status != nil && inv.Status != *status {
			continue
		}
		invoices = append(invoices, *inv)
	}
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].IssueDate > invoices[j].IssueDate
	})
	if offset >= len(invoices) {
		return nil, nil
	}
	invoices = invoices[offset:]
	if limit > 0 && limit < len(invoices) {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (m *memInvoices) ApplyAmounts(_ context.Context, invoice *db_models.Invoice, prevAmountDue int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.invoices[invoice.ID]
	if !ok || !current.Status.Open() || current.AmountDue != prevAmountDue {
		return false, nil
	}
	current.AmountPaid = invoice.AmountPaid
	current.AmountDue = invoice.AmountDue
	current.Status = invoice.Status
	current.PaymentID = invoice.PaymentID
	current.PaidDate = invoice.PaidDate
	return true, nil
}

func (m *memInvoices) MarkOverdueDue(_ context.Context, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for _, inv := range m.invoices {
		if inv.Status == db_models.InvStatusPending && inv.DueDate < now {
			inv.Status = db_models.InvStatusOverdue
			changed++
		}
	}
	return changed, nil
}

func (m *memInvoices) HasAllocationForPayment(_ context.Context, paymentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.PaymentID != nil && *inv.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memInvoices) OldestOpenPerAccount(_ context.Context) ([]AccountDebt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAccount := make(map[uuid.UUID]*AccountDebt)
	for _, inv := range m.invoices {
		if !inv.Status.Open() {
			continue
		}
		d, ok := byAccount[inv.AccountID]
		if !ok {
			d = &AccountDebt{AccountID: inv.AccountID, OldestDueDate: inv.DueDate}
			byAccount[inv.AccountID] = d
		}
		if inv.DueDate < d.OldestDueDate {
			d.OldestDueDate = inv.DueDate
		}
		d.TotalDueMinor += inv.AmountDue
	}
	var debts []AccountDebt
	for _, d := range byAccount {
		debts = append(debts, *d)
	}
	sort.Slice(debts, func(i, j int) bool {
		return debts[i].OldestDueDate < debts[j].OldestDueDate
	})
	return debts, nil
}

func (m *memInvoices) NextInvoiceNumber(_ context.Context, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[year]++
	return m.sequences[year], nil
}
