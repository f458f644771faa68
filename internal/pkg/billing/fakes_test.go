package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/internal/pkg/accounts"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
)

// memStore keeps all rows in maps. Transactions are serialized with every
// other access and rolled back by restoring a snapshot.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	requests map[string]models.SubscriptionRequest
	payments map[string]models.Payment
	tasks    map[uint]models.RegistrationTask
	events   map[uint]models.PaymentWebhookEvent
	nextID   uint

	repos   *repository.Repositories
	txRepos *repository.Repositories
}

func newMemStore() *memStore {
	s := &memStore{
		requests: map[string]models.SubscriptionRequest{},
		payments: map[string]models.Payment{},
		tasks:    map[uint]models.RegistrationTask{},
		events:   map[uint]models.PaymentWebhookEvent{},
	}
	s.repos = s.newRepos(false)
	s.txRepos = s.newRepos(true)
	return s
}

func (s *memStore) newRepos(tx bool) *repository.Repositories {
	return &repository.Repositories{
		SubscriptionRequest: memRequests{s, tx},
		Payment:             memPayments{s, tx},
		RegistrationTask:    memTasks{s, tx},
		WebhookEvent:        memEvents{s, tx},
	}
}

// lock guards one repository call. Calls outside a transaction also wait for
// running transactions.
func (s *memStore) lock(inTx bool) func() {
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

func (s *memStore) Repositories() *repository.Repositories { return s.repos }

func (s *memStore) Transaction(_ context.Context, fn func(repos *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	requests := cloneMap(s.requests)
	payments := cloneMap(s.payments)
	tasks := cloneMap(s.tasks)
	events := cloneMap(s.events)
	nextID := s.nextID
	s.mu.Unlock()

	if err := fn(s.txRepos); err != nil {
		s.mu.Lock()
		s.requests, s.payments, s.tasks, s.events, s.nextID = requests, payments, tasks, events, nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) payment(invoiceID string) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			return p
		}
	}
	return models.Payment{}
}

func (s *memStore) request(id string) models.SubscriptionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *memStore) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// seedPending stores a pending request with a pending monobank payment.
func (s *memStore) seedPending(invoiceID string, amount int64) (models.SubscriptionRequest, models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := models.SubscriptionRequest{
		ID:            "req-" + invoiceID,
		Name:          "Olena Kovalenko",
		Email:         "olena@example.com",
		Phone:         "+380501234567",
		Plan:          models.PLAN_MINI,
		PaymentMethod: models.PAYMENT_METHOD_MONOBANK,
		Status:        models.STATUS_PENDING,
	}
	pay := models.Payment{
		ID:                    "pay-" + invoiceID,
		SubscriptionRequestID: req.ID,
		Provider:              models.PaymentProviderMonobank,
		InvoiceID:             invoiceID,
		Reference:             "sub_" + req.ID,
		Amount:                amount,
		Currency:              "UAH",
		Status:                models.STATUS_PENDING,
	}
	s.requests[req.ID] = req
	s.payments[pay.ID] = pay
	return req, pay
}

type memRequests struct {
	s  *memStore
	tx bool
}

func (r memRequests) Create(_ context.Context, req *models.SubscriptionRequest) error {
	defer r.s.lock(r.tx)()
	if _, ok := r.s.requests[req.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	req.CreatedAt = time.Now()
	r.s.requests[req.ID] = *req
	return nil
}

func (r memRequests) GetByID(_ context.Context, id string) (*models.SubscriptionRequest, error) {
	defer r.s.lock(r.tx)()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

func (r memRequests) UpdateStatusIfPending(_ context.Context, id, status string) (bool, error) {
	defer r.s.lock(r.tx)()
	req, ok := r.s.requests[id]
	if !ok || req.Status != models.STATUS_PENDING {
		return false, nil
	}
	req.Status = status
	r.s.requests[id] = req
	return true, nil
}

func (r memRequests) UpdateNotes(_ context.Context, id, notes string) error {
	defer r.s.lock(r.tx)()
	req, ok := r.s.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.AdminNotes = notes
	r.s.requests[id] = req
	return nil
}

func (r memRequests) List(_ context.Context, filter repository.SubscriptionRequestFilter) ([]models.SubscriptionRequest, error) {
	defer r.s.lock(r.tx)()
	var out []models.SubscriptionRequest
	for _, req := range r.s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (r memRequests) Count(ctx context.Context, filter repository.SubscriptionRequestFilter) (int64, error) {
	items, err := r.List(ctx, filter)
	return int64(len(items)), err
}

type memPayments struct {
	s  *memStore
	tx bool
}

func (r memPayments) Create(_ context.Context, p *models.Payment) error {
	defer r.s.lock(r.tx)()
	if p.ID == "" {
		p.ID = "pay-" + p.InvoiceID
	}
	for _, existing := range r.s.payments {
		if existing.InvoiceID == p.InvoiceID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.s.payments[p.ID] = *p
	return nil
}

func (r memPayments) GetByID(_ context.Context, id string) (*models.Payment, error) {
	defer r.s.lock(r.tx)()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memPayments) find(match func(models.Payment) bool) (*models.Payment, error) {
	defer r.s.lock(r.tx)()
	for _, p := range r.s.payments {
		if match(p) {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memPayments) GetByInvoiceID(_ context.Context, invoiceID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.InvoiceID == invoiceID })
}

func (r memPayments) GetBySubscriptionRequestID(_ context.Context, requestID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.SubscriptionRequestID == requestID })
}

func (r memPayments) UpdateStatusIfPending(_ context.Context, invoiceID string, u repository.PaymentStatusUpdate) (bool, error) {
	defer r.s.lock(r.tx)()
	for id, p := range r.s.payments {
		if p.InvoiceID != invoiceID {
			continue
		}
		if p.Status != models.STATUS_PENDING {
			return false, nil
		}
		p.Status = u.Status
		p.ProviderStatus = u.ProviderStatus
		if u.Amount > 0 {
			p.Amount = u.Amount
		}
		if u.Currency != "" {
			p.Currency = u.Currency
		}
		p.PaidAt = u.PaidAt
		p.ProviderModifiedAt = u.ProviderModifiedAt
		r.s.payments[id] = p
		return true, nil
	}
	return false, nil
}

type memTasks struct {
	s  *memStore
	tx bool
}

func (r memTasks) Create(_ context.Context, t *models.RegistrationTask) error {
	defer r.s.lock(r.tx)()
	for _, existing := range r.s.tasks {
		if existing.SubscriptionRequestID == t.SubscriptionRequestID {
			return gorm.ErrDuplicatedKey
		}
	}
	t.ID = r.s.id()
	r.s.tasks[t.ID] = *t
	return nil
}

func (r memTasks) GetByID(_ context.Context, id uint) (*models.RegistrationTask, error) {
	defer r.s.lock(r.tx)()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r memTasks) GetBySubscriptionRequestID(_ context.Context, requestID string) (*models.RegistrationTask, error) {
	defer r.s.lock(r.tx)()
	for _, t := range r.s.tasks {
		if t.SubscriptionRequestID == requestID {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memTasks) Claim(_ context.Context, id uint) (bool, error) {
	defer r.s.lock(r.tx)()
	t, ok := r.s.tasks[id]
	if !ok || !t.IsRetryable() {
		return false, nil
	}
	now := time.Now()
	t.Status = models.TASK_STATUS_PROCESSING
	t.Attempts++
	t.LastAttemptAt = &now
	r.s.tasks[id] = t
	return true, nil
}

func (r memTasks) MarkDone(_ context.Context, id uint, status string, userID *uint) error {
	defer r.s.lock(r.tx)()
	t, ok := r.s.tasks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	t.Status = status
	t.UserID = userID
	t.CompletedAt = &now
	r.s.tasks[id] = t
	return nil
}

func (r memTasks) MarkFailed(_ context.Context, id uint, lastError string) error {
	defer r.s.lock(r.tx)()
	t, ok := r.s.tasks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Status = models.TASK_STATUS_FAILED
	t.LastError = lastError
	r.s.tasks[id] = t
	return nil
}

func (r memTasks) ListRetryable(_ context.Context, staleBefore time.Time, limit int) ([]models.RegistrationTask, error) {
	defer r.s.lock(r.tx)()
	var out []models.RegistrationTask
	for _, t := range r.s.tasks {
		if len(out) >= limit {
			continue
		}
		stale := t.LastAttemptAt == nil || t.LastAttemptAt.Before(staleBefore)
		switch t.Status {
		case models.TASK_STATUS_PENDING, models.TASK_STATUS_FAILED:
			if stale && t.Attempts < models.MaxRegistrationAttempts {
				out = append(out, t)
			}
		case models.TASK_STATUS_PROCESSING:
			if t.LastAttemptAt != nil && stale {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// putTask stores a task as is.
func (s *memStore) putTask(t models.RegistrationTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

type memEvents struct {
	s  *memStore
	tx bool
}

func (r memEvents) CreateIfNotExists(_ context.Context, e *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	defer r.s.lock(r.tx)()
	for _, existing := range r.s.events {
		if existing.Provider == e.Provider && existing.ProviderEventID == e.ProviderEventID {
			return false, &existing, nil
		}
	}
	e.ID = r.s.id()
	r.s.events[e.ID] = *e
	return true, e, nil
}

func (r memEvents) MarkProcessed(_ context.Context, id uint, processingError string) error {
	defer r.s.lock(r.tx)()
	e, ok := r.s.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	r.s.events[id] = e
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	statusErr error
	created   []string
	nextID    int
}

func (g *fakeGateway) CreatePayment(_ context.Context, amount int64, _, reference, _, _ string, _ *monobank.InvoiceOptions) (*monobank.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	id := "inv_" + reference
	g.created = append(g.created, id)
	return &monobank.Invoice{InvoiceID: id, PageURL: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) InvoiceStatus(_ context.Context, invoiceID string) (*monobank.InvoiceStatus, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &monobank.InvoiceStatus{InvoiceID: invoiceID, Status: monobank.InvoiceStatusSuccess}, nil
}

func (g *fakeGateway) GetStatement(_ context.Context, _ string, _, _ time.Time) ([]monobank.Transaction, error) {
	return []monobank.Transaction{{ID: "tx1", Amount: 30000, CurrencyCode: 980}}, nil
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls []accounts.Registration
	// errs are returned by consecutive calls; nil entries succeed
	errs []error
}

func (f *fakeRegistrar) RegisterWithTemporaryPassword(_ context.Context, in accounts.Registration) (*accounts.RegistrationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.calls)
	f.calls = append(f.calls, in)
	if n < len(f.errs) && f.errs[n] != nil {
		return &accounts.RegistrationResult{Error: f.errs[n].Error()}, f.errs[n]
	}
	return &accounts.RegistrationResult{
		Success:           true,
		User:              &models.User{ID: uint(100 + n), Email: in.Email},
		TemporaryPassword: "tmp-password",
	}, nil
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uint
}

func (f *fakeEnqueuer) EnqueueRegistration(_ context.Context, taskID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, taskID)
	return nil
}

type fakeNotifier struct{ err error }

func (f fakeNotifier) NotifySubscriptionRequest(context.Context, *models.SubscriptionRequest, *models.Payment) error {
	return f.err
}

func (f fakeNotifier) NotifyAccountCreated(context.Context, *models.User, string) error {
	return f.err
}

var errRegistrationDown = errors.New("users table unavailable")
