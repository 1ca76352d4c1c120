package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pushfleet/broadcast-engine/internal/domain"
	"github.com/pushfleet/broadcast-engine/internal/provider"
	"github.com/pushfleet/broadcast-engine/internal/repository"
)

type fakeProvider struct {
	mu      sync.Mutex
	sendFn  func(ctx context.Context, sub domain.Subscriber, payload []byte) (*provider.Response, error)
	sent    []int64
	current int
	maxSeen int
}

func (f *fakeProvider) Send(ctx context.Context, sub domain.Subscriber, payload []byte) (*provider.Response, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sub.ID)
	f.current++
	if f.current > f.maxSeen {
		f.maxSeen = f.current
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.current--
		f.mu.Unlock()
	}()

	if f.sendFn != nil {
		return f.sendFn(ctx, sub, payload)
	}
	return &provider.Response{StatusCode: 201}, nil
}

func (f *fakeProvider) sentIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeProvider) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, scope string) (bool, error)
	waitFn  func(ctx context.Context, scope string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, scope)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

type fakeExecutor struct {
	executeFn func(ctx context.Context, n *domain.Notification, subscribers []domain.Subscriber) (*BatchReport, error)
}

func (f *fakeExecutor) ExecuteBatch(ctx context.Context, n *domain.Notification, subscribers []domain.Subscriber) (*BatchReport, error) {
	if f.executeFn != nil {
		return f.executeFn(ctx, n, subscribers)
	}
	return &BatchReport{Sent: len(subscribers)}, nil
}

// memSubscriberRepo is an in-memory registry with the same ordering contract
// as the SQL implementation: ids grow monotonically, pages are id-ascending,
// deletions never renumber.
type memSubscriberRepo struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]domain.Subscriber
}

func newMemSubscriberRepo() *memSubscriberRepo {
	return &memSubscriberRepo{subs: make(map[int64]domain.Subscriber)}
}

func (m *memSubscriberRepo) add(endpoint string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.subs[m.nextID] = domain.Subscriber{
		ID:       m.nextID,
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
	}
	return m.nextID
}

func (m *memSubscriberRepo) Upsert(ctx context.Context, s *domain.Subscriber) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.subs {
		if existing.Endpoint == s.Endpoint {
			existing.P256dh = s.P256dh
			existing.Auth = s.Auth
			existing.ConsecutiveFailures = 0
			m.subs[id] = existing
			*s = existing
			return nil
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.subs[s.ID] = *s
	return nil
}

func (m *memSubscriberRepo) GetByEndpoint(ctx context.Context, endpoint string) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.Endpoint == endpoint {
			copied := sub
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubscriberRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subs {
		if sub.Endpoint == endpoint {
			delete(m.subs, id)
			return nil
		}
	}
	return nil
}

func (m *memSubscriberRepo) DeleteByID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

func (m *memSubscriberRepo) Page(ctx context.Context, afterID int64, limit int) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) > limit {
		ids = ids[:limit]
	}

	page := make([]domain.Subscriber, 0, len(ids))
	for _, id := range ids {
		page = append(page, m.subs[id])
	}
	return page, nil
}

func (m *memSubscriberRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.subs)), nil
}

func (m *memSubscriberRepo) RecordSuccess(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[id]; ok {
		sub.ConsecutiveFailures = 0
		sub.LastSuccessAt = &at
		m.subs[id] = sub
	}
	return nil
}

func (m *memSubscriberRepo) RecordFailure(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[id]; ok {
		sub.ConsecutiveFailures++
		m.subs[id] = sub
	}
	return nil
}

func (m *memSubscriberRepo) has(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[id]
	return ok
}

// memNotificationRepo mirrors the SQL store's lease and commit semantics
// under a single mutex, so concurrent ticks in tests hit the same
// at-most-one-winner behavior. failCommits injects store-level commit
// failures.
type memNotificationRepo struct {
	mu          sync.Mutex
	items       map[string]*domain.Notification
	outcomes    []domain.BatchOutcome
	now         func() time.Time
	failCommits int
	commitCalls int
}

func newMemNotificationRepo(now func() time.Time) *memNotificationRepo {
	if now == nil {
		now = time.Now
	}
	return &memNotificationRepo{
		items: make(map[string]*domain.Notification),
		now:   now,
	}
}

func (m *memNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *n
	m.items[n.ID] = &copied
	return nil
}

func (m *memNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *memNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, 0, len(m.items))
	for _, n := range m.items {
		if params.Status != nil && n.Status != *params.Status {
			continue
		}
		out = append(out, *n)
	}
	return out, int64(len(out)), nil
}

func (m *memNotificationRepo) ListTickable(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for id, n := range m.items {
		if n.Status == domain.StatusScheduled || n.Status == domain.StatusRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memNotificationRepo) AcquireLease(ctx context.Context, id string, token string, ttl time.Duration) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if n.Status.IsTerminal() || n.Status == domain.StatusDraft {
		return nil, domain.ErrConflict
	}

	now := m.now()
	if n.LeaseActive(now) {
		return nil, domain.ErrLeaseHeld
	}

	expiresAt := now.Add(ttl)
	n.LeaseToken = token
	n.LeaseExpiresAt = &expiresAt

	copied := *n
	return &copied, nil
}

func (m *memNotificationRepo) ReleaseLease(ctx context.Context, id string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.LeaseToken != token {
		return nil
	}
	n.LeaseToken = ""
	n.LeaseExpiresAt = nil
	return nil
}

func (m *memNotificationRepo) MarkRunning(ctx context.Context, id string, totalAtStart int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Status != domain.StatusScheduled {
		return domain.ErrConflict
	}
	n.Status = domain.StatusRunning
	n.TotalAtStart = totalAtStart
	n.Cursor = domain.CursorStart
	return nil
}

func (m *memNotificationRepo) CommitBatch(ctx context.Context, id string, token string, commit repository.BatchCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commitCalls++
	if m.failCommits > 0 {
		m.failCommits--
		return fmt.Errorf("store unavailable")
	}

	n, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Status != domain.StatusRunning || n.LeaseToken != token || commit.Cursor < n.Cursor {
		return domain.ErrConflict
	}

	n.Cursor = commit.Cursor
	n.SentCount += commit.Sent
	n.FailedCount += commit.Failed
	n.TickFailures = 0
	m.outcomes = append(m.outcomes, commit.Outcomes...)
	return nil
}

func (m *memNotificationRepo) MarkCompleted(ctx context.Context, id string) error {
	return m.transition(id, domain.StatusCompleted, domain.StatusRunning)
}

func (m *memNotificationRepo) MarkFailed(ctx context.Context, id string) error {
	return m.transition(id, domain.StatusFailed, domain.StatusRunning)
}

func (m *memNotificationRepo) Cancel(ctx context.Context, id string) error {
	return m.transition(id, domain.StatusCancelled, domain.StatusScheduled, domain.StatusRunning)
}

func (m *memNotificationRepo) transition(id string, next domain.Status, from ...domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, f := range from {
		if n.Status == f {
			n.Status = next
			return nil
		}
	}
	return domain.ErrConflict
}

func (m *memNotificationRepo) RecordTickFailure(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n.TickFailures++
	return n.TickFailures, nil
}

func (m *memNotificationRepo) outcomeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outcomes)
}

func (m *memNotificationRepo) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCalls
}
