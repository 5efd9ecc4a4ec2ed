package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"eventlottery/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockEventRepository struct {
	events          map[string]*domain.Event
	pending         []*domain.Event
	starting        []*domain.Event
	markedProcessed []string
	markedSelSent   map[string]string // eventID -> recorded selection error
	markedSorrySent []string
	listErr         error
	markErr         error
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{
		events:        map[string]*domain.Event{},
		markedSelSent: map[string]string{},
	}
}

func (m *mockEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ev, nil
}

func (m *mockEventRepository) ListSelectionPending(ctx context.Context) ([]*domain.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.pending, nil
}

func (m *mockEventRepository) ListStartingBetween(ctx context.Context, from, to int64) ([]*domain.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Event
	for _, ev := range m.starting {
		if ev.StartsAt >= from && ev.StartsAt < to && !ev.SorryNotificationSent {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockEventRepository) MarkSelectionProcessed(ctx context.Context, eventID string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.markedProcessed = append(m.markedProcessed, eventID)
	return nil
}

func (m *mockEventRepository) MarkSelectionNotificationSent(ctx context.Context, eventID string, selectionErr string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.markedSelSent[eventID] = selectionErr
	return nil
}

func (m *mockEventRepository) MarkSorryNotificationSent(ctx context.Context, eventID string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.markedSorrySent = append(m.markedSorrySent, eventID)
	for _, ev := range m.starting {
		if ev.ID == eventID {
			ev.SorryNotificationSent = true
		}
	}
	return nil
}

// fakeLedger is an in-memory entrant ledger that mirrors the repository's
// atomicity contract: one state per (event, user), transitions all-or-nothing.
type fakeLedger struct {
	states     map[string]map[string]domain.EntrantState // eventID -> userID -> state
	profiles   map[string]*domain.Entrant                // userID -> profile snapshot
	sampleSize   map[string]int
	processed    map[string]bool
	commitErr    error
	commitErrFor map[string]error // per-event commit failures
	listErr      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		states:     map[string]map[string]domain.EntrantState{},
		profiles:   map[string]*domain.Entrant{},
		sampleSize: map[string]int{},
		processed:  map[string]bool{},
	}
}

func (l *fakeLedger) add(eventID, userID string, state domain.EntrantState) {
	if l.states[eventID] == nil {
		l.states[eventID] = map[string]domain.EntrantState{}
	}
	l.states[eventID][userID] = state
}

func (l *fakeLedger) usersIn(eventID string, state domain.EntrantState) []string {
	var ids []string
	for userID, st := range l.states[eventID] {
		if st == state {
			ids = append(ids, userID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (l *fakeLedger) ListByState(ctx context.Context, eventID string, state domain.EntrantState) ([]*domain.Entrant, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	entrants := []*domain.Entrant{}
	for _, userID := range l.usersIn(eventID, state) {
		e := &domain.Entrant{EventID: eventID, UserID: userID, State: state}
		if p, ok := l.profiles[userID]; ok {
			e.FirstName, e.FullName, e.DisplayName = p.FirstName, p.FullName, p.DisplayName
		}
		entrants = append(entrants, e)
	}
	return entrants, nil
}

func (l *fakeLedger) CountByState(ctx context.Context, eventID string, state domain.EntrantState) (int, error) {
	if l.listErr != nil {
		return 0, l.listErr
	}
	return len(l.usersIn(eventID, state)), nil
}

func (l *fakeLedger) CommitSelection(ctx context.Context, eventID string, userIDs []string) ([]string, error) {
	if l.commitErr != nil {
		return nil, l.commitErr
	}
	if err := l.commitErrFor[eventID]; err != nil {
		return nil, err
	}
	if l.processed[eventID] {
		return nil, domain.ErrAlreadyProcessed
	}
	room := l.sampleSize[eventID] - len(l.usersIn(eventID, domain.StateSelected))
	if room < 0 {
		room = 0
	}
	if len(userIDs) > room {
		userIDs = userIDs[:room]
	}
	promoted := []string{}
	for _, userID := range userIDs {
		if l.states[eventID][userID] == domain.StateWaitlisted {
			l.states[eventID][userID] = domain.StateSelected
			promoted = append(promoted, userID)
		}
	}
	l.processed[eventID] = true
	return promoted, nil
}

func (l *fakeLedger) DemoteRemainingWaitlisted(ctx context.Context, eventID string, keep []string) ([]string, error) {
	kept := map[string]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	moved := []string{}
	for _, userID := range l.usersIn(eventID, domain.StateWaitlisted) {
		if !kept[userID] {
			l.states[eventID][userID] = domain.StateNonSelected
			moved = append(moved, userID)
		}
	}
	return moved, nil
}

func (l *fakeLedger) MoveAllByState(ctx context.Context, eventID string, from, to domain.EntrantState) ([]string, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	moved := []string{}
	for _, userID := range l.usersIn(eventID, from) {
		l.states[eventID][userID] = to
		moved = append(moved, userID)
	}
	return moved, nil
}

type mockInvitationRepository struct {
	created   []*domain.Invitation
	createErr error
}

func (m *mockInvitationRepository) CreateBatch(ctx context.Context, invs []*domain.Invitation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, invs...)
	return nil
}

func (m *mockInvitationRepository) ListByEventID(ctx context.Context, eventID string) ([]*domain.Invitation, error) {
	return m.created, nil
}

type mockRequestRepository struct {
	byID      map[string]*domain.NotificationRequest
	created   []*domain.NotificationRequest
	retryable []*domain.NotificationRequest
	processed map[string]*domain.DispatchResult
	retries   map[string][]*domain.RetryOutcome
	finalized map[string]string
	createErr error
	getErr    error
}

func newMockRequestRepository() *mockRequestRepository {
	return &mockRequestRepository{
		byID:      map[string]*domain.NotificationRequest{},
		processed: map[string]*domain.DispatchResult{},
		retries:   map[string][]*domain.RetryOutcome{},
		finalized: map[string]string{},
	}
}

func (m *mockRequestRepository) Create(ctx context.Context, req *domain.NotificationRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, req)
	m.byID[req.ID] = req
	return nil
}

func (m *mockRequestRepository) GetByID(ctx context.Context, id string) (*domain.NotificationRequest, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	req, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

func (m *mockRequestRepository) ListRetryable(ctx context.Context) ([]*domain.NotificationRequest, error) {
	return m.retryable, nil
}

func (m *mockRequestRepository) MarkProcessed(ctx context.Context, id string, result *domain.DispatchResult) error {
	m.processed[id] = result
	if req, ok := m.byID[id]; ok {
		req.Processed = true
	}
	return nil
}

func (m *mockRequestRepository) RecordRetry(ctx context.Context, id string, outcome *domain.RetryOutcome) error {
	m.retries[id] = append(m.retries[id], outcome)
	return nil
}

func (m *mockRequestRepository) Finalize(ctx context.Context, id string, finalStatus string) error {
	m.finalized[id] = finalStatus
	return nil
}

type mockUserRepository struct {
	users   map[string]*domain.UserProfile
	cleared [][]string
	getErr  error
}

func (m *mockUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.UserProfile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := map[string]*domain.UserProfile{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *mockUserRepository) ClearPushTokens(ctx context.Context, userIDs []string) error {
	m.cleared = append(m.cleared, userIDs)
	return nil
}

type mockQueue struct {
	published  []string
	publishErr error
}

func (m *mockQueue) Publish(ctx context.Context, requestID string) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, requestID)
	return nil
}

func (m *mockQueue) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	if len(m.published) == 0 {
		return "", nil
	}
	id := m.published[0]
	m.published = m.published[1:]
	return id, nil
}

type mockClaimer struct {
	denied     bool
	claimErr   error
	releaseErr error
	claims     []string
	released   []string
}

func (m *mockClaimer) Claim(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.claims = append(m.claims, requestID)
	return !m.denied, nil
}

func (m *mockClaimer) Release(ctx context.Context, requestID string) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.released = append(m.released, requestID)
	return nil
}

// mockSender scripts per-token outcomes. Tokens absent from failCodes
// succeed; sendErr fails whole batches.
type mockSender struct {
	batchSize int
	failCodes map[string]string // token -> gateway error code
	sendErr   error
	batches   [][]domain.PushMessage
}

func (m *mockSender) MaxBatchSize() int {
	if m.batchSize > 0 {
		return m.batchSize
	}
	return 500
}

func (m *mockSender) SendBatch(ctx context.Context, messages []domain.PushMessage) (*domain.PushBatchResult, error) {
	m.batches = append(m.batches, messages)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	result := &domain.PushBatchResult{Results: make([]domain.PushSendResult, len(messages))}
	for i, msg := range messages {
		if code, ok := m.failCodes[msg.Token]; ok {
			result.FailureCount++
			result.Results[i] = domain.PushSendResult{Success: false, ErrorCode: code}
		} else {
			result.SuccessCount++
			result.Results[i] = domain.PushSendResult{Success: true}
		}
	}
	return result, nil
}

type mockAlerts struct {
	alerts []*domain.DeliveryFailureAlert
}

func (m *mockAlerts) NotifyDeliveryFailure(ctx context.Context, alert *domain.DeliveryFailureAlert) {
	m.alerts = append(m.alerts, alert)
}
