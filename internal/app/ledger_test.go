package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pactify/ledger-service/internal/domain"
	"github.com/pactify/ledger-service/internal/store"
)

type ledgerRepoStub struct {
	store.Repository

	group         *domain.Group
	groupErr      error
	membershipErr error

	distributeResult *store.DistributeFailureResult
	distributeErr    error
	distributeCalled bool
	lastDistribute   store.DistributeFailureParams

	acquireCached *domain.LogFailureResponse
	acquireOK     bool
	acquireErr    error
	acquireCalled bool
	lastHash      string

	completeCalled bool
	storedResponse domain.LogFailureResponse

	releaseCalled bool

	transaction *domain.Transaction
	findTxErr   error

	settled       *domain.Transaction
	settleErr     error
	settleCalled  bool
	lastSettledAt time.Time
}

func (s *ledgerRepoStub) FindGroupByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	if s.group == nil {
		return nil, store.ErrGroupNotFound
	}
	return s.group, nil
}

func (s *ledgerRepoStub) FindMembership(ctx context.Context, groupID, userID uuid.UUID) (*domain.Membership, error) {
	if s.membershipErr != nil {
		return nil, s.membershipErr
	}
	return &domain.Membership{GroupID: groupID, UserID: userID}, nil
}

func (s *ledgerRepoStub) DistributeFailure(ctx context.Context, params store.DistributeFailureParams) (*store.DistributeFailureResult, error) {
	s.distributeCalled = true
	s.lastDistribute = params
	if s.distributeErr != nil {
		return nil, s.distributeErr
	}
	return s.distributeResult, nil
}

func (s *ledgerRepoStub) AcquireFailureIdempotency(ctx context.Context, userID uuid.UUID, key string, groupID uuid.UUID, requestHash string, ttl, staleWindow time.Duration) (*domain.LogFailureResponse, bool, error) {
	s.acquireCalled = true
	s.lastHash = requestHash
	if s.acquireErr != nil {
		return nil, false, s.acquireErr
	}
	return s.acquireCached, s.acquireOK, nil
}

func (s *ledgerRepoStub) CompleteFailureIdempotency(ctx context.Context, userID uuid.UUID, key string, response domain.LogFailureResponse) error {
	s.completeCalled = true
	s.storedResponse = response
	return nil
}

func (s *ledgerRepoStub) ReleaseFailureIdempotency(ctx context.Context, userID uuid.UUID, key string) error {
	s.releaseCalled = true
	return nil
}

func (s *ledgerRepoStub) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.findTxErr != nil {
		return nil, s.findTxErr
	}
	if s.transaction == nil {
		return nil, store.ErrTransactionNotFound
	}
	return s.transaction, nil
}

func (s *ledgerRepoStub) SettleTransaction(ctx context.Context, transactionID uuid.UUID, settledAt time.Time) (*domain.Transaction, error) {
	s.settleCalled = true
	s.lastSettledAt = settledAt
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	return s.settled, nil
}

type publisherStub struct {
	routingKeys []string
	publishErr  error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return p.publishErr
}

func (p *publisherStub) PublishLedgerEvent(ctx context.Context, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return p.publishErr
}

func (p *publisherStub) Close() {}

func TestLogFailure_DistributesPenaltyToEveryCoMember(t *testing.T) {
	groupID := uuid.New()
	actorID := uuid.New()
	repo := &ledgerRepoStub{
		group: &domain.Group{ID: groupID, Name: "Morning Run Club", DefaultPenaltyAmount: decimal.NewFromInt(10)},
		distributeResult: &store.DistributeFailureResult{
			TransactionsCreated: 3,
			PenaltyAmount:       decimal.NewFromInt(10),
			TotalDebt:           decimal.NewFromInt(30),
		},
	}
	publisher := &publisherStub{}
	svc := NewService(repo, nil, publisher, nil, 6, time.Hour)

	resp, err := svc.LogFailure(context.Background(), groupID, actorID, domain.LogFailureRequest{Description: ptrString("missed the run")}, "")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.TransactionsCreated != 3 {
		t.Fatalf("expected 3 transactions created, got %d", resp.TransactionsCreated)
	}
	if !resp.TotalDebt.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected total debt 30, got %s", resp.TotalDebt)
	}
	if repo.lastDistribute.GroupID != groupID || repo.lastDistribute.ActorID != actorID {
		t.Fatalf("unexpected distribution params: %+v", repo.lastDistribute)
	}
	if repo.acquireCalled {
		t.Fatal("did not expect idempotency machinery without a key")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "ledger.failure.logged" {
		t.Fatalf("expected one ledger.failure.logged event, got %v", publisher.routingKeys)
	}
}

func TestLogFailure_SingleMemberGroupSucceedsWithZeroTransactions(t *testing.T) {
	repo := &ledgerRepoStub{
		group: &domain.Group{ID: uuid.New(), DefaultPenaltyAmount: decimal.NewFromInt(10)},
		distributeResult: &store.DistributeFailureResult{
			TransactionsCreated: 0,
			PenaltyAmount:       decimal.NewFromInt(10),
			TotalDebt:           decimal.Zero,
		},
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	resp, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.TransactionsCreated != 0 {
		t.Fatalf("expected zero transactions created, got %d", resp.TransactionsCreated)
	}
	if !resp.TotalDebt.IsZero() {
		t.Fatalf("expected zero total debt, got %s", resp.TotalDebt)
	}
}

func TestLogFailure_RejectsNonMember(t *testing.T) {
	repo := &ledgerRepoStub{
		group:         &domain.Group{ID: uuid.New()},
		membershipErr: store.ErrMembershipNotFound,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "")
	if !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution for a non-member")
	}
}

func TestLogFailure_ReplayReturnsCachedResponse(t *testing.T) {
	cached := &domain.LogFailureResponse{TransactionsCreated: 2, TotalDebt: decimal.NewFromInt(20)}
	repo := &ledgerRepoStub{
		group:         &domain.Group{ID: uuid.New()},
		acquireCached: cached,
	}
	publisher := &publisherStub{}
	svc := NewService(repo, nil, publisher, nil, 6, time.Hour)

	resp, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "retry-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp != cached {
		t.Fatalf("expected the cached response, got %+v", resp)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect a second distribution for a replayed key")
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("did not expect events for a replayed key, got %v", publisher.routingKeys)
	}
}

func TestLogFailure_RejectsInFlightDuplicate(t *testing.T) {
	repo := &ledgerRepoStub{
		group:     &domain.Group{ID: uuid.New()},
		acquireOK: false,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "retry-2")
	if !errors.Is(err, store.ErrFailureIdempotencyInProgress) {
		t.Fatalf("expected ErrFailureIdempotencyInProgress, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution while the key is held")
	}
}

func TestLogFailure_ReleasesKeyWhenDistributionFails(t *testing.T) {
	repo := &ledgerRepoStub{
		group:         &domain.Group{ID: uuid.New()},
		acquireOK:     true,
		distributeErr: errors.New("deadlock detected"),
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "retry-3")
	if err == nil {
		t.Fatal("expected distribution error to bubble up")
	}
	if !repo.releaseCalled {
		t.Fatal("expected the idempotency key to be released after a failed distribution")
	}
	if repo.completeCalled {
		t.Fatal("did not expect a stored response for a failed distribution")
	}
}

func TestLogFailure_StoresResponseUnderIdempotencyKey(t *testing.T) {
	repo := &ledgerRepoStub{
		group:     &domain.Group{ID: uuid.New()},
		acquireOK: true,
		distributeResult: &store.DistributeFailureResult{
			TransactionsCreated: 1,
			PenaltyAmount:       decimal.NewFromInt(5),
			TotalDebt:           decimal.NewFromInt(5),
		},
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	if _, err := svc.LogFailure(context.Background(), repo.group.ID, uuid.New(), domain.LogFailureRequest{}, "retry-4"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.completeCalled {
		t.Fatal("expected the response to be stored under the idempotency key")
	}
	if repo.storedResponse.TransactionsCreated != 1 {
		t.Fatalf("expected stored response with 1 transaction, got %+v", repo.storedResponse)
	}
	if repo.lastHash == "" {
		t.Fatal("expected a request hash alongside the idempotency key")
	}
}

func TestFailureRequestHash_DistinguishesBodies(t *testing.T) {
	groupID := uuid.New()
	base := failureRequestHash(groupID, domain.LogFailureRequest{Description: ptrString("late")})
	if base != failureRequestHash(groupID, domain.LogFailureRequest{Description: ptrString("late")}) {
		t.Fatal("expected identical requests to hash identically")
	}
	if base == failureRequestHash(groupID, domain.LogFailureRequest{Description: ptrString("later")}) {
		t.Fatal("expected different descriptions to hash differently")
	}
	if base == failureRequestHash(uuid.New(), domain.LogFailureRequest{Description: ptrString("late")}) {
		t.Fatal("expected different groups to hash differently")
	}
}

func TestSettleDebt_DebtorSettlesAndEventPublishes(t *testing.T) {
	debtorID := uuid.New()
	creditorID := uuid.New()
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	pending := &domain.Transaction{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		FromUserID: debtorID,
		ToUserID:   creditorID,
		Amount:     decimal.NewFromInt(10),
		Status:     domain.TransactionStatusPending,
	}
	settled := *pending
	settled.Status = domain.TransactionStatusPaid
	settled.SettledAt = &now

	repo := &ledgerRepoStub{transaction: pending, settled: &settled}
	publisher := &publisherStub{}
	svc := NewService(repo, nil, publisher, nil, 6, time.Hour)
	svc.now = func() time.Time { return now }

	resp, err := svc.SettleDebt(context.Background(), pending.ID, debtorID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !resp.Success {
		t.Fatal("expected a successful settlement")
	}
	if resp.Transaction.Status != domain.TransactionStatusPaid {
		t.Fatalf("expected paid status, got %q", resp.Transaction.Status)
	}
	if !repo.lastSettledAt.Equal(now) {
		t.Fatalf("expected settlement timestamp %v, got %v", now, repo.lastSettledAt)
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "ledger.debt.settled" {
		t.Fatalf("expected one ledger.debt.settled event, got %v", publisher.routingKeys)
	}
}

func TestSettleDebt_GroupCreatorMaySettle(t *testing.T) {
	creatorID := uuid.New()
	pending := &domain.Transaction{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Amount:     decimal.NewFromInt(10),
		Status:     domain.TransactionStatusPending,
	}
	settled := *pending
	settled.Status = domain.TransactionStatusPaid

	repo := &ledgerRepoStub{
		group:       &domain.Group{ID: pending.GroupID, CreatedBy: creatorID},
		transaction: pending,
		settled:     &settled,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	if _, err := svc.SettleDebt(context.Background(), pending.ID, creatorID); err != nil {
		t.Fatalf("expected the group creator to settle, got %v", err)
	}
	if !repo.settleCalled {
		t.Fatal("expected the settlement to reach the repository")
	}
}

func TestSettleDebt_RejectsOutsiders(t *testing.T) {
	pending := &domain.Transaction{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		FromUserID: uuid.New(),
		ToUserID:   uuid.New(),
		Amount:     decimal.NewFromInt(10),
		Status:     domain.TransactionStatusPending,
	}
	repo := &ledgerRepoStub{
		group:       &domain.Group{ID: pending.GroupID, CreatedBy: uuid.New()},
		transaction: pending,
	}
	svc := NewService(repo, nil, nil, nil, 6, time.Hour)

	_, err := svc.SettleDebt(context.Background(), pending.ID, uuid.New())
	if !errors.Is(err, ErrNotTransactionParty) {
		t.Fatalf("expected ErrNotTransactionParty, got %v", err)
	}
	if repo.settleCalled {
		t.Fatal("did not expect a settlement attempt for an outsider")
	}
}

func TestSettleDebt_AlreadySettledFailsWithoutEvent(t *testing.T) {
	debtorID := uuid.New()
	paid := &domain.Transaction{
		ID:         uuid.New(),
		GroupID:    uuid.New(),
		FromUserID: debtorID,
		ToUserID:   uuid.New(),
		Amount:     decimal.NewFromInt(10),
		Status:     domain.TransactionStatusPaid,
	}
	repo := &ledgerRepoStub{
		transaction: paid,
		settleErr:   store.ErrTransactionAlreadySettled,
	}
	publisher := &publisherStub{}
	svc := NewService(repo, nil, publisher, nil, 6, time.Hour)

	_, err := svc.SettleDebt(context.Background(), paid.ID, debtorID)
	if !errors.Is(err, store.ErrTransactionAlreadySettled) {
		t.Fatalf("expected ErrTransactionAlreadySettled, got %v", err)
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("did not expect events for a rejected settlement, got %v", publisher.routingKeys)
	}
}

func ptrString(value string) *string {
	return &value
}
