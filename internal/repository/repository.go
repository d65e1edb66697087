package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/models"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// Store defines the persistence boundary of the auction engine. Reads outside
// WithinTx only ever observe committed state.
type Store interface {
	// WithinTx runs fn as one atomic unit: every write made through tx is
	// committed together when fn returns nil, and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	ListAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error)
	ListDueAuctions(ctx context.Context, status models.AuctionStatus, before time.Time, limit int) ([]string, error)

	GetWallet(ctx context.Context, userID string) (models.Wallet, error)
	ListTransactions(ctx context.Context, walletID string) ([]models.Transaction, error)
	ListAuctionTransactions(ctx context.Context, auctionID string) ([]models.Transaction, error)

	GetWithdrawal(ctx context.Context, requestID string) (models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, error)

	ClaimEvents(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.Event, error)
	MarkEventDelivered(ctx context.Context, eventID string) error
	RescheduleEvent(ctx context.Context, eventID string, nextRun time.Time) error
	MarkEventFailed(ctx context.Context, eventID string) error
}

// Tx is the write side of one atomic unit. Locks taken through a Tx are held
// until the unit commits or rolls back. Lock order is auction, then
// withdrawal, then wallets; wallets are always locked in ascending id order.
type Tx interface {
	LockAuction(ctx context.Context, auctionID string) (models.Auction, error)
	// TryLockAuction is LockAuction that gives up immediately when another
	// unit holds the lock.
	TryLockAuction(ctx context.Context, auctionID string) (models.Auction, bool, error)
	InsertAuction(ctx context.Context, a models.Auction) error
	UpdateAuction(ctx context.Context, a models.Auction) error

	InsertBid(ctx context.Context, b models.Bid) error
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	SetBidWinning(ctx context.Context, bidID string, winning bool) error

	LockWallets(ctx context.Context, userIDs ...string) (map[string]models.Wallet, error)
	// Wallet returns a wallet already locked by this unit, including its
	// uncommitted balance.
	Wallet(ctx context.Context, userID string) (models.Wallet, error)
	InsertWallet(ctx context.Context, w models.Wallet) error
	UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error

	InsertTransaction(ctx context.Context, t models.Transaction) error
	FindTransactionByReference(ctx context.Context, walletID, reference string) (models.Transaction, bool, error)
	ListHolds(ctx context.Context, auctionID string) ([]models.Transaction, error)
	MarkHoldSettled(ctx context.Context, holdID, settledBy string, at time.Time) error

	InsertWithdrawal(ctx context.Context, w models.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, requestID string) (models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w models.WithdrawalRequest) error
	SumOutstandingWithdrawals(ctx context.Context, userID string) (decimal.Decimal, error)

	EnqueueEvent(ctx context.Context, e models.Event) error
}

// WithdrawalFilter narrows ListWithdrawals; empty fields match everything
type WithdrawalFilter struct {
	UserID string
	Status models.WithdrawalStatus
}

func (f WithdrawalFilter) matches(w models.WithdrawalRequest) bool {
	if f.UserID != "" && w.UserID != f.UserID {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	return true
}

type txLocation struct {
	walletID string
	index    int
}

type outboxEntry struct {
	event        models.Event
	claimedUntil time.Time
	failed       bool
}

// MemoryRepo is a concurrency-safe in-memory implementation of Store
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]models.Auction
	bids           map[string][]models.Bid         // key: auctionID -> bids in acceptance order
	bidderAuctions map[string][]string             // key: bidderID -> auctionIDs the user has bid on
	wallets        map[string]models.Wallet        // key: userID
	transactions   map[string][]models.Transaction // key: walletID -> ledger in insertion order
	txByID         map[string]txLocation
	txByRef        map[string]string   // key: walletID|reference -> transactionID
	holds          map[string][]string // key: auctionID -> bid_hold transactionIDs
	withdrawals    map[string]models.WithdrawalRequest
	outbox         map[string]*outboxEntry
	outboxOrder    []string

	locks       *keyedLocks
	lockTimeout time.Duration
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]models.Auction),
		bids:           make(map[string][]models.Bid),
		bidderAuctions: make(map[string][]string),
		wallets:        make(map[string]models.Wallet),
		transactions:   make(map[string][]models.Transaction),
		txByID:         make(map[string]txLocation),
		txByRef:        make(map[string]string),
		holds:          make(map[string][]string),
		withdrawals:    make(map[string]models.WithdrawalRequest),
		outbox:         make(map[string]*outboxEntry),
		locks:          newKeyedLocks(),
		lockTimeout:    5 * time.Second,
	}
}

// WithLockTimeout bounds how long a unit waits for any single lock
func (r *MemoryRepo) WithLockTimeout(d time.Duration) *MemoryRepo {
	r.lockTimeout = d
	return r
}

// WithinTx runs fn as one atomic unit
func (r *MemoryRepo) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := newMemTx(r)
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	// a unit whose caller already gave up must have no observable effect
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repository: commit aborted: %w", err)
	}
	tx.commit()
	return nil
}

// GetAuction returns the committed state of an auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListBidsByAuction returns all bids for an auction, newest first
func (r *MemoryRepo) ListBidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	bids := r.bids[auctionID]
	out := make([]models.Bid, len(bids))
	for i, b := range bids {
		out[len(bids)-1-i] = b
	}
	return out, nil
}

// ListAuctionsByBidder returns all auctions a user has bid on
func (r *MemoryRepo) ListAuctionsByBidder(_ context.Context, bidderID string) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.bidderAuctions[bidderID]
	if !ok || len(ids) == 0 {
		return nil, fmt.Errorf("list auctions for bidder %s: %w", bidderID, auctionerrors.ErrUserNoBids)
	}
	auctions := make([]models.Auction, 0, len(ids))
	for _, id := range ids {
		if a, exists := r.auctions[id]; exists {
			auctions = append(auctions, a)
		}
	}
	return auctions, nil
}

// ListDueAuctions returns auctions in status whose relevant deadline is at or
// before the given time: start date for pending auctions, end date otherwise
func (r *MemoryRepo) ListDueAuctions(_ context.Context, status models.AuctionStatus, before time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]models.Auction, 0)
	for _, a := range r.auctions {
		if a.Status != status {
			continue
		}
		deadline := a.EndDate
		if status == models.AuctionPending {
			deadline = a.StartDate
		}
		if !deadline.After(before) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndDate.Before(due[j].EndDate) })

	ids := make([]string, 0, len(due))
	for _, a := range due {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, a.AuctionID)
	}
	return ids, nil
}

// GetWallet returns the committed state of a user's wallet
func (r *MemoryRepo) GetWallet(_ context.Context, userID string) (models.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[userID]
	if !ok {
		return models.Wallet{}, fmt.Errorf("get wallet %s: %w", userID, auctionerrors.ErrWalletNotFound)
	}
	return w, nil
}

// ListTransactions returns a wallet's ledger, oldest first
func (r *MemoryRepo) ListTransactions(_ context.Context, walletID string) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.wallets[walletID]; !ok {
		return nil, fmt.Errorf("list transactions for wallet %s: %w", walletID, auctionerrors.ErrWalletNotFound)
	}
	return append([]models.Transaction(nil), r.transactions[walletID]...), nil
}

// ListAuctionTransactions returns every ledger entry related to an auction
func (r *MemoryRepo) ListAuctionTransactions(_ context.Context, auctionID string) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Transaction, 0)
	for _, entries := range r.transactions {
		for _, t := range entries {
			if t.AuctionID != nil && *t.AuctionID == auctionID {
				out = append(out, t)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetWithdrawal returns a withdrawal request by id
func (r *MemoryRepo) GetWithdrawal(_ context.Context, requestID string) (models.WithdrawalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.withdrawals[requestID]
	if !ok {
		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal %s: %w", requestID, auctionerrors.ErrWithdrawalNotFound)
	}
	return w, nil
}

// ListWithdrawals returns matching requests, oldest first
func (r *MemoryRepo) ListWithdrawals(_ context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.WithdrawalRequest, 0)
	for _, w := range r.withdrawals {
		if filter.matches(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

// ClaimEvents leases up to limit due events so concurrent dispatchers skip them
func (r *MemoryRepo) ClaimEvents(_ context.Context, now time.Time, lease time.Duration, limit int) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := make([]models.Event, 0, limit)
	for _, id := range r.outboxOrder {
		if len(claimed) == limit {
			break
		}
		entry, ok := r.outbox[id]
		if !ok || entry.failed || entry.event.NextRunAt.After(now) || entry.claimedUntil.After(now) {
			continue
		}
		entry.claimedUntil = now.Add(lease)
		claimed = append(claimed, entry.event)
	}
	return claimed, nil
}

// MarkEventDelivered removes a delivered event from the outbox
func (r *MemoryRepo) MarkEventDelivered(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.outbox, eventID)
	for i, id := range r.outboxOrder {
		if id == eventID {
			r.outboxOrder = append(r.outboxOrder[:i], r.outboxOrder[i+1:]...)
			break
		}
	}
	return nil
}

// RescheduleEvent releases the lease and schedules another attempt
func (r *MemoryRepo) RescheduleEvent(_ context.Context, eventID string, nextRun time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.outbox[eventID]
	if !ok {
		return nil
	}
	entry.event.Attempts++
	entry.event.NextRunAt = nextRun
	entry.claimedUntil = time.Time{}
	return nil
}

// MarkEventFailed parks an event that exhausted its attempts
func (r *MemoryRepo) MarkEventFailed(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.outbox[eventID]; ok {
		entry.failed = true
	}
	return nil
}

// PendingEvents returns undelivered events in enqueue order. This method is intended for tests only.
func (r *MemoryRepo) PendingEvents() []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Event, 0, len(r.outboxOrder))
	for _, id := range r.outboxOrder {
		if entry, ok := r.outbox[id]; ok && !entry.failed {
			out = append(out, entry.event)
		}
	}
	return out
}

// AddAuction stores an auction directly, bypassing the lifecycle. This method is intended for tests only.
func (r *MemoryRepo) AddAuction(a models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.AuctionID] = a
}

// keyedLocks hands out one exclusive lock per key. A lock is a 1-slot
// channel so waiters can give up when their context ends.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		k.slots[key] = s
	}
	return s
}

func (k *keyedLocks) lock(ctx context.Context, key string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case k.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("repository: lock %s: %w", key, auctionerrors.ErrLockTimeout)
	}
}

func (k *keyedLocks) tryLock(key string) bool {
	select {
	case k.slot(key) <- struct{}{}:
		return true
	default:
		return false
	}
}

func (k *keyedLocks) unlock(key string) {
	<-k.slot(key)
}
