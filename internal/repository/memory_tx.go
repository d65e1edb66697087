package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/models"

	"github.com/shopspring/decimal"
)

type holdSettlement struct {
	by string
	at time.Time
}

type bidFlag struct {
	auctionID string
	winning   bool
}

// memTx stages every write of one unit and applies them under the repo mutex
// on commit, so readers never observe a half-applied unit.
type memTx struct {
	repo *MemoryRepo

	held      []string
	heldSet   map[string]bool
	maxWallet string

	auctions    map[string]models.Auction
	newBids     []models.Bid
	bidFlags    map[string]bidFlag
	wallets     map[string]models.Wallet
	newTxs      []models.Transaction
	settles     map[string]holdSettlement
	withdrawals map[string]models.WithdrawalRequest
	events      []models.Event
}

func newMemTx(r *MemoryRepo) *memTx {
	return &memTx{
		repo:        r,
		heldSet:     make(map[string]bool),
		auctions:    make(map[string]models.Auction),
		bidFlags:    make(map[string]bidFlag),
		wallets:     make(map[string]models.Wallet),
		settles:     make(map[string]holdSettlement),
		withdrawals: make(map[string]models.WithdrawalRequest),
	}
}

func auctionKey(id string) string    { return "auction:" + id }
func walletKey(id string) string     { return "wallet:" + id }
func withdrawalKey(id string) string { return "withdrawal:" + id }

func (t *memTx) acquire(ctx context.Context, key string) error {
	if t.heldSet[key] {
		return nil
	}
	if err := t.repo.locks.lock(ctx, key, t.repo.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, key)
	t.heldSet[key] = true
	return nil
}

func (t *memTx) requireHeld(key string) error {
	if !t.heldSet[key] {
		return fmt.Errorf("repository: %s is not locked by this unit", key)
	}
	return nil
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.repo.locks.unlock(t.held[i])
	}
	t.held = nil
}

func (t *memTx) auction(id string) (models.Auction, bool) {
	if a, ok := t.auctions[id]; ok {
		return a, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	a, ok := t.repo.auctions[id]
	return a, ok
}

func (t *memTx) LockAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if err := t.acquire(ctx, auctionKey(auctionID)); err != nil {
		return models.Auction{}, err
	}
	a, ok := t.auction(auctionID)
	if !ok {
		return models.Auction{}, fmt.Errorf("lock auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

func (t *memTx) TryLockAuction(_ context.Context, auctionID string) (models.Auction, bool, error) {
	key := auctionKey(auctionID)
	if !t.heldSet[key] {
		if !t.repo.locks.tryLock(key) {
			return models.Auction{}, false, nil
		}
		t.held = append(t.held, key)
		t.heldSet[key] = true
	}
	a, ok := t.auction(auctionID)
	if !ok {
		return models.Auction{}, false, fmt.Errorf("lock auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return a, true, nil
}

func (t *memTx) InsertAuction(ctx context.Context, a models.Auction) error {
	if err := t.acquire(ctx, auctionKey(a.AuctionID)); err != nil {
		return err
	}
	if _, exists := t.auction(a.AuctionID); exists {
		return fmt.Errorf("insert auction %s: %w", a.AuctionID, auctionerrors.ErrDuplicate)
	}
	t.auctions[a.AuctionID] = a
	return nil
}

func (t *memTx) UpdateAuction(_ context.Context, a models.Auction) error {
	if err := t.requireHeld(auctionKey(a.AuctionID)); err != nil {
		return err
	}
	t.auctions[a.AuctionID] = a
	return nil
}

func (t *memTx) InsertBid(_ context.Context, b models.Bid) error {
	if err := t.requireHeld(auctionKey(b.AuctionID)); err != nil {
		return err
	}
	t.newBids = append(t.newBids, b)
	return nil
}

func (t *memTx) ListBids(_ context.Context, auctionID string) ([]models.Bid, error) {
	t.repo.mu.RLock()
	bids := append([]models.Bid(nil), t.repo.bids[auctionID]...)
	t.repo.mu.RUnlock()

	for _, b := range t.newBids {
		if b.AuctionID == auctionID {
			bids = append(bids, b)
		}
	}
	for i := range bids {
		if f, ok := t.bidFlags[bids[i].BidID]; ok {
			bids[i].IsWinning = f.winning
		}
	}
	return bids, nil
}

func (t *memTx) SetBidWinning(ctx context.Context, bidID string, winning bool) error {
	for i := range t.newBids {
		if t.newBids[i].BidID == bidID {
			t.newBids[i].IsWinning = winning
			return nil
		}
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	for auctionID, bids := range t.repo.bids {
		for _, b := range bids {
			if b.BidID == bidID {
				if err := t.requireHeld(auctionKey(auctionID)); err != nil {
					return err
				}
				t.bidFlags[bidID] = bidFlag{auctionID: auctionID, winning: winning}
				return nil
			}
		}
	}
	return fmt.Errorf("set winning flag on bid %s: %w", bidID, auctionerrors.ErrNoBids)
}

func (t *memTx) wallet(id string) (models.Wallet, bool) {
	if w, ok := t.wallets[id]; ok {
		return w, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	w, ok := t.repo.wallets[id]
	return w, ok
}

func (t *memTx) lockWallet(ctx context.Context, userID string) error {
	key := walletKey(userID)
	if t.heldSet[key] {
		return nil
	}
	if t.maxWallet != "" && userID < t.maxWallet {
		return fmt.Errorf("repository: wallet %s locked after %s violates lock order", userID, t.maxWallet)
	}
	if err := t.acquire(ctx, key); err != nil {
		return err
	}
	t.maxWallet = userID
	return nil
}

func (t *memTx) LockWallets(ctx context.Context, userIDs ...string) (map[string]models.Wallet, error) {
	ids := sortedUnique(userIDs)
	for _, id := range ids {
		if err := t.lockWallet(ctx, id); err != nil {
			return nil, err
		}
	}

	out := make(map[string]models.Wallet, len(ids))
	for _, id := range ids {
		w, ok := t.wallet(id)
		if !ok {
			return nil, fmt.Errorf("lock wallet %s: %w", id, auctionerrors.ErrWalletNotFound)
		}
		out[id] = w
	}
	return out, nil
}

func (t *memTx) Wallet(_ context.Context, userID string) (models.Wallet, error) {
	if err := t.requireHeld(walletKey(userID)); err != nil {
		return models.Wallet{}, err
	}
	w, ok := t.wallet(userID)
	if !ok {
		return models.Wallet{}, fmt.Errorf("wallet %s: %w", userID, auctionerrors.ErrWalletNotFound)
	}
	return w, nil
}

func (t *memTx) InsertWallet(ctx context.Context, w models.Wallet) error {
	if err := t.lockWallet(ctx, w.UserID); err != nil {
		return err
	}
	if _, exists := t.wallet(w.UserID); exists {
		return fmt.Errorf("insert wallet %s: %w", w.UserID, auctionerrors.ErrDuplicate)
	}
	t.wallets[w.UserID] = w
	return nil
}

func (t *memTx) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	w, err := t.Wallet(ctx, userID)
	if err != nil {
		return err
	}
	w.Balance = balance
	w.UpdatedAt = at
	t.wallets[userID] = w
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr models.Transaction) error {
	if err := t.requireHeld(walletKey(tr.WalletID)); err != nil {
		return err
	}
	if _, found, _ := t.FindTransactionByReference(ctx, tr.WalletID, tr.Reference); found {
		return fmt.Errorf("insert transaction %s: %w", tr.Reference, auctionerrors.ErrDuplicate)
	}
	t.newTxs = append(t.newTxs, tr)
	return nil
}

func (t *memTx) FindTransactionByReference(_ context.Context, walletID, reference string) (models.Transaction, bool, error) {
	for _, tr := range t.newTxs {
		if tr.WalletID == walletID && tr.Reference == reference {
			return tr, true, nil
		}
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	id, ok := t.repo.txByRef[refKey(walletID, reference)]
	if !ok {
		return models.Transaction{}, false, nil
	}
	loc := t.repo.txByID[id]
	return t.applySettlement(t.repo.transactions[loc.walletID][loc.index]), true, nil
}

func (t *memTx) applySettlement(tr models.Transaction) models.Transaction {
	if s, ok := t.settles[tr.TransactionID]; ok {
		by, at := s.by, s.at
		tr.SettledBy = &by
		tr.SettledAt = &at
	}
	return tr
}

func (t *memTx) ListHolds(_ context.Context, auctionID string) ([]models.Transaction, error) {
	t.repo.mu.RLock()
	holds := make([]models.Transaction, 0, len(t.repo.holds[auctionID]))
	for _, id := range t.repo.holds[auctionID] {
		loc := t.repo.txByID[id]
		holds = append(holds, t.repo.transactions[loc.walletID][loc.index])
	}
	t.repo.mu.RUnlock()

	for _, tr := range t.newTxs {
		if tr.Type == models.TxBidHold && tr.AuctionID != nil && *tr.AuctionID == auctionID {
			holds = append(holds, tr)
		}
	}
	for i := range holds {
		holds[i] = t.applySettlement(holds[i])
	}
	return holds, nil
}

func (t *memTx) findTransaction(id string) (models.Transaction, bool) {
	for _, tr := range t.newTxs {
		if tr.TransactionID == id {
			return t.applySettlement(tr), true
		}
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	loc, ok := t.repo.txByID[id]
	if !ok {
		return models.Transaction{}, false
	}
	return t.applySettlement(t.repo.transactions[loc.walletID][loc.index]), true
}

func (t *memTx) MarkHoldSettled(_ context.Context, holdID, settledBy string, at time.Time) error {
	hold, ok := t.findTransaction(holdID)
	if !ok || hold.Type != models.TxBidHold {
		return fmt.Errorf("settle hold %s: %w", holdID, auctionerrors.ErrNoActiveHold)
	}
	if err := t.requireHeld(walletKey(hold.WalletID)); err != nil {
		return err
	}
	if hold.SettledBy != nil {
		return fmt.Errorf("settle hold %s: %w", holdID, auctionerrors.ErrAlreadySettled)
	}
	t.settles[holdID] = holdSettlement{by: settledBy, at: at}
	return nil
}

func (t *memTx) withdrawal(id string) (models.WithdrawalRequest, bool) {
	if w, ok := t.withdrawals[id]; ok {
		return w, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	w, ok := t.repo.withdrawals[id]
	return w, ok
}

func (t *memTx) InsertWithdrawal(ctx context.Context, w models.WithdrawalRequest) error {
	if err := t.acquire(ctx, withdrawalKey(w.RequestID)); err != nil {
		return err
	}
	if _, exists := t.withdrawal(w.RequestID); exists {
		return fmt.Errorf("insert withdrawal %s: %w", w.RequestID, auctionerrors.ErrDuplicate)
	}
	t.withdrawals[w.RequestID] = w
	return nil
}

func (t *memTx) LockWithdrawal(ctx context.Context, requestID string) (models.WithdrawalRequest, error) {
	if err := t.acquire(ctx, withdrawalKey(requestID)); err != nil {
		return models.WithdrawalRequest{}, err
	}
	w, ok := t.withdrawal(requestID)
	if !ok {
		return models.WithdrawalRequest{}, fmt.Errorf("lock withdrawal %s: %w", requestID, auctionerrors.ErrWithdrawalNotFound)
	}
	return w, nil
}

func (t *memTx) UpdateWithdrawal(_ context.Context, w models.WithdrawalRequest) error {
	if err := t.requireHeld(withdrawalKey(w.RequestID)); err != nil {
		return err
	}
	t.withdrawals[w.RequestID] = w
	return nil
}

func (t *memTx) SumOutstandingWithdrawals(_ context.Context, userID string) (decimal.Decimal, error) {
	merged := make(map[string]models.WithdrawalRequest)
	t.repo.mu.RLock()
	for id, w := range t.repo.withdrawals {
		if w.UserID == userID {
			merged[id] = w
		}
	}
	t.repo.mu.RUnlock()
	for id, w := range t.withdrawals {
		if w.UserID == userID {
			merged[id] = w
		}
	}

	sum := decimal.Zero
	for _, w := range merged {
		if w.Status.Outstanding() {
			sum = sum.Add(w.Amount)
		}
	}
	return sum, nil
}

func (t *memTx) EnqueueEvent(_ context.Context, e models.Event) error {
	t.events = append(t.events, e)
	return nil
}

func (t *memTx) commit() {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range t.auctions {
		r.auctions[id] = a
	}

	for _, b := range t.newBids {
		r.bids[b.AuctionID] = append(r.bids[b.AuctionID], b)
		if !containsString(r.bidderAuctions[b.BidderID], b.AuctionID) {
			r.bidderAuctions[b.BidderID] = append(r.bidderAuctions[b.BidderID], b.AuctionID)
		}
	}
	for bidID, f := range t.bidFlags {
		bids := r.bids[f.auctionID]
		for i := range bids {
			if bids[i].BidID == bidID {
				bids[i].IsWinning = f.winning
			}
		}
	}

	for id, w := range t.wallets {
		r.wallets[id] = w
	}

	for _, tr := range t.newTxs {
		r.transactions[tr.WalletID] = append(r.transactions[tr.WalletID], tr)
		r.txByID[tr.TransactionID] = txLocation{walletID: tr.WalletID, index: len(r.transactions[tr.WalletID]) - 1}
		r.txByRef[refKey(tr.WalletID, tr.Reference)] = tr.TransactionID
		if tr.Type == models.TxBidHold && tr.AuctionID != nil {
			r.holds[*tr.AuctionID] = append(r.holds[*tr.AuctionID], tr.TransactionID)
		}
	}
	for holdID, s := range t.settles {
		loc := r.txByID[holdID]
		by, at := s.by, s.at
		r.transactions[loc.walletID][loc.index].SettledBy = &by
		r.transactions[loc.walletID][loc.index].SettledAt = &at
	}

	for id, w := range t.withdrawals {
		r.withdrawals[id] = w
	}

	for _, e := range t.events {
		r.outbox[e.EventID] = &outboxEntry{event: e}
		r.outboxOrder = append(r.outboxOrder, e.EventID)
	}
}

func refKey(walletID, reference string) string {
	return walletID + "|" + reference
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
