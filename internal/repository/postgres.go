package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"craftbid/internal/auctionerrors"
	"craftbid/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id            TEXT PRIMARY KEY,
	seller_id     TEXT NOT NULL,
	product_id    TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	reserve_price NUMERIC(18, 2) NOT NULL,
	current_price NUMERIC(18, 2) NOT NULL,
	bid_increment NUMERIC(18, 2) NOT NULL,
	bid_count     INTEGER NOT NULL DEFAULT 0,
	quantity      INTEGER NOT NULL DEFAULT 1,
	anti_sniping  BOOLEAN NOT NULL DEFAULT FALSE,
	start_date    TIMESTAMPTZ NOT NULL,
	end_date      TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	winner_id     TEXT,
	visible       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	CHECK (current_price >= reserve_price),
	CHECK (end_date > start_date)
);
CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_date);

CREATE TABLE IF NOT EXISTS bids (
	id         TEXT PRIMARY KEY,
	auction_id TEXT NOT NULL REFERENCES auctions(id),
	bidder_id  TEXT NOT NULL,
	amount     NUMERIC(18, 2) NOT NULL,
	is_winning BOOLEAN NOT NULL DEFAULT FALSE,
	ip_address TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_auction_amount ON bids(auction_id, amount);
CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_winner ON bids(auction_id) WHERE is_winning;

CREATE TABLE IF NOT EXISTS wallets (
	user_id    TEXT PRIMARY KEY,
	balance    NUMERIC(18, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id              TEXT PRIMARY KEY,
	wallet_id       TEXT NOT NULL REFERENCES wallets(user_id),
	amount          NUMERIC(18, 2) NOT NULL,
	type            TEXT NOT NULL,
	auction_id      TEXT,
	hold_id         TEXT,
	counterparty_id TEXT,
	status          TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	reference       TEXT NOT NULL,
	settled_by      TEXT,
	settled_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (wallet_id, reference)
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_id);
CREATE INDEX IF NOT EXISTS idx_transactions_auction_type ON transactions(auction_id, type);

CREATE TABLE IF NOT EXISTS withdrawal_requests (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	wallet_id       TEXT NOT NULL REFERENCES wallets(user_id),
	amount          NUMERIC(18, 2) NOT NULL,
	status          TEXT NOT NULL,
	payment_details JSONB NOT NULL DEFAULT '{}',
	admin_notes     TEXT NOT NULL DEFAULT '',
	transaction_id  TEXT,
	requested_at    TIMESTAMPTZ NOT NULL,
	processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawal_requests(status);
CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawal_requests(user_id);

CREATE TABLE IF NOT EXISTS outbox_events (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	aggregate_id  TEXT NOT NULL,
	payload       JSONB NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	next_run_at   TIMESTAMPTZ NOT NULL,
	claimed_until TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_run_at);
`

const (
	auctionColumns     = `id, seller_id, product_id, title, reserve_price, current_price, bid_increment, bid_count, quantity, anti_sniping, start_date, end_date, status, winner_id, visible, created_at, updated_at`
	bidColumns         = `id, auction_id, bidder_id, amount, is_winning, ip_address, created_at`
	walletColumns      = `user_id, balance, active, created_at, updated_at`
	transactionColumns = `id, wallet_id, amount, type, auction_id, hold_id, counterparty_id, status, description, reference, settled_by, settled_at, created_at`
	withdrawalColumns  = `id, user_id, wallet_id, amount, status, payment_details, admin_notes, transaction_id, requested_at, processed_at`
)

// PostgresRepo implements Store on PostgreSQL; per-key serialization uses
// row locks (SELECT ... FOR UPDATE) held until the unit commits.
type PostgresRepo struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// ConnectDB initializes the connection pool
func ConnectDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// NewPostgresRepo creates a Store backed by db
func NewPostgresRepo(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, lockTimeout: lockTimeout}
}

// InitSchema creates the engine's tables and indexes if missing
func (r *PostgresRepo) InitSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a database transaction
func (r *PostgresRepo) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("repository: set lock timeout: %w", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: commit: %w", mapPgError(err))
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return fmt.Errorf("%w: %s", auctionerrors.ErrLockTimeout, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", auctionerrors.ErrDuplicate, pgErr.Message)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (models.Auction, error) {
	var a models.Auction
	var status string
	err := row.Scan(&a.AuctionID, &a.SellerID, &a.ProductID, &a.Title, &a.ReservePrice, &a.CurrentPrice,
		&a.BidIncrement, &a.BidCount, &a.Quantity, &a.AntiSniping, &a.StartDate, &a.EndDate, &status,
		&a.WinnerID, &a.Visible, &a.CreatedAt, &a.UpdatedAt)
	a.Status = models.AuctionStatus(status)
	return a, err
}

func scanBid(row rowScanner) (models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.IsWinning, &b.IPAddress, &b.CreatedAt)
	return b, err
}

func scanWallet(row rowScanner) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.Balance, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	var typ, status string
	err := row.Scan(&t.TransactionID, &t.WalletID, &t.Amount, &typ, &t.AuctionID, &t.HoldID, &t.CounterpartyID,
		&status, &t.Description, &t.Reference, &t.SettledBy, &t.SettledAt, &t.CreatedAt)
	t.Type = models.TransactionType(typ)
	t.Status = models.TransactionStatus(status)
	return t, err
}

func scanWithdrawal(row rowScanner) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var status string
	var details []byte
	err := row.Scan(&w.RequestID, &w.UserID, &w.WalletID, &w.Amount, &status, &details, &w.AdminNotes,
		&w.TransactionID, &w.RequestedAt, &w.ProcessedAt)
	if err != nil {
		return w, err
	}
	w.Status = models.WithdrawalStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &w.PaymentDetails); err != nil {
			return w, fmt.Errorf("decode payment details: %w", err)
		}
	}
	return w, nil
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func notFound(err error, sentinel error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, sentinel)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// GetAuction returns an auction by id
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := scanAuction(r.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID))
	if err != nil {
		return models.Auction{}, notFound(err, auctionerrors.ErrAuctionNotFound, "get auction %s", auctionID)
	}
	return a, nil
}

// ListBidsByAuction returns all bids for an auction, newest first
func (r *PostgresRepo) ListBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if _, err := r.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at DESC, amount DESC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return collect(rows, scanBid)
}

// ListAuctionsByBidder returns all auctions a user has bid on
func (r *PostgresRepo) ListAuctionsByBidder(ctx context.Context, bidderID string) ([]models.Auction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
		WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder_id = $1) ORDER BY end_date`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	auctions, err := collect(rows, scanAuction)
	if err != nil {
		return nil, err
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("list auctions for bidder %s: %w", bidderID, auctionerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// ListDueAuctions returns ids of auctions in status whose deadline has passed
func (r *PostgresRepo) ListDueAuctions(ctx context.Context, status models.AuctionStatus, before time.Time, limit int) ([]string, error) {
	deadline := "end_date"
	if status == models.AuctionPending {
		deadline = "start_date"
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM auctions WHERE status = $1 AND `+deadline+` <= $2
		ORDER BY end_date LIMIT $3`, string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	return collect(rows, func(row rowScanner) (string, error) {
		var id string
		return id, row.Scan(&id)
	})
}

// GetWallet returns a user's wallet
func (r *PostgresRepo) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return models.Wallet{}, notFound(err, auctionerrors.ErrWalletNotFound, "get wallet %s", userID)
	}
	return w, nil
}

// ListTransactions returns a wallet's ledger, oldest first
func (r *PostgresRepo) ListTransactions(ctx context.Context, walletID string) ([]models.Transaction, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE wallet_id = $1 ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

// ListAuctionTransactions returns every ledger entry related to an auction
func (r *PostgresRepo) ListAuctionTransactions(ctx context.Context, auctionID string) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE auction_id = $1 ORDER BY created_at, id`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

// GetWithdrawal returns a withdrawal request by id
func (r *PostgresRepo) GetWithdrawal(ctx context.Context, requestID string) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, requestID))
	if err != nil {
		return models.WithdrawalRequest{}, notFound(err, auctionerrors.ErrWithdrawalNotFound, "get withdrawal %s", requestID)
	}
	return w, nil
}

// ListWithdrawals returns matching requests, oldest first
func (r *PostgresRepo) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2) ORDER BY requested_at`,
		filter.UserID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	return collect(rows, scanWithdrawal)
}

// ClaimEvents leases due outbox rows; concurrent dispatchers skip locked rows
func (r *PostgresRepo) ClaimEvents(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.Event, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE outbox_events SET claimed_until = $2
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'PENDING' AND next_run_at <= $1 AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, type, aggregate_id, payload, attempts, next_run_at, created_at`,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim events: %w", err)
	}
	return collect(rows, func(row rowScanner) (models.Event, error) {
		var e models.Event
		return e, row.Scan(&e.EventID, &e.Type, &e.AggregateID, &e.Payload, &e.Attempts, &e.NextRunAt, &e.CreatedAt)
	})
}

// MarkEventDelivered marks an outbox row as sent
func (r *PostgresRepo) MarkEventDelivered(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status = 'COMPLETED' WHERE id = $1`, eventID)
	return err
}

// RescheduleEvent releases the lease and schedules another attempt
func (r *PostgresRepo) RescheduleEvent(ctx context.Context, eventID string, nextRun time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, next_run_at = $2, claimed_until = NULL WHERE id = $1`, eventID, nextRun)
	return err
}

// MarkEventFailed parks an event that exhausted its attempts
func (r *PostgresRepo) MarkEventFailed(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status = 'FAILED' WHERE id = $1`, eventID)
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := scanAuction(t.tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID))
	if err != nil {
		return models.Auction{}, notFound(mapPgError(err), auctionerrors.ErrAuctionNotFound, "lock auction %s", auctionID)
	}
	return a, nil
}

func (t *pgTx) TryLockAuction(ctx context.Context, auctionID string) (models.Auction, bool, error) {
	a, err := scanAuction(t.tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE SKIP LOCKED`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		// either gone or held by another unit; the caller skips both
		return models.Auction{}, false, nil
	}
	if err != nil {
		return models.Auction{}, false, fmt.Errorf("lock auction %s: %w", auctionID, err)
	}
	return a, true, nil
}

func (t *pgTx) InsertAuction(ctx context.Context, a models.Auction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.AuctionID, a.SellerID, a.ProductID, a.Title, a.ReservePrice, a.CurrentPrice, a.BidIncrement,
		a.BidCount, a.Quantity, a.AntiSniping, a.StartDate, a.EndDate, string(a.Status), a.WinnerID,
		a.Visible, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert auction %s: %w", a.AuctionID, mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateAuction(ctx context.Context, a models.Auction) error {
	_, err := t.tx.Exec(ctx, `UPDATE auctions SET current_price = $2, bid_count = $3, end_date = $4,
		status = $5, winner_id = $6, visible = $7, updated_at = $8 WHERE id = $1`,
		a.AuctionID, a.CurrentPrice, a.BidCount, a.EndDate, string(a.Status), a.WinnerID, a.Visible, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, err)
	}
	return nil
}

func (t *pgTx) InsertBid(ctx context.Context, b models.Bid) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.BidID, b.AuctionID, b.BidderID, b.Amount, b.IsWinning, b.IPAddress, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid %s: %w", b.BidID, mapPgError(err))
	}
	return nil
}

func (t *pgTx) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at, amount`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return collect(rows, scanBid)
}

func (t *pgTx) SetBidWinning(ctx context.Context, bidID string, winning bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bids SET is_winning = $2 WHERE id = $1`, bidID, winning)
	if err != nil {
		return fmt.Errorf("set winning flag on bid %s: %w", bidID, mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set winning flag on bid %s: %w", bidID, auctionerrors.ErrNoBids)
	}
	return nil
}

func (t *pgTx) LockWallets(ctx context.Context, userIDs ...string) (map[string]models.Wallet, error) {
	ids := sortedUnique(userIDs)
	rows, err := t.tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = ANY($1) ORDER BY user_id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock wallets: %w", mapPgError(err))
	}
	wallets, err := collect(rows, scanWallet)
	if err != nil {
		return nil, mapPgError(err)
	}

	out := make(map[string]models.Wallet, len(wallets))
	for _, w := range wallets {
		out[w.UserID] = w
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("lock wallet %s: %w", id, auctionerrors.ErrWalletNotFound)
		}
	}
	return out, nil
}

func (t *pgTx) Wallet(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Wallet{}, notFound(mapPgError(err), auctionerrors.ErrWalletNotFound, "wallet %s", userID)
	}
	return w, nil
}

func (t *pgTx) InsertWallet(ctx context.Context, w models.Wallet) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		w.UserID, w.Balance, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet %s: %w", w.UserID, mapPgError(err))
	}
	return nil
}

func (t *pgTx) UpdateWalletBalance(ctx context.Context, userID string, balance decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE user_id = $1`, userID, balance, at)
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update wallet %s: %w", userID, auctionerrors.ErrWalletNotFound)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr models.Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tr.TransactionID, tr.WalletID, tr.Amount, string(tr.Type), tr.AuctionID, tr.HoldID, tr.CounterpartyID,
		string(tr.Status), tr.Description, tr.Reference, tr.SettledBy, tr.SettledAt, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tr.Reference, mapPgError(err))
	}
	return nil
}

func (t *pgTx) FindTransactionByReference(ctx context.Context, walletID, reference string) (models.Transaction, bool, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 AND reference = $2`, walletID, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, false, nil
	}
	if err != nil {
		return models.Transaction{}, false, fmt.Errorf("find transaction %s: %w", reference, err)
	}
	return tr, true, nil
}

func (t *pgTx) ListHolds(ctx context.Context, auctionID string) ([]models.Transaction, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE auction_id = $1 AND type = $2 ORDER BY created_at, id`, auctionID, string(models.TxBidHold))
	if err != nil {
		return nil, fmt.Errorf("failed to query holds: %w", err)
	}
	return collect(rows, scanTransaction)
}

func (t *pgTx) MarkHoldSettled(ctx context.Context, holdID, settledBy string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE transactions SET settled_by = $2, settled_at = $3
		WHERE id = $1 AND type = $4 AND settled_by IS NULL`, holdID, settledBy, at, string(models.TxBidHold))
	if err != nil {
		return fmt.Errorf("settle hold %s: %w", holdID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1 AND type = $2)`,
		holdID, string(models.TxBidHold)).Scan(&exists); err != nil {
		return fmt.Errorf("settle hold %s: %w", holdID, err)
	}
	if exists {
		return fmt.Errorf("settle hold %s: %w", holdID, auctionerrors.ErrAlreadySettled)
	}
	return fmt.Errorf("settle hold %s: %w", holdID, auctionerrors.ErrNoActiveHold)
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w models.WithdrawalRequest) error {
	details, err := json.Marshal(w.PaymentDetails)
	if err != nil {
		return fmt.Errorf("encode payment details: %w", err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO withdrawal_requests (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.RequestID, w.UserID, w.WalletID, w.Amount, string(w.Status), details, w.AdminNotes,
		w.TransactionID, w.RequestedAt, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal %s: %w", w.RequestID, mapPgError(err))
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, requestID string) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(t.tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, requestID))
	if err != nil {
		return models.WithdrawalRequest{}, notFound(mapPgError(err), auctionerrors.ErrWithdrawalNotFound, "lock withdrawal %s", requestID)
	}
	return w, nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w models.WithdrawalRequest) error {
	_, err := t.tx.Exec(ctx, `UPDATE withdrawal_requests SET status = $2, admin_notes = $3, transaction_id = $4,
		processed_at = $5 WHERE id = $1`, w.RequestID, string(w.Status), w.AdminNotes, w.TransactionID, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("update withdrawal %s: %w", w.RequestID, err)
	}
	return nil
}

func (t *pgTx) SumOutstandingWithdrawals(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM withdrawal_requests
		WHERE user_id = $1 AND status IN ($2, $3)`,
		userID, string(models.WithdrawalPending), string(models.WithdrawalApproved)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum outstanding withdrawals for %s: %w", userID, err)
	}
	return sum, nil
}

func (t *pgTx) EnqueueEvent(ctx context.Context, e models.Event) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox_events (id, type, aggregate_id, payload, attempts, next_run_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, e.EventID, e.Type, e.AggregateID, e.Payload, e.Attempts, e.NextRunAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue event %s: %w", e.EventID, err)
	}
	return nil
}
