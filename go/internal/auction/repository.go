package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mcdev12/pennyauction/go/internal/models"
	"github.com/mcdev12/pennyauction/go/internal/sqlutil"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements Store on Postgres.
type Repository struct {
	db DBTX
}

// NewRepository creates a new auction repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// InTx runs fn in a transaction, or in a savepoint when already inside one.
func (r *Repository) InTx(ctx context.Context, fn func(tx Store) error) error {
	return sqlutil.RunTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

const auctionColumns = `id, display_code, title, description, image_url, retail_price, starting_price,
	current_price, bid_increment, status, start_time, end_time, countdown_seconds, winner_id,
	is_bid_package, created_at, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var (
		a       models.Auction
		endTime pgtype.Timestamptz
		winner  pgtype.UUID
	)
	err := row.Scan(
		&a.ID, &a.DisplayCode, &a.Title, &a.Description, &a.ImageURL,
		&a.RetailPrice, &a.StartingPrice, &a.CurrentPrice, &a.BidIncrement,
		&a.Status, &a.StartTime, &endTime, &a.CountdownSeconds, &winner,
		&a.IsBidPackage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.EndTime = sqlutil.FromPgTimestamptz(endTime)
	a.WinnerID = sqlutil.FromPgUUID(winner)
	return &a, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

// GetAuction retrieves an auction by ID
func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := scanAuction(r.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", notFound(err, ErrAuctionNotFound))
	}
	return a, nil
}

// LockAuction retrieves an auction and holds its row lock
func (r *Repository) LockAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := scanAuction(r.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock auction: %w", notFound(err, ErrAuctionNotFound))
	}
	return a, nil
}

// ListAuctionsByStatus lists auctions in a status, earliest start first
func (r *Repository) ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE status = $1 ORDER BY start_time, id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var out []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return out, nil
}

// CreateAuction inserts a new auction
func (r *Repository) CreateAuction(ctx context.Context, a *models.Auction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.DisplayCode, a.Title, a.Description, a.ImageURL,
		a.RetailPrice, a.StartingPrice, a.CurrentPrice, a.BidIncrement,
		a.Status, a.StartTime, sqlutil.ToPgTimestamptz(a.EndTime), a.CountdownSeconds,
		sqlutil.ToPgUUID(a.WinnerID), a.IsBidPackage, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

// UpdateAuction writes the fields the state machine mutates
func (r *Repository) UpdateAuction(ctx context.Context, a *models.Auction) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET status = $2, current_price = $3, end_time = $4, winner_id = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, a.Status, a.CurrentPrice, sqlutil.ToPgTimestamptz(a.EndTime),
		sqlutil.ToPgUUID(a.WinnerID), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update auction: %w", ErrAuctionNotFound)
	}
	return nil
}

// DeleteAuction removes an auction; bids, prebids and assignments cascade
func (r *Repository) DeleteAuction(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete auction: %w", ErrAuctionNotFound)
	}
	return nil
}

// NextDisplayNumber draws the next number for a display code
func (r *Repository) NextDisplayNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('auction_display_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to draw display number: %w", err)
	}
	return n, nil
}

// CreateBid inserts a bid
func (r *Repository) CreateBid(ctx context.Context, bid *models.Bid) error {
	userID, botID := bid.Owner.Columns()
	_, err := r.db.Exec(ctx, `
		INSERT INTO bids (id, auction_id, user_id, bot_id, is_bot, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.ID, bid.AuctionID, sqlutil.ToPgUUID(userID), sqlutil.ToPgUUID(botID),
		bid.IsBot(), bid.Amount, bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bid: %w", err)
	}
	return nil
}

// ListRecentBids lists the newest bids of an auction
func (r *Repository) ListRecentBids(ctx context.Context, auctionID uuid.UUID, limit int) ([]models.Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, auction_id, user_id, bot_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, seq DESC
		LIMIT $2`, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		var (
			b             models.Bid
			userID, botID pgtype.UUID
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &userID, &botID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.Owner, err = models.OwnerFromColumns(sqlutil.FromPgUUID(userID), sqlutil.FromPgUUID(botID))
		if err != nil {
			return nil, fmt.Errorf("bid %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return out, nil
}

// CreatePrebid inserts a prebid; the (auction, user) pair is unique
func (r *Repository) CreatePrebid(ctx context.Context, p *models.Prebid) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prebids (id, auction_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.AuctionID, p.UserID, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePrebid
		}
		return fmt.Errorf("failed to create prebid: %w", err)
	}
	return nil
}

// ListPrebids lists prebids oldest first
func (r *Repository) ListPrebids(ctx context.Context, auctionID uuid.UUID) ([]models.Prebid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, auction_id, user_id, created_at
		FROM prebids
		WHERE auction_id = $1
		ORDER BY created_at, seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prebids: %w", err)
	}
	defer rows.Close()

	var out []models.Prebid
	for rows.Next() {
		var p models.Prebid
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.UserID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prebid: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list prebids: %w", err)
	}
	return out, nil
}

// HasPrebid reports whether the user already holds a prebid on the auction
func (r *Repository) HasPrebid(ctx context.Context, auctionID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prebids WHERE auction_id = $1 AND user_id = $2)`,
		auctionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check prebid: %w", err)
	}
	return exists, nil
}

const userColumns = `id, username, email, bid_balance, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.BidBalance, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", notFound(err, ErrUserNotFound))
	}
	return u, nil
}

// LockUser retrieves a user and holds its row lock
func (r *Repository) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", notFound(err, ErrUserNotFound))
	}
	return u, nil
}

// UpdateUserBalance sets a user's bid balance
func (r *Repository) UpdateUserBalance(ctx context.Context, id uuid.UUID, balance int) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET bid_balance = $2 WHERE id = $1`, id, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update balance: %w", ErrUserNotFound)
	}
	return nil
}

// DeleteUser removes a user together with everything that references them
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.InTx(ctx, func(tx Store) error {
		db := tx.(*Repository).db
		if _, err := db.Exec(ctx, `UPDATE auctions SET winner_id = NULL, updated_at = $2 WHERE winner_id = $1`, id, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to clear user wins: %w", err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM bids WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user bids: %w", err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM prebids WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user prebids: %w", err)
		}
		tag, err := db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// GetBot retrieves a bot by ID
func (r *Repository) GetBot(ctx context.Context, id uuid.UUID) (*models.Bot, error) {
	var b models.Bot
	err := r.db.QueryRow(ctx, `SELECT id, username, display_name, active FROM bots WHERE id = $1`, id).
		Scan(&b.ID, &b.Username, &b.DisplayName, &b.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot: %w", notFound(err, ErrBotNotFound))
	}
	return &b, nil
}

// DeleteBot removes a bot together with its bids and assignments
func (r *Repository) DeleteBot(ctx context.Context, id uuid.UUID) error {
	return r.InTx(ctx, func(tx Store) error {
		db := tx.(*Repository).db
		if _, err := db.Exec(ctx, `DELETE FROM bids WHERE bot_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete bot bids: %w", err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM auction_bots WHERE bot_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete bot assignments: %w", err)
		}
		tag, err := db.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete bot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrBotNotFound
		}
		return nil
	})
}

// ListBotAssignments lists the bots assigned to an auction
func (r *Repository) ListBotAssignments(ctx context.Context, auctionID uuid.UUID) ([]models.BotAssignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ab.auction_id, ab.bot_id, ab.bid_limit, ab.current_bids, ab.active,
		       b.id, b.username, b.display_name, b.active
		FROM auction_bots ab
		JOIN bots b ON b.id = ab.bot_id
		WHERE ab.auction_id = $1
		ORDER BY b.username`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bot assignments: %w", err)
	}
	defer rows.Close()

	var out []models.BotAssignment
	for rows.Next() {
		var a models.BotAssignment
		if err := rows.Scan(
			&a.AuctionID, &a.BotID, &a.BidLimit, &a.CurrentBids, &a.AuctionBot.Active,
			&a.Bot.ID, &a.Bot.Username, &a.Bot.DisplayName, &a.Bot.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bot assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bot assignments: %w", err)
	}
	return out, nil
}

// AssignBot creates or updates an assignment, keeping its bid count
func (r *Repository) AssignBot(ctx context.Context, ab models.AuctionBot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auction_bots (auction_id, bot_id, bid_limit, current_bids, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (auction_id, bot_id)
		DO UPDATE SET bid_limit = EXCLUDED.bid_limit, active = EXCLUDED.active`,
		ab.AuctionID, ab.BotID, ab.BidLimit, ab.CurrentBids, ab.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to assign bot: %w", err)
	}
	return nil
}

// UnassignBot removes an assignment
func (r *Repository) UnassignBot(ctx context.Context, auctionID, botID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auction_bots WHERE auction_id = $1 AND bot_id = $2`, auctionID, botID)
	if err != nil {
		return fmt.Errorf("failed to unassign bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotAssigned
	}
	return nil
}

// IncrementBotBids bumps the per-auction bid counter of a bot
func (r *Repository) IncrementBotBids(ctx context.Context, auctionID, botID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auction_bots SET current_bids = current_bids + 1
		WHERE auction_id = $1 AND bot_id = $2`, auctionID, botID)
	if err != nil {
		return fmt.Errorf("failed to increment bot bids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotAssigned
	}
	return nil
}

// InsertOutboxEvent writes a domain event; the insert trigger notifies the relay
func (r *Repository) InsertOutboxEvent(ctx context.Context, ev OutboxEvent) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auction_outbox (id, auction_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.AuctionID, ev.EventType, []byte(ev.Payload), ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", ev.EventType, err)
	}
	return nil
}
