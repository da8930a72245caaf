package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/closemarketing/go-checkout-links/pkg/core/domain"
	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		products TEXT NOT NULL,
		expiry_hours INTEGER DEFAULT 0,
		expires_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		visits INTEGER DEFAULT 0,
		conversions INTEGER DEFAULT 0,
		status TEXT DEFAULT 'active'
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_links_token ON links(token);
	CREATE INDEX IF NOT EXISTS idx_links_status ON links(status);
	CREATE INDEX IF NOT EXISTS idx_links_created_at ON links(created_at);

	CREATE TABLE IF NOT EXISTS link_orders (
		order_id TEXT PRIMARY KEY,
		link_id INTEGER NOT NULL,
		counted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(link_id) REFERENCES links(id)
	);
	CREATE INDEX IF NOT EXISTS idx_link_orders_link_id ON link_orders(link_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) Create(ctx context.Context, link *domain.Link) error {
	productsJSON, err := json.Marshal(link.Selection)
	if err != nil {
		return err
	}

	var expiresAt interface{}
	if link.ExpiresAt != nil {
		expiresAt = *link.ExpiresAt
	}

	query := `INSERT INTO links (name, token, url, products, expiry_hours, expires_at, created_at, status)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		link.Name, link.Token, link.URL, productsJSON, link.ExpiryHours, expiresAt, link.CreatedAt, string(link.Status))
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

const linkColumns = `id, name, token, url, products, expiry_hours, expires_at, created_at, visits, conversions, status`

func (r *SQLiteRepository) scanLink(row interface{ Scan(...interface{}) error }) (*domain.Link, error) {
	var link domain.Link
	var productsJSON []byte
	var expiresAt sql.NullTime
	var status string

	err := row.Scan(&link.ID, &link.Name, &link.Token, &link.URL, &productsJSON,
		&link.ExpiryHours, &expiresAt, &link.CreatedAt, &link.Visits, &link.Conversions, &status)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		link.ExpiresAt = &expiresAt.Time
	}
	link.Status = domain.Status(status)
	_ = json.Unmarshal(productsJSON, &link.Selection)
	return &link, nil
}

func (r *SQLiteRepository) GetByToken(ctx context.Context, token string) (*domain.Link, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE token = ?`, token)
	link, err := r.scanLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return link, err
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*domain.Link, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	link, err := r.scanLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return link, err
}

func (r *SQLiteRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE token = ?`, token).Scan(&count)
	return count > 0, err
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	_, err := r.db.ExecContext(ctx, `UPDATE links SET status = ? WHERE id = ?`, string(status), id)
	return err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	return err
}

// orderable columns, whitelisted to keep ORDER BY injection-free
var allowedOrderBy = map[string]bool{
	"id": true, "name": true, "created_at": true, "visits": true,
	"conversions": true, "status": true, "expires_at": true,
}

func (r *SQLiteRepository) List(ctx context.Context, opts domain.ListOptions) ([]domain.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE 1=1`
	args := []interface{}{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	orderBy := "created_at"
	if allowedOrderBy[opts.OrderBy] {
		orderBy = opts.OrderBy
	}
	direction := "ASC"
	if opts.Desc || opts.OrderBy == "" {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT ? OFFSET ?", orderBy, direction)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		link, err := r.scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) Count(ctx context.Context, status domain.Status) (int64, error) {
	query := `SELECT COUNT(*) FROM links`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}

	var count int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'active' THEN 1 END),
			COALESCE(SUM(visits), 0),
			COALESCE(SUM(conversions), 0)
		FROM links`).
		Scan(&stats.TotalLinks, &stats.ActiveLinks, &stats.TotalVisits, &stats.TotalConversions)
	if err != nil {
		return nil, err
	}
	if stats.TotalVisits > 0 {
		stats.ConversionRate = float64(stats.TotalConversions) / float64(stats.TotalVisits)
	}
	return &stats, nil
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM links`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		link, err := r.scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) IncrementVisits(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE links SET visits = visits + 1 WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) IncrementConversions(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE links SET conversions = conversions + 1 WHERE id = ?`, id)
	return err
}

// AttributeOrder records which link an order came from. First write wins:
// once a ledger row exists the attribution is frozen, so a late cookie from
// a different link cannot re-route an already attributed order.
func (r *SQLiteRepository) AttributeOrder(ctx context.Context, orderID string, linkID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO link_orders (order_id, link_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(order_id) DO NOTHING`,
		orderID, linkID, time.Now().UTC())
	return err
}

func (r *SQLiteRepository) OrderLink(ctx context.Context, orderID string) (int64, error) {
	var linkID int64
	err := r.db.QueryRowContext(ctx, `SELECT link_id FROM link_orders WHERE order_id = ?`, orderID).Scan(&linkID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return linkID, err
}

// ClaimConversion flips the counted flag for an order. The conditional
// update is a single statement, so of any number of concurrent callers
// exactly one sees a row change and wins the claim.
func (r *SQLiteRepository) ClaimConversion(ctx context.Context, orderID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE link_orders SET counted = 1 WHERE order_id = ? AND counted = 0`, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const secretKeySetting = "secret_key"

// SecretKey loads the process-wide signing secret, generating and persisting
// it on first boot. The insert ignores conflicts and re-reads, so two
// instances racing at first boot converge on one key.
func (r *SQLiteRepository) SecretKey(ctx context.Context) ([]byte, error) {
	read := func() (string, error) {
		var value string
		err := r.db.QueryRowContext(ctx,
			`SELECT value FROM settings WHERE key = ?`, secretKeySetting).Scan(&value)
		if err == sql.ErrNoRows {
			return "", nil
		}
		return value, err
	}

	value, err := read()
	if err != nil {
		return nil, err
	}
	if value == "" {
		raw := make([]byte, 48)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		fresh := base64.StdEncoding.EncodeToString(raw)
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			secretKeySetting, fresh); err != nil {
			return nil, err
		}
		if value, err = read(); err != nil {
			return nil, err
		}
	}
	return []byte(value), nil
}

// Ensure interface compliance
var (
	_ ports.LinkRepository = (*SQLiteRepository)(nil)
	_ ports.SecretSource   = (*SQLiteRepository)(nil)
)
