package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

// Store wraps the Postgres connection used by all handlers and services.
type Store struct {
	DB *sql.DB
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Timezone     string
	BriefingTime string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const userColumns = `id, email, password_hash, full_name, timezone, briefing_time, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Timezone, &u.BriefingTime, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, email, hash, fullName string) (User, error) {
	row := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash, full_name) VALUES ($1,$2,$3) RETURNING `+userColumns, email, hash, fullName)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// UpdateUser applies the provided fields, leaving nil ones untouched.
func (s *Store) UpdateUser(ctx context.Context, id string, fullName, timezone, briefingTime *string) (User, error) {
	row := s.DB.QueryRowContext(ctx, `UPDATE users SET
		full_name = COALESCE($2, full_name),
		timezone = COALESCE($3, timezone),
		briefing_time = COALESCE($4, briefing_time),
		updated_at = now()
		WHERE id=$1 RETURNING `+userColumns, id, fullName, timezone, briefingTime)
	return scanUser(row)
}

func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET is_active=FALSE, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Integration is a stored OAuth (or API-key) credential linking a user to a provider.
type Integration struct {
	ID             string
	UserID         string
	Provider       string
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	Scopes         []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const integrationColumns = `id, user_id, provider, access_token, refresh_token, token_expires_at, scopes, is_active, created_at, updated_at`

func scanIntegration(row *sql.Row) (Integration, error) {
	var in Integration
	err := row.Scan(&in.ID, &in.UserID, &in.Provider, &in.AccessToken, &in.RefreshToken, &in.TokenExpiresAt, pq.Array(&in.Scopes), &in.IsActive, &in.CreatedAt, &in.UpdatedAt)
	return in, err
}

// UpsertIntegration creates or replaces the single integration a user may hold
// per provider. The UNIQUE (user_id, provider) constraint makes the OAuth
// callback race-free: a reconnect updates the existing row in place.
func (s *Store) UpsertIntegration(ctx context.Context, userID, provider, accessToken string, refreshToken *string, expiresAt *time.Time, scopes []string) (Integration, error) {
	if scopes == nil {
		scopes = []string{}
	}
	row := s.DB.QueryRowContext(ctx, `INSERT INTO integrations (user_id, provider, access_token, refresh_token, token_expires_at, scopes)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			is_active = TRUE,
			updated_at = now()
		RETURNING `+integrationColumns,
		userID, provider, accessToken, refreshToken, expiresAt, pq.Array(scopes))
	return scanIntegration(row)
}

func (s *Store) ListActiveIntegrations(ctx context.Context, userID string) ([]Integration, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE user_id=$1 AND is_active=TRUE ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Integration
	for rows.Next() {
		var in Integration
		if err := rows.Scan(&in.ID, &in.UserID, &in.Provider, &in.AccessToken, &in.RefreshToken, &in.TokenExpiresAt, pq.Array(&in.Scopes), &in.IsActive, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// GetIntegration scopes the lookup to the owning user; a foreign id reads as absent.
func (s *Store) GetIntegration(ctx context.Context, id, userID string) (Integration, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=$1 AND user_id=$2`, id, userID)
	return scanIntegration(row)
}

func (s *Store) DeactivateIntegration(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE integrations SET is_active=FALSE, updated_at=now() WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateIntegrationToken(ctx context.Context, id, userID, accessToken string, refreshToken *string, expiresAt *time.Time) (Integration, error) {
	row := s.DB.QueryRowContext(ctx, `UPDATE integrations SET
		access_token = $3,
		refresh_token = COALESCE($4, refresh_token),
		token_expires_at = $5,
		updated_at = now()
		WHERE id=$1 AND user_id=$2 RETURNING `+integrationColumns,
		id, userID, accessToken, refreshToken, expiresAt)
	return scanIntegration(row)
}

// Briefing is the persisted output of one generation cycle.
type Briefing struct {
	ID          string
	UserID      string
	Content     json.RawMessage
	Summary     string
	Priorities  json.RawMessage
	Alerts      json.RawMessage
	RawData     json.RawMessage
	GeneratedAt time.Time
	ReadAt      *time.Time
}

const briefingColumns = `id, user_id, content, summary, priorities, alerts, raw_data, generated_at, read_at`

func scanBriefing(row *sql.Row) (Briefing, error) {
	var b Briefing
	err := row.Scan(&b.ID, &b.UserID, &b.Content, &b.Summary, &b.Priorities, &b.Alerts, &b.RawData, &b.GeneratedAt, &b.ReadAt)
	return b, err
}

func (s *Store) CreateBriefing(ctx context.Context, userID string, content []byte, summary string, priorities, alerts, rawData []byte) (Briefing, error) {
	row := s.DB.QueryRowContext(ctx, `INSERT INTO briefings (user_id, content, summary, priorities, alerts, raw_data)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+briefingColumns,
		userID, content, summary, priorities, alerts, rawData)
	return scanBriefing(row)
}

func (s *Store) ListBriefings(ctx context.Context, userID string, limit, offset int) ([]Briefing, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+briefingColumns+` FROM briefings WHERE user_id=$1 ORDER BY generated_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Briefing
	for rows.Next() {
		var b Briefing
		if err := rows.Scan(&b.ID, &b.UserID, &b.Content, &b.Summary, &b.Priorities, &b.Alerts, &b.RawData, &b.GeneratedAt, &b.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) LatestBriefing(ctx context.Context, userID string) (Briefing, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+briefingColumns+` FROM briefings WHERE user_id=$1 ORDER BY generated_at DESC LIMIT 1`, userID)
	return scanBriefing(row)
}

func (s *Store) GetBriefing(ctx context.Context, id, userID string) (Briefing, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+briefingColumns+` FROM briefings WHERE id=$1 AND user_id=$2`, id, userID)
	return scanBriefing(row)
}

// MarkBriefingRead sets read_at once; marking an already-read briefing again
// leaves the original timestamp and still returns the record.
func (s *Store) MarkBriefingRead(ctx context.Context, id, userID string) (Briefing, error) {
	row := s.DB.QueryRowContext(ctx, `UPDATE briefings SET read_at = COALESCE(read_at, now()) WHERE id=$1 AND user_id=$2 RETURNING `+briefingColumns, id, userID)
	return scanBriefing(row)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
