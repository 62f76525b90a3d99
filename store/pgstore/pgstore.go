// Package pgstore implements account.Store over PostgreSQL with pgxpool.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viridial/authcore/account"
)

//go:embed schema.sql
var schema string

const accountColumns = `id, identifier, display_name, secret_hash, locale, email_verified,
	failed_attempts, lock_until, role_ids, profile_ids,
	last_login_at, last_login_ip, last_login_user_agent,
	last_login_country, last_login_region, last_login_city,
	created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pool against databaseURL and pings it.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE identifier = $1`, identifier)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (s *Store) Update(ctx context.Context, identifier string, u account.Update) error {
	if u.Empty() {
		return nil
	}
	query, args := buildUpdate(identifier, u, s.now().UTC())
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update account %q: no such account", identifier)
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, identifier string, field account.Field) (int64, error) {
	column, ok := fieldColumns[field]
	if !ok {
		return 0, fmt.Errorf("unsupported field %q", field)
	}
	var n int64
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET `+column+` = `+column+` + 1, updated_at = $2
		 WHERE identifier = $1 RETURNING `+column,
		identifier, s.now().UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", column, err)
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, in account.New) (*account.Account, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	a := &account.Account{
		ID:            uuid.NewString(),
		Identifier:    in.Identifier,
		DisplayName:   in.DisplayName,
		SecretHash:    in.SecretHash,
		Locale:        in.Locale,
		EmailVerified: in.EmailVerified,
		RoleIDs:       in.RoleIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	roleIDs := a.RoleIDs
	if roleIDs == nil {
		roleIDs = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, identifier, display_name, secret_hash, locale, email_verified, role_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Identifier, a.DisplayName, a.SecretHash, a.Locale, a.EmailVerified, roleIDs, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, account.ErrDuplicate
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *Store) Describe(ctx context.Context, a *account.Account) (*account.Summary, error) {
	roles, err := s.names(ctx, "roles", a.RoleIDs)
	if err != nil {
		return nil, err
	}
	profiles, err := s.names(ctx, "profiles", a.ProfileIDs)
	if err != nil {
		return nil, err
	}
	return &account.Summary{
		ID:            a.ID,
		Identifier:    a.Identifier,
		DisplayName:   a.DisplayName,
		Locale:        a.Locale,
		EmailVerified: a.EmailVerified,
		Roles:         roles,
		Profiles:      profiles,
	}, nil
}

// names resolves ids against table, keeping the order of ids.
func (s *Store) names(ctx context.Context, table string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT t.name FROM unnest($1::text[]) WITH ORDINALITY AS ids(id, ord)
		 JOIN `+table+` t ON t.id = ids.id ORDER BY ids.ord`, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", table, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", table, err)
	}
	return names, nil
}

var fieldColumns = map[account.Field]string{
	account.FieldFailedAttempts: "failed_attempts",
}

// buildUpdate renders a partial update as one UPDATE statement. A zero
// LockUntil is written as NULL.
func buildUpdate(identifier string, u account.Update, now time.Time) (string, []any) {
	args := []any{identifier, now}
	sets := []string{"updated_at = $2"}
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if u.SecretHash != nil {
		add("secret_hash", *u.SecretHash)
	}
	if u.EmailVerified != nil {
		add("email_verified", *u.EmailVerified)
	}
	if u.FailedAttempts != nil {
		add("failed_attempts", *u.FailedAttempts)
	}
	if u.LockUntil != nil {
		if u.LockUntil.IsZero() {
			sets = append(sets, "lock_until = NULL")
		} else {
			add("lock_until", u.LockUntil.UTC())
		}
	}
	if ll := u.LastLogin; ll != nil {
		add("last_login_at", ll.At.UTC())
		add("last_login_ip", ll.IP)
		add("last_login_user_agent", ll.UserAgent)
		var geo account.GeoInfo
		if ll.Geo != nil {
			geo = *ll.Geo
		}
		add("last_login_country", geo.Country)
		add("last_login_region", geo.Region)
		add("last_login_city", geo.City)
	}

	return "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE identifier = $1", args
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                      account.Account
		lockUntil, lastLoginAt *time.Time
		country, region, city  string
		roleIDs, profileIDs    []string
	)
	err := row.Scan(
		&a.ID, &a.Identifier, &a.DisplayName, &a.SecretHash, &a.Locale, &a.EmailVerified,
		&a.FailedAttempts, &lockUntil, &roleIDs, &profileIDs,
		&lastLoginAt, &a.LastLogin.IP, &a.LastLogin.UserAgent,
		&country, &region, &city,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockUntil != nil {
		a.LockUntil = *lockUntil
	}
	if lastLoginAt != nil {
		a.LastLogin.At = *lastLoginAt
	}
	if country != "" || region != "" || city != "" {
		a.LastLogin.Geo = &account.GeoInfo{Country: country, Region: region, City: city}
	}
	if len(roleIDs) > 0 {
		a.RoleIDs = roleIDs
	}
	if len(profileIDs) > 0 {
		a.ProfileIDs = profileIDs
	}
	return &a, nil
}
