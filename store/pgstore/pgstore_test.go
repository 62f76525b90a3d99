package pgstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/viridial/authcore/account"
)

func TestBuildUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verified := true
	attempts := int64(4)

	query, args := buildUpdate("ada@example.com", account.Update{EmailVerified: &verified, FailedAttempts: &attempts}, now)
	require.Equal(t, "UPDATE accounts SET updated_at = $2, email_verified = $3, failed_attempts = $4 WHERE identifier = $1", query)
	require.Equal(t, []any{"ada@example.com", now, true, int64(4)}, args)
}

func TestBuildUpdateClearsLock(t *testing.T) {
	query, args := buildUpdate("ada@example.com", account.ClearThrottle(), time.Unix(0, 0).UTC())
	require.Equal(t, "UPDATE accounts SET updated_at = $2, failed_attempts = $3, lock_until = NULL WHERE identifier = $1", query)
	require.Len(t, args, 3)
}

func TestBuildUpdateLastLogin(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	query, args := buildUpdate("ada@example.com", account.Update{LastLogin: &account.LoginContext{
		At: at, IP: "203.0.113.9", UserAgent: "curl/8", Geo: &account.GeoInfo{Country: "NL"},
	}}, at)

	require.Contains(t, query, "last_login_city = $8")
	require.Equal(t, []any{"ada@example.com", at, at, "203.0.113.9", "curl/8", "NL", "", ""}, args)
}

func TestSchemaEmbedded(t *testing.T) {
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS accounts")
	require.Contains(t, schema, "identifier            TEXT NOT NULL UNIQUE")
}

func startPostgres(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "docker.io/postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started:      true,
		ProviderType: tc.ProviderDocker,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	var st *Store
	require.Eventually(t, func() bool {
		st, err = Connect(ctx, dsn, 4)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestIntegrationAccountLifecycle(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, err := st.pool.Exec(ctx, `INSERT INTO roles (id, name) VALUES ('r-admin', 'admin'), ('r-user', 'user')`)
	require.NoError(t, err)

	created, err := st.Create(ctx, account.New{
		Identifier: "ada@example.com",
		SecretHash: "hash",
		Locale:     "en",
		RoleIDs:    []string{"r-user", "r-admin"},
	})
	require.NoError(t, err)

	_, err = st.Create(ctx, account.New{Identifier: "ada@example.com", SecretHash: "hash"})
	require.ErrorIs(t, err, account.ErrDuplicate)

	for want := int64(1); want <= 2; want++ {
		n, err := st.Increment(ctx, "ada@example.com", account.FieldFailedAttempts)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}

	lock := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, st.Update(ctx, "ada@example.com", account.Update{LockUntil: &lock}))

	got, err := st.FindByIdentifier(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, int64(2), got.FailedAttempts)
	require.True(t, got.LockUntil.Equal(lock))

	require.NoError(t, st.Update(ctx, "ada@example.com", account.ClearThrottle()))
	got, err = st.FindByIdentifier(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Zero(t, got.FailedAttempts)
	require.True(t, got.LockUntil.IsZero())

	summary, err := st.Describe(ctx, got)
	require.NoError(t, err)
	require.Equal(t, []string{"user", "admin"}, summary.Roles)

	missing, err := st.FindByIdentifier(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.Error(t, st.Update(ctx, "nobody@example.com", account.ClearThrottle()))
}
