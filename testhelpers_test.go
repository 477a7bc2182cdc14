package passwordless

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateUserEmails = `CREATE TABLE user_emails (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    address TEXT NOT NULL UNIQUE,
    is_main BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

	sqliteCreateUserEmailsMainIndex = `CREATE UNIQUE INDEX uq_user_emails_main
    ON user_emails (user_id) WHERE is_main;`

	sqliteCreateTempTokens = `CREATE TABLE temp_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    email TEXT NOT NULL,
    used BOOLEAN NOT NULL DEFAULT FALSE,
    used_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

	sqliteCreateSessionCredentials = `CREATE TABLE session_credentials (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    revoked_at TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, ddl := range []string{
		sqliteCreateUsers,
		sqliteCreateUserEmails,
		sqliteCreateUserEmailsMainIndex,
		sqliteCreateTempTokens,
		sqliteCreateSessionCredentials,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return bunDB
}

func setupTestRepo(t *testing.T) RepositoryManager {
	t.Helper()
	repo := NewRepositoryManager(setupTestDB(t))
	repo.MustValidate()
	return repo
}

// capturingMailer records outbound messages instead of dispatching them.
type capturingMailer struct {
	mu       sync.Mutex
	messages []capturedMessage
	fail     error
}

type capturedMessage struct {
	To      string
	Subject string
	Body    string
}

func (m *capturingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.messages = append(m.messages, capturedMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (m *capturingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *capturingMailer) last(t *testing.T) capturedMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages, "expected at least one captured message")
	return m.messages[len(m.messages)-1]
}

var uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// tokenFromMessage extracts the temp token value from a captured message
// body, the same way a user would copy it out of their inbox.
func tokenFromMessage(t *testing.T, msg capturedMessage) string {
	t.Helper()
	token := uuidPattern.FindString(msg.Body)
	require.NotEmpty(t, token, "expected message body to carry a token value")
	return token
}

// capturingSink records activity events.
type capturingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

func newTestConfig() SimpleConfig {
	return SimpleConfig{
		SigningKey: "test-signing-key",
		Issuer:     "test-issuer",
		Audience:   []string{"test:audience"},
	}
}

func newTestAuther(t *testing.T) (*Auther, RepositoryManager, *capturingMailer) {
	t.Helper()
	repo := setupTestRepo(t)
	mailer := &capturingMailer{}
	auther := NewAuthenticator(repo, mailer, newTestConfig())
	return auther, repo, mailer
}
