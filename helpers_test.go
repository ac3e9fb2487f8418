package kyc_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-kyc"
)

var (
	testSecret = []byte("whsec_test_secret")
	testNow    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testNow }

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, kyc.CreateSchema(context.Background(), db))
	return db
}

// newRouterApp mounts routes through the go-router fiber adapter and returns
// the fiber app behind it for app.Test.
func newRouterApp(logger kyc.Logger, register func(r router.Router[*fiber.App])) *fiber.App {
	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{ErrorHandler: kyc.NewErrorHandler(logger)})
		return app
	})
	register(srv.Router())
	return app
}

func newTestRepo(t *testing.T) (kyc.RepositoryManager, *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	return kyc.NewRepositoryManager(db), db
}

func seedUser(t *testing.T, repo kyc.RepositoryManager, status kyc.KYCStatus, sessionID string) *kyc.User {
	t.Helper()

	user := &kyc.User{
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		KYCStatus: status,
	}
	if sessionID != "" {
		user.ProviderSessionID = &sessionID
	}

	created, err := repo.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

func reloadUser(t *testing.T, repo kyc.RepositoryManager, id uuid.UUID) *kyc.User {
	t.Helper()
	user, err := repo.Users().GetByID(context.Background(), id.String())
	require.NoError(t, err)
	return user
}

func eventPayload(eventID, eventType, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "created": %d,
  "livemode": false,
  "data": {
    "object": {
      "id": %q,
      "object": "identity.verification_session",
      "status": "verified"
    }
  }
}`, eventID, eventType, testNow.Unix(), sessionID))
}

func signedHeader(payload []byte) string {
	return kyc.SignPayload(payload, testSecret, testNow)
}

// captureLogger records formatted log lines per level.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debug(format string, args ...any) { l.record("debug", format, args...) }
func (l *captureLogger) Info(format string, args ...any)  { l.record("info", format, args...) }
func (l *captureLogger) Warn(format string, args ...any)  { l.record("warn", format, args...) }
func (l *captureLogger) Error(format string, args ...any) { l.record("error", format, args...) }

func (l *captureLogger) contains(level, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, level+" ") && strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func (l *captureLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

type capturingSink struct {
	mu     sync.Mutex
	events []kyc.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt kyc.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) ofType(eventType kyc.ActivityEventType) []kyc.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []kyc.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// MockIdentityProvider implements kyc.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateSession(ctx context.Context, req kyc.SessionRequest) (*kyc.ProviderSession, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*kyc.ProviderSession)
	return session, args.Error(1)
}

// MockStartLimiter implements kyc.StartLimiter
type MockStartLimiter struct {
	mock.Mock
}

func (m *MockStartLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}
