package activity

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/h-d3ez/nemesis/internal/database/dbtest"
	"github.com/h-d3ez/nemesis/internal/models"
)

func TestRecordActivityAndSessionAreSeparateTables(t *testing.T) {
	db := dbtest.New(t)
	rec := NewRecorder(db, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, rec.RecordActivity(ctx, 7, "login", "from web"))
	row, err := rec.RecordSession(ctx, 7, SessionInfo{IPAddress: "203.0.113.9", UserAgent: "curl/8"})
	require.NoError(t, err)

	var logs []models.ActivityLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "login", logs[0].Action)
	assert.Equal(t, "from web", logs[0].Details)

	var sessions []models.UserSession
	require.NoError(t, db.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, row.SessionToken, sessions[0].SessionToken)
	assert.NotEmpty(t, sessions[0].SessionToken)
	assert.Equal(t, "203.0.113.9", sessions[0].IPAddress)
	assert.WithinDuration(t, sessions[0].CreatedAt.Add(SessionTTL), sessions[0].ExpiresAt, time.Second)
}

func TestRecordSessionTruncatesUserAgent(t *testing.T) {
	rec := NewRecorder(dbtest.New(t), nil)

	row, err := rec.RecordSession(context.Background(), 1, SessionInfo{UserAgent: strings.Repeat("x", 400)})
	require.NoError(t, err)
	assert.Len(t, row.UserAgent, 255)
}

func TestRecordSessionTruncatesOnRuneBoundary(t *testing.T) {
	rec := NewRecorder(dbtest.New(t), nil)

	ua := "x" + strings.Repeat("日本語", 100)
	row, err := rec.RecordSession(context.Background(), 1, SessionInfo{UserAgent: ua})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(row.UserAgent))
	assert.Equal(t, 255, utf8.RuneCountInString(row.UserAgent))
	assert.True(t, strings.HasPrefix(ua, row.UserAgent))
}

func TestPurgeExpiredSessions(t *testing.T) {
	db := dbtest.New(t)
	rec := NewRecorder(db, nil)
	ctx := context.Background()

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return base }
	_, err := rec.RecordSession(ctx, 1, SessionInfo{Token: "old"})
	require.NoError(t, err)

	rec.now = func() time.Time { return base.Add(90 * time.Minute) }
	_, err = rec.RecordSession(ctx, 1, SessionInfo{Token: "fresh"})
	require.NoError(t, err)

	n, err := rec.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left []models.UserSession
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].SessionToken)
}

func TestQueryFiltersByUser(t *testing.T) {
	rec := NewRecorder(dbtest.New(t), nil)
	ctx := context.Background()

	require.NoError(t, rec.RecordActivity(ctx, 1, "upload", ""))
	require.NoError(t, rec.RecordActivity(ctx, 2, "login", ""))
	require.NoError(t, rec.RecordActivity(ctx, 1, "logout", ""))

	var mine []models.ActivityLog
	require.NoError(t, rec.Query(ctx, 1).Find(&mine).Error)
	require.Len(t, mine, 2)
	assert.Equal(t, "logout", mine[0].Action)

	var all []models.ActivityLog
	require.NoError(t, rec.Query(ctx, 0).Find(&all).Error)
	assert.Len(t, all, 3)
}
