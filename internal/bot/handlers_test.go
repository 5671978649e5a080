package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"printr-launcher/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestParseLaunchTimeFullTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	at, err := parseLaunchTime("2026-08-28 09:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC), at)

	_, err = parseLaunchTime("2026-08-26 09:30", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past")
}

func TestParseLaunchTimeBareClock(t *testing.T) {
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	// Later today.
	at, err := parseLaunchTime("15:04", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 27, 15, 4, 0, 0, time.UTC), at)

	// Already passed today, rolls to tomorrow.
	at, err = parseLaunchTime("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC), at)
}

func TestParseLaunchTimeRejectsGarbage(t *testing.T) {
	now := time.Now().UTC()
	for _, s := range []string{"", "tomorrow", "25:99", "2026-13-01 10:00"} {
		_, err := parseLaunchTime(s, now)
		assert.Error(t, err, "input %q", s)
	}
}

func TestParseJobIDs(t *testing.T) {
	ids, err := parseJobIDs("3,5, 12")
	require.NoError(t, err)
	assert.Equal(t, []uint{3, 5, 12}, ids)

	// The rendered "#N" form works too.
	ids, err = parseJobIDs("#7 #9")
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 9}, ids)

	for _, s := range []string{"", "  ", "abc", "3,x"} {
		_, err := parseJobIDs(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestParseLaunchTimes(t *testing.T) {
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	times, err := parseLaunchTimes("2026-08-28 09:00\n2026-08-28 14:30", now, 2)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), times[1])

	// Comma separated bare clock times.
	times, err = parseLaunchTimes("11:00, 12:00", now, 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 27, 11, 0, 0, 0, time.UTC), times[0])

	_, err = parseLaunchTimes("11:00", now, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")

	_, err = parseLaunchTimes("11:00, garbage", now, 2)
	assert.Error(t, err)
}

func TestFetchFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"launches":[]}`))
	}))
	defer srv.Close()

	data, err := fetchFile(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `{"launches":[]}`, string(data))

	srv404 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv404.Close()

	_, err = fetchFile(context.Background(), srv404.Client(), srv404.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchFileDoesNotHangOnStalledServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := fetchFile(context.Background(), client, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must cut the download off")
}

func TestRenderStatusForSpecificJobs(t *testing.T) {
	st := newTestStore(t)
	b := &Bot{store: st, sessions: make(map[int64]*session)}

	mine, err := st.CreateJob(42, &store.LaunchJob{Name: "Moon", Symbol: "MOON"}, []string{"ethereum"}, nil)
	require.NoError(t, err)
	_, err = st.CreateJob(42, &store.LaunchJob{Name: "Sun", Symbol: "SUN"}, []string{"base"}, nil)
	require.NoError(t, err)
	foreign, err := st.CreateJob(7, &store.LaunchJob{Name: "Theirs", Symbol: "THR"}, []string{"solana"}, nil)
	require.NoError(t, err)

	out := b.renderStatusFor(context.Background(), 42, []uint{mine.ID, 999, foreign.ID})
	assert.Contains(t, out, "MOON")
	assert.Contains(t, out, "#999: not found")
	assert.Contains(t, out, fmt.Sprintf("#%d: not found", foreign.ID), "someone else's job reads as not found")
	assert.NotContains(t, out, "THR")
	assert.NotContains(t, out, "SUN", "unrequested jobs stay out of a specific query")
}

func TestHandleCallbackWithoutMessageIsIgnored(t *testing.T) {
	b := &Bot{sessions: make(map[int64]*session)}

	// Old callbacks arrive without an attached message; must not panic.
	assert.NotPanics(t, func() {
		b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
			ID:   "stale",
			From: &tgbotapi.User{ID: 42},
		})
	})
}

func TestFormatJob(t *testing.T) {
	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	job := &store.LaunchJob{
		ID:          7,
		Name:        "Moon Token",
		Symbol:      "MOON",
		Status:      store.StatusPartiallySucceeded,
		ScheduledAt: &at,
		Results: []store.ChainResult{
			{Chain: "ethereum", State: store.ChainConfirmed, TxID: "0xabc"},
			{Chain: "solana", State: store.ChainError, Reason: "timeout"},
		},
	}

	out := formatJob(job)
	assert.Contains(t, out, "#7 Moon Token (MOON)")
	assert.Contains(t, out, "partially_succeeded")
	assert.Contains(t, out, "2026-08-28 09:00")
	assert.Contains(t, out, "0xabc")
	assert.Contains(t, out, "timeout")

	job.ScheduledAt = nil
	assert.Contains(t, formatJob(job), "not yet")
}
