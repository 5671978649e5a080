package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/clients_api/printr"
	"printr-launcher/internal/infra/config"
	"printr-launcher/internal/store"
	"printr-launcher/internal/submitter"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakePrintr struct {
	mu          sync.Mutex
	quoteCalls  int
	createCalls int
	quoteErr    error
	createErr   error
	tokenID     string
}

func (f *fakePrintr) GetTokenQuote(ctx context.Context, caipChains []string) (*printr.QuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &printr.QuoteResponse{Raw: json.RawMessage(`{"fee":"1.0"}`)}, nil
}

func (f *fakePrintr) CreateToken(ctx context.Context, req printr.CreateTokenRequest) (*printr.CreateTokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &printr.CreateTokenResponse{
		TokenID: f.tokenID,
		Payload: json.RawMessage(`{"tx":"unsigned"}`),
		Quote:   json.RawMessage(`{"fee":"1.0"}`),
	}, nil
}

type fakeSubmitter struct {
	mu      sync.Mutex
	results map[chains.Chain]submitter.Result
	errs    map[chains.Chain]error
	calls   []chains.Chain
}

func (f *fakeSubmitter) Submit(ctx context.Context, chain chains.Chain, payload json.RawMessage, cred config.ChainConfig) (submitter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chain)
	if err, ok := f.errs[chain]; ok {
		return submitter.Result{}, err
	}
	return f.results[chain], nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) NotifyOperator(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func testConfig() *config.Config {
	cfg := &config.Config{Chains: make(map[chains.Chain]config.ChainConfig)}
	for _, c := range chains.Supported {
		cfg.Chains[c] = config.ChainConfig{
			CAIP2:      chains.DefaultCAIP2(c),
			Creator:    "creator-" + string(c),
			PrivateKey: "key-" + string(c),
			RPC:        "https://rpc." + string(c) + ".example",
		}
	}
	return cfg
}

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

func newTestScheduler(t *testing.T, st *store.Store, fp *fakePrintr, fs *fakeSubmitter, fn *fakeNotifier, now time.Time) *Scheduler {
	t.Helper()
	return New(st, fp, fs, testConfig(), fn, time.Minute).WithClock(&fakeClock{now: now})
}

func TestTickMixedOutcomeIsPartialSuccess(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	at := now.Add(-time.Minute)
	job, err := st.CreateJob(42, &store.LaunchJob{Name: "Moon", Symbol: "MOON"}, []string{"ethereum", "solana"}, &at)
	require.NoError(t, err)

	fp := &fakePrintr{tokenID: "tok_123"}
	fs := &fakeSubmitter{
		results: map[chains.Chain]submitter.Result{chains.Ethereum: {TxID: "0xeth"}},
		errs:    map[chains.Chain]error{chains.Solana: submitter.ErrTimeout},
	}
	fn := &fakeNotifier{}

	newTestScheduler(t, st, fp, fs, fn, now).Tick(context.Background())

	loaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPartiallySucceeded, loaded.Status)
	assert.Equal(t, "tok_123", loaded.TokenID)
	assert.NotEmpty(t, loaded.Quote)

	require.Len(t, loaded.Results, 2)
	for _, r := range loaded.Results {
		switch r.Chain {
		case "ethereum":
			assert.Equal(t, store.ChainConfirmed, r.State)
			assert.Equal(t, "0xeth", r.TxID)
		case "solana":
			assert.Equal(t, store.ChainError, r.State)
			assert.Equal(t, "timeout", r.Reason)
		}
	}

	assert.ElementsMatch(t, []chains.Chain{chains.Ethereum, chains.Solana}, fs.calls)
	assert.Contains(t, fn.last(), "partially_succeeded")
	assert.Contains(t, fn.last(), "tok_123")
}

func TestTickAllConfirmedSucceeds(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	at := now.Add(-time.Second)
	job, err := st.CreateJob(42, &store.LaunchJob{Name: "Sun", Symbol: "SUN"}, []string{"base", "bnb", "mantle"}, &at)
	require.NoError(t, err)

	fp := &fakePrintr{tokenID: "tok_sun"}
	fs := &fakeSubmitter{results: map[chains.Chain]submitter.Result{
		chains.Base:   {TxID: "0xbase"},
		chains.BNB:    {TxID: "0xbnb"},
		chains.Mantle: {TxID: "0xmantle"},
	}}
	fn := &fakeNotifier{}

	newTestScheduler(t, st, fp, fs, fn, now).Tick(context.Background())

	loaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, loaded.Status)
	for _, r := range loaded.Results {
		assert.Equal(t, store.ChainConfirmed, r.State)
		assert.NotEmpty(t, r.TxID)
	}
}

func TestQuoteFailureFailsEveryChain(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	at := now.Add(-time.Minute)
	job, err := st.CreateJob(42, &store.LaunchJob{Name: "Dud", Symbol: "DUD"}, []string{"arbitrum", "avalanche"}, &at)
	require.NoError(t, err)

	fp := &fakePrintr{quoteErr: errors.New("upstream down")}
	fs := &fakeSubmitter{}
	fn := &fakeNotifier{}

	newTestScheduler(t, st, fp, fs, fn, now).Tick(context.Background())

	loaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, loaded.Status)
	for _, r := range loaded.Results {
		assert.Equal(t, store.ChainError, r.State)
		assert.Contains(t, r.Reason, "quote failed")
	}
	assert.Empty(t, fs.calls, "no submissions after a failed quote")
	assert.Empty(t, loaded.TokenID)
}

func TestTickIgnoresFutureAndUnscheduledJobs(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	future := now.Add(time.Hour)
	_, err := st.CreateJob(42, &store.LaunchJob{Name: "Later", Symbol: "LTR"}, []string{"base"}, &future)
	require.NoError(t, err)
	_, err = st.CreateJob(42, &store.LaunchJob{Name: "Someday", Symbol: "SMD"}, []string{"solana"}, nil)
	require.NoError(t, err)

	fp := &fakePrintr{tokenID: "tok"}
	fs := &fakeSubmitter{}

	newTestScheduler(t, st, fp, fs, &fakeNotifier{}, now).Tick(context.Background())

	assert.Zero(t, fp.quoteCalls)
	assert.Zero(t, fp.createCalls)
	assert.Empty(t, fs.calls)
}

func TestTickDoesNotReprocessSettledJobs(t *testing.T) {
	st := newTestStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	at := now.Add(-time.Minute)
	_, err := st.CreateJob(42, &store.LaunchJob{Name: "Once", Symbol: "ONCE"}, []string{"ethereum"}, &at)
	require.NoError(t, err)

	fp := &fakePrintr{tokenID: "tok_once"}
	fs := &fakeSubmitter{results: map[chains.Chain]submitter.Result{chains.Ethereum: {TxID: "0x1"}}}

	sched := newTestScheduler(t, st, fp, fs, &fakeNotifier{}, now)
	sched.Tick(context.Background())
	sched.Tick(context.Background())

	assert.Equal(t, 1, fp.createCalls, "a settled job must not run twice")
}

func TestScheduleBatchSpacing(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := st.CreateJob(42, &store.LaunchJob{Name: "Batch", Symbol: "BT"}, []string{"base"}, nil)
		require.NoError(t, err)
	}

	sched := newTestScheduler(t, st, &fakePrintr{}, &fakeSubmitter{}, &fakeNotifier{}, time.Now().UTC())

	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	jobs, err := sched.ScheduleBatch(42, base, time.Hour, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for k, j := range jobs {
		require.NotNil(t, j.ScheduledAt)
		assert.Equal(t, base.Add(time.Duration(k)*time.Hour), j.ScheduledAt.UTC())
	}

	remaining, err := st.ListUnscheduledJobs(42)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestScheduleAtTimes(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := st.CreateJob(42, &store.LaunchJob{Name: "Batch", Symbol: "BT"}, []string{"base"}, nil)
		require.NoError(t, err)
	}

	sched := newTestScheduler(t, st, &fakePrintr{}, &fakeSubmitter{}, &fakeNotifier{}, time.Now().UTC())

	times := []time.Time{
		time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC),
		time.Date(2026, 8, 28, 21, 15, 0, 0, time.UTC),
	}
	jobs, err := sched.ScheduleAtTimes(42, times)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for k, j := range jobs {
		require.NotNil(t, j.ScheduledAt)
		assert.Equal(t, times[k], j.ScheduledAt.UTC(), "oldest job gets the k-th time")
	}

	remaining, err := st.ListUnscheduledJobs(42)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestScheduleAtTimesValidation(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 2; i++ {
		_, err := st.CreateJob(42, &store.LaunchJob{Name: "Batch", Symbol: "BT"}, []string{"base"}, nil)
		require.NoError(t, err)
	}

	sched := newTestScheduler(t, st, &fakePrintr{}, &fakeSubmitter{}, &fakeNotifier{}, time.Now().UTC())
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	var verr *store.ValidationError
	_, err := sched.ScheduleAtTimes(42, nil)
	assert.ErrorAs(t, err, &verr)

	// Span of 25h between first and last time.
	_, err = sched.ScheduleAtTimes(42, []time.Time{base, base.Add(25 * time.Hour)})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "24 hours")

	_, err = sched.ScheduleAtTimes(42, []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "unscheduled")
}

func TestScheduleBatchValidation(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateJob(42, &store.LaunchJob{Name: "Solo", Symbol: "SL"}, []string{"base"}, nil)
	require.NoError(t, err)

	sched := newTestScheduler(t, st, &fakePrintr{}, &fakeSubmitter{}, &fakeNotifier{}, time.Now().UTC())
	base := time.Now().UTC().Add(time.Hour)

	var verr *store.ValidationError
	_, err = sched.ScheduleBatch(42, base, time.Hour, 0)
	assert.ErrorAs(t, err, &verr)

	_, err = sched.ScheduleBatch(42, base, -time.Hour, 2)
	assert.ErrorAs(t, err, &verr)

	// 13 launches 2h apart span 26h.
	_, err = sched.ScheduleBatch(42, base, 2*time.Hour, 13)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "24 hours")

	_, err = sched.ScheduleBatch(42, base, time.Hour, 5)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "unscheduled")
}
