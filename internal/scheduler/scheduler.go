package scheduler

// Launch scheduler
// Polls the store for due jobs, claims each one through MarkSubmitting, runs
// the Printr quote/create pipeline and fans out per-chain submissions
// A failed quote or create marks every chain as errored; individual chain
// failures never retry automatically

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/clients_api/printr"
	"printr-launcher/internal/infra/config"
	"printr-launcher/internal/infra/log"
	"printr-launcher/internal/store"
	"printr-launcher/internal/submitter"
)

// Clock abstracts time so tick behaviour is testable with a frozen clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Notifier delivers launch outcome messages to the operator.
type Notifier interface {
	NotifyOperator(text string) error
}

// PrintrAPI is the slice of the Printr client the scheduler needs.
type PrintrAPI interface {
	GetTokenQuote(ctx context.Context, caipChains []string) (*printr.QuoteResponse, error)
	CreateToken(ctx context.Context, req printr.CreateTokenRequest) (*printr.CreateTokenResponse, error)
}

// MaxBatchWindow bounds count*interval for batch scheduling.
const MaxBatchWindow = 24 * time.Hour

// ChainSubmitTimeout is the per-chain submission deadline; on expiry the chain
// is recorded as error(timeout).
const ChainSubmitTimeout = 2 * time.Minute

// Scheduler drives the launch lifecycle. One instance runs per process.
type Scheduler struct {
	store    *store.Store
	printr   PrintrAPI
	sub      submitter.Submitter
	cfg      *config.Config
	notifier Notifier
	clock    Clock
	interval time.Duration
}

// New builds a scheduler polling the store every interval.
func New(st *store.Store, api PrintrAPI, sub submitter.Submitter, cfg *config.Config, notifier Notifier, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    st,
		printr:   api,
		sub:      sub,
		cfg:      cfg,
		notifier: notifier,
		clock:    realClock{},
		interval: interval,
	}
}

// SetNotifier attaches the outcome notifier after construction; the bot and
// the scheduler reference each other, so one side is wired late.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// WithClock replaces the wall clock, for tests.
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// Run polls until ctx is cancelled. One tick fires immediately on start so a
// restart picks up overdue jobs without waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	log.LogInfo("Launch scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.LogInfo("Launch scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every job due at the current time. A store read failure
// aborts the whole tick; the next tick retries.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	jobs, err := s.store.GetDueJobs(now)
	if err != nil {
		log.LogError("Failed to query due jobs, skipping tick", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}
	log.LogInfo("Due jobs found", zap.Int("count", len(jobs)))

	for i := range jobs {
		job := jobs[i]
		claimed, err := s.store.MarkSubmitting(job.ID)
		if err != nil {
			log.LogError("Failed to claim job", zap.Uint("job_id", job.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Another tick already owns it.
			continue
		}
		s.processJob(ctx, &job)
	}
}

// processJob runs the full pipeline for one claimed job: quote, create, then
// one submission per target chain.
func (s *Scheduler) processJob(ctx context.Context, job *store.LaunchJob) {
	log.LogInfo("Processing launch job",
		zap.Uint("job_id", job.ID),
		zap.String("symbol", job.Symbol),
		zap.Strings("chains", job.Chains))

	caipChains, creators, err := s.resolveAccounts(job)
	if err != nil {
		s.failAllChains(job, err.Error())
		s.notifyOutcome(job.ID)
		return
	}

	quote, err := s.printr.GetTokenQuote(ctx, caipChains)
	if err != nil {
		s.failAllChains(job, fmt.Sprintf("quote failed: %v", err))
		s.notifyOutcome(job.ID)
		return
	}

	created, err := s.printr.CreateToken(ctx, printr.CreateTokenRequest{
		CreatorAccounts: creators,
		Name:            job.Name,
		Symbol:          job.Symbol,
		Description:     job.Description,
		Image:           job.Image,
		Chains:          caipChains,
		ExternalLinks:   job.ExternalLinks,
	})
	if err != nil {
		s.failAllChains(job, fmt.Sprintf("token creation failed: %v", err))
		s.notifyOutcome(job.ID)
		return
	}

	quoteText := string(created.Quote)
	if quoteText == "" {
		quoteText = string(quote.Raw)
	}
	if err := s.store.SetJobToken(job.ID, created.TokenID, quoteText); err != nil {
		log.LogError("Failed to persist token id", zap.Uint("job_id", job.ID), zap.Error(err))
	}

	var wg sync.WaitGroup
	for _, name := range job.Chains {
		wg.Add(1)
		go func(chainName string) {
			defer wg.Done()
			s.submitChain(ctx, job.ID, chains.Chain(chainName), created.Payload)
		}(name)
	}
	wg.Wait()

	s.notifyOutcome(job.ID)
}

// submitChain runs one chain's submission under its own deadline and records
// the outcome.
func (s *Scheduler) submitChain(ctx context.Context, jobID uint, chain chains.Chain, payload json.RawMessage) {
	cred, complete := s.cfg.ChainFor(chain)
	if !complete {
		s.recordResult(jobID, chain, store.ChainError, "", "chain credentials not configured")
		return
	}

	s.recordResult(jobID, chain, store.ChainSubmitted, "", "")

	chainCtx, cancel := context.WithTimeout(ctx, ChainSubmitTimeout)
	defer cancel()

	res, err := s.sub.Submit(chainCtx, chain, payload, cred)
	switch {
	case errors.Is(err, submitter.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		s.recordResult(jobID, chain, store.ChainError, "", "timeout")
	case err != nil:
		s.recordResult(jobID, chain, store.ChainError, "", err.Error())
	default:
		s.recordResult(jobID, chain, store.ChainConfirmed, res.TxID, "")
	}
}

// resolveAccounts maps job chains to CAIP-2 ids and CAIP-10 creator accounts,
// preferring stored wallets and falling back to configured creator addresses.
func (s *Scheduler) resolveAccounts(job *store.LaunchJob) (caipChains, creators []string, err error) {
	for _, name := range job.Chains {
		chain := chains.Chain(name)
		cred, _ := s.cfg.ChainFor(chain)
		caipChains = append(caipChains, cred.CAIP2)

		if w, werr := s.store.GetWallet(job.OwnerUserID, name); werr == nil && w.CAIP10 != "" {
			creators = append(creators, w.CAIP10)
			continue
		}
		if cred.Creator != "" {
			creators = append(creators, chains.CAIP10(cred.CAIP2, cred.Creator))
			continue
		}
		return nil, nil, fmt.Errorf("no creator account for chain %s", name)
	}
	return caipChains, creators, nil
}

// failAllChains records the same error on every chain of a job. Used when the
// pipeline dies before any chain-specific work starts.
func (s *Scheduler) failAllChains(job *store.LaunchJob, reason string) {
	log.LogError("Launch pipeline failed",
		zap.Uint("job_id", job.ID),
		zap.String("reason", reason))
	for _, name := range job.Chains {
		s.recordResult(job.ID, chains.Chain(name), store.ChainError, "", reason)
	}
}

func (s *Scheduler) recordResult(jobID uint, chain chains.Chain, state store.ChainState, txID, reason string) {
	if err := s.store.RecordChainResult(jobID, string(chain), state, txID, reason); err != nil {
		log.LogError("Failed to record chain result",
			zap.Uint("job_id", jobID),
			zap.String("chain", string(chain)),
			zap.Error(err))
	}
}

// notifyOutcome sends the operator a per-chain summary once a job settles.
func (s *Scheduler) notifyOutcome(jobID uint) {
	if s.notifier == nil {
		return
	}
	job, err := s.store.GetJob(jobID)
	if err != nil {
		log.LogError("Failed to load job for notification", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Launch #%d %s (%s): %s\n", job.ID, job.Name, job.Symbol, job.Status)
	for _, r := range job.Results {
		switch r.State {
		case store.ChainConfirmed:
			fmt.Fprintf(&b, "✅ %s: %s\n", r.Chain, r.TxID)
		case store.ChainError:
			fmt.Fprintf(&b, "❌ %s: %s\n", r.Chain, r.Reason)
		default:
			fmt.Fprintf(&b, "⏳ %s: %s\n", r.Chain, r.State)
		}
	}
	if job.TokenID != "" {
		fmt.Fprintf(&b, "Token ID: %s", job.TokenID)
	}

	if err := s.notifier.NotifyOperator(b.String()); err != nil {
		log.LogWarn("Failed to notify operator", zap.Uint("job_id", jobID), zap.Error(err))
	}

	if job.Status == store.StatusSucceeded {
		log.LogSuccess("Launch completed", zap.Uint("job_id", job.ID), zap.String("token_id", job.TokenID))
	}
}

// ScheduleBatch assigns due times base, base+interval, ... to the owner's n
// oldest unscheduled jobs. count*interval must fit inside MaxBatchWindow.
func (s *Scheduler) ScheduleBatch(owner int64, base time.Time, interval time.Duration, n int) ([]store.LaunchJob, error) {
	if n <= 0 {
		return nil, &store.ValidationError{Reason: "count must be positive"}
	}
	if interval <= 0 {
		return nil, &store.ValidationError{Reason: "interval must be positive"}
	}
	if time.Duration(n)*interval > MaxBatchWindow {
		return nil, &store.ValidationError{Reason: "batch window exceeds 24 hours"}
	}

	jobs, err := s.store.ListUnscheduledJobs(owner)
	if err != nil {
		return nil, err
	}
	if len(jobs) < n {
		return nil, &store.ValidationError{Reason: fmt.Sprintf("only %d unscheduled jobs available", len(jobs))}
	}

	scheduled := make([]store.LaunchJob, 0, n)
	for k := 0; k < n; k++ {
		at := base.Add(time.Duration(k) * interval)
		if err := s.store.ScheduleJob(jobs[k].ID, at); err != nil {
			return scheduled, fmt.Errorf("failed to schedule job %d: %w", jobs[k].ID, err)
		}
		jobs[k].ScheduledAt = &at
		scheduled = append(scheduled, jobs[k])
	}

	log.LogInfo("Batch scheduled",
		zap.Int("count", n),
		zap.Time("first", base),
		zap.Duration("interval", interval))
	return scheduled, nil
}

// ScheduleAtTimes assigns explicit due times to the owner's oldest unscheduled
// jobs, one per time in the given order. The span between the earliest and
// latest time must fit inside MaxBatchWindow.
func (s *Scheduler) ScheduleAtTimes(owner int64, times []time.Time) ([]store.LaunchJob, error) {
	if len(times) == 0 {
		return nil, &store.ValidationError{Reason: "no launch times given"}
	}
	earliest, latest := times[0], times[0]
	for _, at := range times[1:] {
		if at.Before(earliest) {
			earliest = at
		}
		if at.After(latest) {
			latest = at
		}
	}
	if latest.Sub(earliest) > MaxBatchWindow {
		return nil, &store.ValidationError{Reason: "batch window exceeds 24 hours"}
	}

	jobs, err := s.store.ListUnscheduledJobs(owner)
	if err != nil {
		return nil, err
	}
	if len(jobs) < len(times) {
		return nil, &store.ValidationError{Reason: fmt.Sprintf("only %d unscheduled jobs available", len(jobs))}
	}

	scheduled := make([]store.LaunchJob, 0, len(times))
	for k := range times {
		at := times[k]
		if err := s.store.ScheduleJob(jobs[k].ID, at); err != nil {
			return scheduled, fmt.Errorf("failed to schedule job %d: %w", jobs[k].ID, err)
		}
		jobs[k].ScheduledAt = &at
		scheduled = append(scheduled, jobs[k])
	}

	log.LogInfo("Batch scheduled at explicit times",
		zap.Int("count", len(times)),
		zap.Time("first", earliest))
	return scheduled, nil
}
