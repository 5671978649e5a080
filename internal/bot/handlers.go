package bot

// Message and callback routing for the operator menu
// Flows: JSON upload, single scheduling, batch scheduling, status, wallets,
// log tail. Each multi-step flow parks its progress in the session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/features/launchfile"
	"printr-launcher/internal/infra/log"
	"printr-launcher/internal/store"
)

// maxUploadBytes bounds downloaded launch files.
const maxUploadBytes = 2 * 1024 * 1024

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 Upload JSON", "menu_upload"),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Schedule", "menu_schedule"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Batch Schedule", "menu_batch"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Status", "menu_status"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👛 Update Wallets", "menu_wallets"),
			tgbotapi.NewInlineKeyboardButtonData("📜 Logs", "menu_logs"),
		),
	)
}

func statusMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("All jobs", "status_all"),
			tgbotapi.NewInlineKeyboardButtonData("Specific jobs", "status_specific"),
		),
	)
}

func batchModeMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Fixed interval", "batch_interval"),
			tgbotapi.NewInlineKeyboardButtonData("Specific times", "batch_times"),
		),
	)
}

func walletMenu() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(chains.Supported))
	for _, c := range chains.Supported {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(c), "wallet_"+string(c)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("« Back", "menu_main"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	s := b.sessionFor(message.From.ID)

	if message.IsCommand() {
		switch message.Command() {
		case "start", "menu":
			s.state = awaitNothing
			b.showStart(message.Chat.ID, message.From.ID, s)
		case "status":
			// "/status 3,5" narrows to specific jobs, bare "/status" shows all.
			if args := strings.TrimSpace(message.CommandArguments()); args != "" {
				ids, err := parseJobIDs(args)
				if err != nil {
					b.send(message.Chat.ID, err.Error())
					return
				}
				b.showStatusFor(ctx, message.Chat.ID, message.From.ID, ids)
				return
			}
			b.showStatus(ctx, message.Chat.ID, message.From.ID)
		case "cancel":
			s.state = awaitNothing
			s.onboarding = false
			b.send(message.Chat.ID, "Cancelled.")
		default:
			b.send(message.Chat.ID, "Unknown command. Use /start for the menu.")
		}
		return
	}

	if message.Document != nil {
		b.handleDocument(ctx, message, s)
		return
	}

	if message.Text != "" {
		b.handleText(ctx, message, s)
		return
	}
}

// showStart sends the main menu, or continues wallet onboarding while any of
// the seven chains still has no wallet on file.
func (b *Bot) showStart(chatID, userID int64, s *session) {
	configured, err := b.store.WalletsConfigured(userID)
	if err != nil {
		log.LogError("Failed to check wallet setup", zap.Error(err))
		b.send(chatID, "Storage error, please try again.")
		return
	}
	if !configured {
		s.onboarding = true
		b.promptNextWallet(chatID, userID, s)
		return
	}
	b.sendWithKeyboard(chatID, "<b>Printr Launcher</b>\nPick an action:", mainMenu())
}

// promptNextWallet asks for the first chain that has no wallet yet. When all
// seven are set, onboarding ends and the menu appears.
func (b *Bot) promptNextWallet(chatID, userID int64, s *session) {
	for _, c := range chains.Supported {
		if _, err := b.store.GetWallet(userID, string(c)); err == nil {
			continue
		}
		s.state = awaitWalletAddress
		s.walletChain = c
		b.send(chatID, fmt.Sprintf("Wallet setup: send your <b>%s</b> address.", c))
		return
	}
	s.onboarding = false
	s.state = awaitNothing
	b.sendWithKeyboard(chatID, "All wallets configured ✅\n\n<b>Printr Launcher</b>\nPick an action:", mainMenu())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Telegram omits Message for callbacks on messages older than 48h.
	if cb.Message == nil {
		return
	}

	// Ack first so the button stops spinning.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.LogWarn("Failed to ack callback", zap.Error(err))
	}

	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	s := b.sessionFor(userID)

	switch {
	case cb.Data == "menu_main":
		s.state = awaitNothing
		b.sendWithKeyboard(chatID, "<b>Printr Launcher</b>\nPick an action:", mainMenu())
	case cb.Data == "menu_upload":
		s.state = awaitNothing
		b.send(chatID, "Send a JSON file with your launches.\n\n"+
			"<code>{\"launches\": [{\"name\": ..., \"symbol\": ..., \"chains\": [...]}]}</code>\n\n"+
			"Supported chains: "+strings.Join(chains.Names(), ", "))
	case cb.Data == "menu_schedule":
		b.startScheduleFlow(chatID, userID, s)
	case cb.Data == "menu_batch":
		b.startBatchFlow(chatID, userID, s)
	case cb.Data == "menu_status":
		s.state = awaitNothing
		b.sendWithKeyboard(chatID, "Which jobs?", statusMenu())
	case cb.Data == "status_all":
		b.showStatus(ctx, chatID, userID)
	case cb.Data == "status_specific":
		s.state = awaitStatusIDs
		b.send(chatID, "Send job ids, comma separated: <code>3,5</code>")
	case cb.Data == "batch_interval":
		if s.batchCount == 0 {
			b.send(chatID, "Start the batch flow from the menu first.")
			return
		}
		s.state = awaitBatchInterval
		b.send(chatID, "Send the interval between launches in hours (1-24).")
	case cb.Data == "batch_times":
		if s.batchCount == 0 {
			b.send(chatID, "Start the batch flow from the menu first.")
			return
		}
		s.state = awaitBatchTimes
		b.send(chatID, fmt.Sprintf("Send %d launch times in UTC, one per line or comma separated:\n<code>2006-01-02 15:04</code> or <code>15:04</code>", s.batchCount))
	case cb.Data == "menu_wallets":
		b.showWallets(chatID, userID)
	case cb.Data == "menu_logs":
		b.showLogs(chatID)
	case strings.HasPrefix(cb.Data, "wallet_"):
		chain := chains.Chain(strings.TrimPrefix(cb.Data, "wallet_"))
		if !chains.IsSupported(string(chain)) {
			return
		}
		s.state = awaitWalletAddress
		s.walletChain = chain
		b.send(chatID, fmt.Sprintf("Send the new <b>%s</b> address.", chain))
	}
}

// handleDocument downloads and parses an uploaded launch file, creating one
// unscheduled job per launch. A single invalid launch rejects the whole file.
func (b *Bot) handleDocument(ctx context.Context, message *tgbotapi.Message, s *session) {
	chatID := message.Chat.ID
	doc := message.Document

	if doc.FileSize > maxUploadBytes {
		b.send(chatID, "File too large, limit is 2 MB.")
		return
	}

	data, err := b.downloadFile(ctx, doc.FileID)
	if err != nil {
		log.LogError("Failed to download launch file", zap.Error(err))
		b.send(chatID, "Failed to download file, please try again.")
		return
	}

	f, err := launchfile.Parse(data)
	if err != nil {
		b.send(chatID, "Rejected: "+err.Error())
		return
	}

	created := make([]string, 0, len(f.Launches))
	for _, l := range f.Launches {
		job := &store.LaunchJob{
			Name:          l.Name,
			Symbol:        l.Symbol,
			Description:   l.Description,
			Image:         l.Image,
			ExternalLinks: store.JSONMap(l.ExternalLinks),
		}
		if _, err := b.store.CreateJob(message.From.ID, job, l.Chains, nil); err != nil {
			b.send(chatID, fmt.Sprintf("Failed to create job for %q: %s", l.Name, err.Error()))
			return
		}
		created = append(created, fmt.Sprintf("#%d %s (%s) on %s", job.ID, job.Name, job.Symbol, strings.Join(l.Chains, ", ")))
	}

	log.LogSuccess("Launch file accepted",
		zap.Int("launches", len(created)),
		zap.String("file", doc.FileName))
	b.send(chatID, fmt.Sprintf("Created %d job(s):\n%s\n\nUse Schedule or Batch Schedule to set launch times.",
		len(created), strings.Join(created, "\n")))
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}
	return fetchFile(ctx, b.fileClient, url)
}

// fetchFile downloads a file with the caller's context and the client's
// timeout; updates are handled sequentially, so a hung download must not
// stall the loop.
func fetchFile(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create file request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching file", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
}

// handleText routes free-text replies according to the session state.
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message, s *session) {
	chatID := message.Chat.ID
	userID := message.From.ID
	text := strings.TrimSpace(message.Text)

	switch s.state {
	case awaitWalletAddress:
		b.saveWallet(chatID, userID, s, text)
	case awaitStatusIDs:
		ids, err := parseJobIDs(text)
		if err != nil {
			b.send(chatID, err.Error())
			return
		}
		s.state = awaitNothing
		b.showStatusFor(ctx, chatID, userID, ids)
	case awaitScheduleJobID:
		id, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			b.send(chatID, "Send a numeric job id.")
			return
		}
		s.scheduleJobID = uint(id)
		s.state = awaitScheduleTime
		b.send(chatID, "Send the launch time in UTC: <code>2006-01-02 15:04</code> or <code>15:04</code> for the next occurrence.")
	case awaitScheduleTime:
		at, err := parseLaunchTime(text, time.Now().UTC())
		if err != nil {
			b.send(chatID, err.Error())
			return
		}
		if err := b.store.ScheduleJob(s.scheduleJobID, at); err != nil {
			b.send(chatID, fmt.Sprintf("Failed to schedule job #%d: %s", s.scheduleJobID, err.Error()))
			s.state = awaitNothing
			return
		}
		b.send(chatID, fmt.Sprintf("Job #%d scheduled for %s UTC.", s.scheduleJobID, at.Format("2006-01-02 15:04")))
		s.state = awaitNothing
	case awaitBatchCount:
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			b.send(chatID, "Send a positive number of launches.")
			return
		}
		s.batchCount = n
		s.state = awaitNothing
		b.sendWithKeyboard(chatID, "Spacing mode?", batchModeMenu())
	case awaitBatchInterval:
		h, err := strconv.Atoi(text)
		if err != nil || h <= 0 || h > 24 {
			b.send(chatID, "Send a whole number of hours between 1 and 24.")
			return
		}
		if time.Duration(s.batchCount*h)*time.Hour > 24*time.Hour {
			b.send(chatID, fmt.Sprintf("%d launches every %dh exceed the 24 hour window, pick a smaller count or interval.", s.batchCount, h))
			return
		}
		s.batchInterval = h
		s.state = awaitBatchStart
		b.send(chatID, "Send the first launch time in UTC: <code>2006-01-02 15:04</code> or <code>15:04</code>.")
	case awaitBatchStart:
		base, err := parseLaunchTime(text, time.Now().UTC())
		if err != nil {
			b.send(chatID, err.Error())
			return
		}
		jobs, err := b.sched.ScheduleBatch(userID, base, time.Duration(s.batchInterval)*time.Hour, s.batchCount)
		s.state = awaitNothing
		if err != nil {
			b.send(chatID, "Batch scheduling failed: "+err.Error())
			return
		}
		lines := make([]string, 0, len(jobs))
		for _, j := range jobs {
			lines = append(lines, fmt.Sprintf("#%d %s → %s UTC", j.ID, j.Symbol, j.ScheduledAt.Format("2006-01-02 15:04")))
		}
		b.send(chatID, "Batch scheduled:\n"+strings.Join(lines, "\n"))
	case awaitBatchTimes:
		times, err := parseLaunchTimes(text, time.Now().UTC(), s.batchCount)
		if err != nil {
			b.send(chatID, err.Error())
			return
		}
		jobs, err := b.sched.ScheduleAtTimes(userID, times)
		s.state = awaitNothing
		if err != nil {
			b.send(chatID, "Batch scheduling failed: "+err.Error())
			return
		}
		lines := make([]string, 0, len(jobs))
		for _, j := range jobs {
			lines = append(lines, fmt.Sprintf("#%d %s → %s UTC", j.ID, j.Symbol, j.ScheduledAt.Format("2006-01-02 15:04")))
		}
		b.send(chatID, "Batch scheduled:\n"+strings.Join(lines, "\n"))
	default:
		b.send(chatID, "Use /start for the menu.")
	}
}

func (b *Bot) saveWallet(chatID, userID int64, s *session, address string) {
	chain := s.walletChain
	if address == "" {
		b.send(chatID, "Address must not be empty.")
		return
	}
	cred, _ := b.cfg.ChainFor(chain)
	caip10 := chains.CAIP10(cred.CAIP2, address)
	if err := b.store.UpsertWallet(userID, string(chain), address, caip10); err != nil {
		log.LogError("Failed to save wallet", zap.String("chain", string(chain)), zap.Error(err))
		b.send(chatID, "Failed to save wallet: "+err.Error())
		return
	}
	log.LogInfo("Wallet saved", zap.String("chain", string(chain)))

	if s.onboarding {
		b.promptNextWallet(chatID, userID, s)
		return
	}
	s.state = awaitNothing
	b.send(chatID, fmt.Sprintf("%s wallet updated ✅", chain))
}

func (b *Bot) startScheduleFlow(chatID, userID int64, s *session) {
	jobs, err := b.store.ListUnscheduledJobs(userID)
	if err != nil {
		log.LogError("Failed to list unscheduled jobs", zap.Error(err))
		b.send(chatID, "Storage error, please try again.")
		return
	}
	if len(jobs) == 0 {
		b.send(chatID, "No unscheduled jobs. Upload a JSON file first.")
		return
	}
	lines := make([]string, 0, len(jobs))
	for _, j := range jobs {
		lines = append(lines, fmt.Sprintf("#%d %s (%s) on %s", j.ID, j.Name, j.Symbol, strings.Join(j.Chains, ", ")))
	}
	s.state = awaitScheduleJobID
	b.send(chatID, "Unscheduled jobs:\n"+strings.Join(lines, "\n")+"\n\nSend the job id to schedule.")
}

func (b *Bot) startBatchFlow(chatID, userID int64, s *session) {
	jobs, err := b.store.ListUnscheduledJobs(userID)
	if err != nil {
		log.LogError("Failed to list unscheduled jobs", zap.Error(err))
		b.send(chatID, "Storage error, please try again.")
		return
	}
	if len(jobs) == 0 {
		b.send(chatID, "No unscheduled jobs. Upload a JSON file first.")
		return
	}
	s.state = awaitBatchCount
	b.send(chatID, fmt.Sprintf("%d unscheduled job(s) available. How many should this batch schedule?", len(jobs)))
}

// showStatus renders all jobs. Jobs still submitting with a known token id get
// a live per-chain refresh from Printr.
func (b *Bot) showStatus(ctx context.Context, chatID, userID int64) {
	jobs, err := b.store.ListJobs(userID, nil)
	if err != nil {
		log.LogError("Failed to list jobs", zap.Error(err))
		b.send(chatID, "Storage error, please try again.")
		return
	}
	if len(jobs) == 0 {
		b.send(chatID, "No jobs yet. Upload a JSON file to get started.")
		return
	}

	var sb strings.Builder
	for i := range jobs {
		sb.WriteString(formatJob(&jobs[i]))
		if jobs[i].Status == store.StatusSubmitting && jobs[i].TokenID != "" {
			sb.WriteString(b.liveStatus(ctx, jobs[i].TokenID))
		}
		sb.WriteString("\n")
	}
	b.send(chatID, sb.String())
}

// showStatusFor renders only the requested jobs. Ids the operator does not own
// read as not found.
func (b *Bot) showStatusFor(ctx context.Context, chatID, userID int64, ids []uint) {
	b.send(chatID, b.renderStatusFor(ctx, userID, ids))
}

func (b *Bot) renderStatusFor(ctx context.Context, userID int64, ids []uint) string {
	var sb strings.Builder
	for _, id := range ids {
		job, err := b.store.GetJob(id)
		if err != nil || job.OwnerUserID != userID {
			fmt.Fprintf(&sb, "#%d: not found\n\n", id)
			continue
		}
		sb.WriteString(formatJob(job))
		if job.Status == store.StatusSubmitting && job.TokenID != "" {
			sb.WriteString(b.liveStatus(ctx, job.TokenID))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatJob(j *store.LaunchJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>#%d %s (%s)</b> — %s\n", j.ID, j.Name, j.Symbol, j.Status)
	if j.ScheduledAt != nil {
		fmt.Fprintf(&sb, "Scheduled: %s UTC\n", j.ScheduledAt.Format("2006-01-02 15:04"))
	} else {
		sb.WriteString("Scheduled: not yet\n")
	}
	for _, r := range j.Results {
		switch r.State {
		case store.ChainConfirmed:
			fmt.Fprintf(&sb, "  ✅ %s <code>%s</code>\n", r.Chain, r.TxID)
		case store.ChainError:
			fmt.Fprintf(&sb, "  ❌ %s: %s\n", r.Chain, r.Reason)
		default:
			fmt.Fprintf(&sb, "  ⏳ %s: %s\n", r.Chain, r.State)
		}
	}
	return sb.String()
}

func (b *Bot) liveStatus(ctx context.Context, tokenID string) string {
	dep, err := b.printr.GetTokenStatus(ctx, tokenID)
	if err != nil {
		log.LogWarn("Live status fetch failed", zap.String("tokenID", tokenID), zap.Error(err))
		return "  (live status unavailable)\n"
	}
	var sb strings.Builder
	sb.WriteString("  Live from Printr:\n")
	for _, d := range dep.Deployments {
		fmt.Fprintf(&sb, "  • %s: %s\n", d.ChainID, d.Status)
	}
	return sb.String()
}

func (b *Bot) showWallets(chatID, userID int64) {
	recs, err := b.store.ListWallets(userID)
	if err != nil {
		log.LogError("Failed to list wallets", zap.Error(err))
		b.send(chatID, "Storage error, please try again.")
		return
	}
	byChain := make(map[string]string, len(recs))
	for _, r := range recs {
		byChain[r.Chain] = r.Address
	}
	var sb strings.Builder
	sb.WriteString("Wallets on file:\n")
	for _, c := range chains.Supported {
		if addr, ok := byChain[string(c)]; ok {
			fmt.Fprintf(&sb, "• %s: <code>%s</code>\n", c, addr)
		} else {
			fmt.Fprintf(&sb, "• %s: not set\n", c)
		}
	}
	sb.WriteString("\nPick a chain to update:")
	b.sendWithKeyboard(chatID, sb.String(), walletMenu())
}

// showLogs sends the tail of the bot log.
func (b *Bot) showLogs(chatID int64) {
	data, err := os.ReadFile(log.LogPath())
	if err != nil {
		b.send(chatID, "No log file yet.")
		return
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	b.send(chatID, "<code>"+strings.Join(lines, "\n")+"</code>")
}

// parseJobIDs parses comma or space separated job ids; a leading # is
// tolerated since that is how jobs render.
func parseJobIDs(text string) ([]uint, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	})
	ids := make([]uint, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(f, "#")
		id, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("not a job id: %q", f)
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("send at least one job id")
	}
	return ids, nil
}

// parseLaunchTimes parses exactly want launch times, one per line or comma
// separated, each in a parseLaunchTime format.
func parseLaunchTimes(text string, now time.Time, want int) ([]time.Time, error) {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	times := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		at, err := parseLaunchTime(p, now)
		if err != nil {
			return nil, err
		}
		times = append(times, at)
	}
	if len(times) != want {
		return nil, fmt.Errorf("expected %d times, got %d", want, len(times))
	}
	return times, nil
}

// parseLaunchTime accepts "2006-01-02 15:04" or "15:04", both UTC. A bare
// clock time means the next occurrence after now. Past times are rejected.
func parseLaunchTime(text string, now time.Time) (time.Time, error) {
	if at, err := time.ParseInLocation("2006-01-02 15:04", text, time.UTC); err == nil {
		if !at.After(now) {
			return time.Time{}, fmt.Errorf("%s UTC is in the past", at.Format("2006-01-02 15:04"))
		}
		return at, nil
	}
	if clock, err := time.ParseInLocation("15:04", text, time.UTC); err == nil {
		at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		if !at.After(now) {
			at = at.Add(24 * time.Hour)
		}
		return at, nil
	}
	return time.Time{}, fmt.Errorf("could not parse time, use <code>2006-01-02 15:04</code> or <code>15:04</code> (UTC)")
}
