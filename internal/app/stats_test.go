package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

func seedLogs(t *testing.T, ta *testApp, userID, ruleID string, age time.Duration, status domain.ForwardStatus, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := ta.store.AppendLog(domain.ForwardingLog{
			ID:        store.NewID(),
			UserID:    userID,
			RuleID:    ruleID,
			Status:    status,
			CreatedAt: time.Now().UTC().Add(-age),
		})
		if err != nil {
			t.Fatalf("append log: %v", err)
		}
	}
}

func TestOverviewCountsEverything(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()
	ta.app.dispatcher = &fakeDispatcher{}

	ta.addChannel(t, user, "-1001")
	ta.addChannel(t, user, "-1002")
	ta.addChannel(t, user, "-1003")
	rule, err := ta.app.CreateRule(ctx, user, RuleInput{SourceChannelID: "-1001", TargetChannelID: "-1002"})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if _, err := ta.app.CreateRule(ctx, user, RuleInput{SourceChannelID: "-1002", TargetChannelID: "-1003"}); err != nil {
		t.Fatalf("create second rule: %v", err)
	}
	inactive := false
	if _, err := ta.app.UpdateRule(ctx, user, rule.ID, RulePatch{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate rule: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := ta.app.RecordForwardingOutcome(ctx, domain.ForwardingLog{
			UserID: user.ID, RuleID: rule.ID, Status: domain.ForwardSuccess,
		}); err != nil {
			t.Fatalf("record outcome: %v", err)
		}
	}
	if _, err := ta.app.StartBot(ctx, user); err != nil {
		t.Fatalf("start bot: %v", err)
	}

	stats, err := ta.app.Overview(ctx, user)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if stats.TotalChannels != 3 || stats.TotalRules != 2 || stats.ActiveRules != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.TotalMessagesForwarded != 4 {
		t.Fatalf("expected 4 forwarded, got %d", stats.TotalMessagesForwarded)
	}
	if !stats.BotRunning {
		t.Fatal("bot should report running")
	}
	if stats.SubscriptionActive {
		t.Fatal("no subscription expected")
	}
}

func TestLogsPaginationAndClamping(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		err := ta.store.AppendLog(domain.ForwardingLog{
			ID: store.NewID(), UserID: user.ID, RuleID: "r1",
			Status:    domain.ForwardSuccess,
			CreatedAt: time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	page, err := ta.app.Logs(ctx, user, LogsQuery{Page: 1, Limit: 5})
	if err != nil {
		t.Fatalf("logs page 1: %v", err)
	}
	if len(page.Logs) != 5 {
		t.Fatalf("expected 5 logs, got %d", len(page.Logs))
	}
	// Newest first.
	if page.Logs[0].CreatedAt.Before(page.Logs[4].CreatedAt) {
		t.Fatal("logs not ordered newest first")
	}

	page, err = ta.app.Logs(ctx, user, LogsQuery{Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("logs page 2: %v", err)
	}
	if len(page.Logs) != 2 {
		t.Fatalf("expected 2 logs on page 2, got %d", len(page.Logs))
	}

	// Limit clamps to 100, defaults apply.
	page, err = ta.app.Logs(ctx, user, LogsQuery{Limit: 1000})
	if err != nil {
		t.Fatalf("logs clamped: %v", err)
	}
	if page.Limit != 100 {
		t.Fatalf("limit not clamped: %d", page.Limit)
	}
	page, err = ta.app.Logs(ctx, user, LogsQuery{})
	if err != nil {
		t.Fatalf("logs defaults: %v", err)
	}
	if page.Limit != 50 || page.Page != 1 {
		t.Fatalf("defaults not applied: %+v", page)
	}

	_, err = ta.app.Logs(ctx, user, LogsQuery{Status: "WEIRD"})
	wantKind(t, err, KindInvalid)
}

func TestLogsFilterByStatusAndRule(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardSuccess, 3)
	seedLogs(t, ta, user.ID, "r2", time.Hour, domain.ForwardFailed, 2)

	page, err := ta.app.Logs(ctx, user, LogsQuery{Status: domain.ForwardFailed})
	if err != nil {
		t.Fatalf("filter by status: %v", err)
	}
	if len(page.Logs) != 2 {
		t.Fatalf("expected 2 failed logs, got %d", len(page.Logs))
	}

	page, err = ta.app.Logs(ctx, user, LogsQuery{RuleID: "r1"})
	if err != nil {
		t.Fatalf("filter by rule: %v", err)
	}
	if len(page.Logs) != 3 {
		t.Fatalf("expected 3 rule logs, got %d", len(page.Logs))
	}

	// Old logs fall outside the days window.
	seedLogs(t, ta, user.ID, "r1", 30*24*time.Hour, domain.ForwardSuccess, 5)
	page, err = ta.app.Logs(ctx, user, LogsQuery{Days: 7})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(page.Logs) != 5 {
		t.Fatalf("expected 5 recent logs, got %d", len(page.Logs))
	}
}

func TestAnalyticsRollup(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardSuccess, 4)
	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardFiltered, 1)
	for i := 0; i < 2; i++ {
		err := ta.store.AppendLog(domain.ForwardingLog{
			ID: store.NewID(), UserID: user.ID, RuleID: "r1",
			Status: domain.ForwardFailed, ErrorMessage: "FloodWait",
			CreatedAt: time.Now().UTC().Add(-time.Hour),
		})
		if err != nil {
			t.Fatalf("append failed log: %v", err)
		}
	}

	an, err := ta.app.GetAnalytics(ctx, user, 0)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if an.Days != 30 {
		t.Fatalf("default days: %d", an.Days)
	}
	if len(an.Daily) != 1 {
		t.Fatalf("expected one bucket, got %d", len(an.Daily))
	}
	day := an.Daily[0]
	if day.Total != 7 || day.Successful != 4 || day.Failed != 2 || day.Filtered != 1 {
		t.Fatalf("unexpected rollup: %+v", day)
	}
	if len(an.TopErrors) != 1 || an.TopErrors[0].Error != "FloodWait" || an.TopErrors[0].Count != 2 {
		t.Fatalf("unexpected top errors: %+v", an.TopErrors)
	}
}

func TestAnalyticsTopRulesLimitedToTen(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()
	ta.activateSubscription(t, user)

	for i := 0; i < 13; i++ {
		ta.addChannel(t, user, fmt.Sprintf("-10%02d", i))
	}
	for i := 0; i < 12; i++ {
		rule, err := ta.app.CreateRule(ctx, user, RuleInput{
			SourceChannelID: fmt.Sprintf("-10%02d", i),
			TargetChannelID: fmt.Sprintf("-10%02d", i+1),
		})
		if err != nil {
			t.Fatalf("create rule %d: %v", i, err)
		}
		rule.MessagesForwarded = int64(i)
		if err := ta.store.SaveRule(rule); err != nil {
			t.Fatalf("seed counter: %v", err)
		}
	}

	an, err := ta.app.GetAnalytics(ctx, user, 30)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if len(an.TopRules) != 10 {
		t.Fatalf("expected top 10 rules, got %d", len(an.TopRules))
	}
	if an.TopRules[0].MessagesForwarded != 11 {
		t.Fatalf("rules not ranked by volume: %+v", an.TopRules[0])
	}
}

func TestPerformanceLast24h(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardSuccess, 3)
	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardFailed, 1)
	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardFiltered, 4)
	// Outside the window.
	seedLogs(t, ta, user.ID, "r1", 48*time.Hour, domain.ForwardFailed, 10)

	perf, err := ta.app.GetPerformance(ctx, user)
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if perf.MessagesForwarded != 3 || perf.MessagesFailed != 1 || perf.MessagesFiltered != 4 {
		t.Fatalf("unexpected counts: %+v", perf)
	}
	// Filtered messages count toward the total: 3 of 8.
	if perf.SuccessRate != 37.5 {
		t.Fatalf("expected 37.5%% success rate, got %v", perf.SuccessRate)
	}
}

func TestCleanupLogsArchivesBeforePurge(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	archiver := &fakeArchiver{key: "forwarding-logs/x.json"}
	ta.app.archiver = archiver

	seedLogs(t, ta, user.ID, "r1", 100*24*time.Hour, domain.ForwardSuccess, 4)
	seedLogs(t, ta, user.ID, "r1", time.Hour, domain.ForwardSuccess, 2)

	res, err := ta.app.CleanupLogs(ctx, user, 90)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.DeletedCount != 4 {
		t.Fatalf("expected 4 deleted, got %d", res.DeletedCount)
	}
	if archiver.calls != 1 || len(archiver.last) != 4 {
		t.Fatalf("archive not called with purged rows: calls=%d rows=%d", archiver.calls, len(archiver.last))
	}
	if res.ArchiveKey != "forwarding-logs/x.json" {
		t.Fatalf("archive key not reported: %q", res.ArchiveKey)
	}

	// Recent logs survive.
	page, err := ta.app.Logs(ctx, user, LogsQuery{Days: 7})
	if err != nil {
		t.Fatalf("logs after cleanup: %v", err)
	}
	if len(page.Logs) != 2 {
		t.Fatalf("expected 2 surviving logs, got %d", len(page.Logs))
	}
}

func TestCleanupLogsAbortsWhenArchiveFails(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	archiver := &fakeArchiver{err: errors.New("bucket unreachable")}
	ta.app.archiver = archiver
	seedLogs(t, ta, user.ID, "r1", 100*24*time.Hour, domain.ForwardSuccess, 3)

	_, err := ta.app.CleanupLogs(ctx, user, 90)
	wantKind(t, err, KindInternal)

	old, err := ta.store.ListLogsBefore(user.ID, time.Now().UTC().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("list old logs: %v", err)
	}
	if len(old) != 3 {
		t.Fatalf("purge must abort on archive failure, %d rows left", len(old))
	}
}

func TestCleanupLogsValidatesRetention(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	_, err := ta.app.CleanupLogs(ctx, user, 3)
	wantKind(t, err, KindInvalid)
	_, err = ta.app.CleanupLogs(ctx, user, 1000)
	wantKind(t, err, KindInvalid)
}
