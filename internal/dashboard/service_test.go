// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Roughriver74/bitrix-dash/internal/bitrix"
	"github.com/Roughriver74/bitrix-dash/internal/cache"
	"github.com/Roughriver74/bitrix-dash/internal/config"
	"github.com/Roughriver74/bitrix-dash/internal/models"
)

var pipelineNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// scenarioUpstream returns the reference portal: department QA with users
// 1 and 2, user 1 holding one stale in-progress task and one recently
// completed task.
func scenarioUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	return &fakeUpstream{
		departments: records(t,
			`{"ID": "1", "NAME": "Company", "CHILDREN": [{"ID": "2", "NAME": "QA", "PARENT": "1"}]}`,
		),
		users: records(t,
			`{"ID": "1", "NAME": "Anna", "LAST_NAME": "Ivanova", "ACTIVE": true}`,
			`{"ID": "2", "NAME": "Boris", "LAST_NAME": "Petrov", "ACTIVE": true}`,
		),
		listFn: func(filter map[string]interface{}) ([]bitrix.RawRecord, error) {
			if _, active := filter["!STATUS"]; active {
				return records(t,
					`{"ID": "100", "TITLE": "Stale task", "RESPONSIBLE_ID": "1", "STATUS": "3", "CREATED_DATE": "2026-08-10T12:00:00Z"}`,
				), nil
			}
			return records(t,
				`{"ID": "101", "TITLE": "Done task", "RESPONSIBLE_ID": "1", "STATUS": "5", "CREATED_DATE": "2026-08-01T12:00:00Z", "CLOSED_DATE": "2026-08-18T12:00:00Z"}`,
			), nil
		},
	}
}

func newTestService(t *testing.T, upstream *fakeUpstream, cfg config.DashboardConfig) *Service {
	t.Helper()
	resultCache := cache.New(15*time.Minute, time.Hour)
	t.Cleanup(resultCache.Close)

	svc := NewService(upstream, resultCache, nil, cfg)
	svc.now = func() time.Time { return pipelineNow }
	return svc
}

func scenarioConfig() config.DashboardConfig {
	return config.DashboardConfig{
		DepartmentName:  "QA",
		CompletedWindow: 30 * 24 * time.Hour,
		ChunkSize:       10,
	}
}

func TestLoadEndToEnd(t *testing.T) {
	upstream := scenarioUpstream(t)
	svc := newTestService(t, upstream, scenarioConfig())

	var messages []string
	var percents []int
	result, err := svc.Load(context.Background(), false, func(msg string, pct int) {
		messages = append(messages, msg)
		percents = append(percents, pct)
	})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if result.Department == nil || result.Department.Name != "QA" {
		t.Errorf("department = %+v", result.Department)
	}
	if len(result.Users) != 2 {
		t.Errorf("users = %d, want 2", len(result.Users))
	}
	if len(result.Tasks) != 1 || len(result.CompletedTasks) != 1 {
		t.Fatalf("tasks = %d active / %d completed, want 1/1", len(result.Tasks), len(result.CompletedTasks))
	}

	task := result.Tasks[0]
	if task.InactiveDays != 10 {
		t.Errorf("inactiveDays = %d, want 10", task.InactiveDays)
	}
	if task.Priority != models.PriorityCritical {
		t.Errorf("priority = %v, want critical", task.Priority)
	}
	if !task.IsInProgress {
		t.Error("isInProgress = false")
	}

	stats := result.Stats
	if stats.TotalActive != 1 || stats.TotalCompleted != 1 {
		t.Errorf("totals = %d/%d, want 1/1", stats.TotalActive, stats.TotalCompleted)
	}
	if stats.InactivityDistribution["8+"] != 1 {
		t.Errorf("8+ bucket = %d, want 1", stats.InactivityDistribution["8+"])
	}
	if stats.ByStatus["InProgress"] != 1 {
		t.Errorf("byStatus = %v", stats.ByStatus)
	}
	if emp := stats.ByEmployee["2"]; emp.Active != 0 || emp.AvgInactiveDays != 0 {
		t.Errorf("idle user row = %+v, want zeros", emp)
	}

	if len(result.Absences) != 2 {
		t.Errorf("absences = %d entries, want 2", len(result.Absences))
	}
	for _, a := range result.Absences {
		if a.IsAbsent {
			t.Errorf("user %s reported absent by default provider", a.UserID)
		}
	}
	if !result.Timestamp.Equal(pipelineNow) {
		t.Errorf("timestamp = %v, want pipeline now", result.Timestamp)
	}

	// Milestones must be monotonically non-decreasing and land on the
	// defined percentages.
	wantPercents := []int{10, 20, 30, 50, 70, 85, 95}
	if len(percents) != len(wantPercents) {
		t.Fatalf("progress percents = %v, want %v", percents, wantPercents)
	}
	for i, want := range wantPercents {
		if percents[i] != want {
			t.Errorf("percents[%d] = %d (%q), want %d", i, percents[i], messages[i], want)
		}
	}
}

func TestLoadTaskFilters(t *testing.T) {
	upstream := scenarioUpstream(t)
	svc := newTestService(t, upstream, scenarioConfig())

	if _, err := svc.Load(context.Background(), false, nil); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(upstream.listFilters) != 2 {
		t.Fatalf("list calls = %d, want 2 (active + completed)", len(upstream.listFilters))
	}

	activeFilter := upstream.listFilters[0]
	excluded, _ := activeFilter["!STATUS"].([]int)
	if len(excluded) != 2 || excluded[0] != 5 || excluded[1] != 6 {
		t.Errorf("!STATUS = %v, want [5 6]", activeFilter["!STATUS"])
	}
	chunk, _ := activeFilter["RESPONSIBLE_ID"].([]string)
	if len(chunk) != 2 {
		t.Errorf("RESPONSIBLE_ID = %v, want both users in one chunk", activeFilter["RESPONSIBLE_ID"])
	}

	completedFilter := upstream.listFilters[1]
	if completedFilter["STATUS"] != 5 {
		t.Errorf("STATUS = %v, want 5", completedFilter["STATUS"])
	}
	wantSince := pipelineNow.Add(-30 * 24 * time.Hour).Format(time.RFC3339)
	if completedFilter[">=CLOSED_DATE"] != wantSince {
		t.Errorf(">=CLOSED_DATE = %v, want %s", completedFilter[">=CLOSED_DATE"], wantSince)
	}
}

func TestLoadChunking(t *testing.T) {
	upstream := scenarioUpstream(t)
	upstream.users = records(t,
		`{"ID": "1", "NAME": "A", "LAST_NAME": "A"}`,
		`{"ID": "2", "NAME": "B", "LAST_NAME": "B"}`,
		`{"ID": "3", "NAME": "C", "LAST_NAME": "C"}`,
	)
	cfg := scenarioConfig()
	cfg.ChunkSize = 2
	svc := newTestService(t, upstream, cfg)

	if _, err := svc.Load(context.Background(), false, nil); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	// 3 users, chunks of 2: two chunks per batch, two batches.
	if len(upstream.listFilters) != 4 {
		t.Errorf("list calls = %d, want 4", len(upstream.listFilters))
	}
}

func TestLoadChunkFailureIsRecoverable(t *testing.T) {
	upstream := scenarioUpstream(t)
	upstream.users = records(t,
		`{"ID": "1", "NAME": "A", "LAST_NAME": "A"}`,
		`{"ID": "2", "NAME": "B", "LAST_NAME": "B"}`,
	)
	base := upstream.listFn
	upstream.listFn = func(filter map[string]interface{}) ([]bitrix.RawRecord, error) {
		chunk, _ := filter["RESPONSIBLE_ID"].([]string)
		if len(chunk) == 1 && chunk[0] == "2" {
			return nil, errors.New("chunk exploded")
		}
		return base(filter)
	}
	cfg := scenarioConfig()
	cfg.ChunkSize = 1
	svc := newTestService(t, upstream, cfg)

	result, err := svc.Load(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Load() failed on recoverable chunk error: %v", err)
	}
	if len(result.Tasks) != 1 {
		t.Errorf("tasks = %d, want 1 from the surviving chunk", len(result.Tasks))
	}
}

func TestLoadDepartmentNotFoundIsFatal(t *testing.T) {
	upstream := scenarioUpstream(t)
	cfg := scenarioConfig()
	cfg.DepartmentName = "Ghost"
	svc := newTestService(t, upstream, cfg)

	_, err := svc.Load(context.Background(), false, nil)
	if !errors.Is(err, ErrDepartmentNotFound) {
		t.Fatalf("Load() error = %v, want ErrDepartmentNotFound", err)
	}
}

func TestLoadMemberListingFailureIsFatal(t *testing.T) {
	upstream := scenarioUpstream(t)
	upstream.failMethod = "user.get"
	svc := newTestService(t, upstream, scenarioConfig())

	if _, err := svc.Load(context.Background(), false, nil); err == nil {
		t.Fatal("Load() succeeded despite member listing failure")
	}
}

func TestLoadCaching(t *testing.T) {
	upstream := scenarioUpstream(t)
	svc := newTestService(t, upstream, scenarioConfig())

	first, err := svc.Load(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}
	callsAfterFirst := len(upstream.getAllCalls)

	second, err := svc.Load(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if second != first {
		t.Error("second Load() did not return the cached result")
	}
	if len(upstream.getAllCalls) != callsAfterFirst {
		t.Errorf("cached Load() hit upstream: %v", upstream.getAllCalls)
	}

	// Force refresh bypasses the read but re-populates the cache.
	third, err := svc.Load(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("forced Load() failed: %v", err)
	}
	if third == first {
		t.Error("forced Load() returned the cached result")
	}
	if len(upstream.getAllCalls) == callsAfterFirst {
		t.Error("forced Load() did not hit upstream")
	}

	fourth, err := svc.Load(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("post-force Load() failed: %v", err)
	}
	if fourth != third {
		t.Error("forced result was not cached for subsequent loads")
	}
}
