// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"testing"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

func activeTask(id, responsible string, status models.Status, inactiveDays int, overdue bool) models.Task {
	return models.Task{
		ID:            id,
		ResponsibleID: responsible,
		Status:        status,
		InactiveDays:  inactiveDays,
		IsOverdue:     overdue,
		IsInProgress:  status == models.StatusInProgress,
		Priority:      models.ClassifyPriority(overdue, inactiveDays),
	}
}

func testUsers() []models.User {
	return []models.User{
		{ID: "1", DisplayName: "Anna Ivanova"},
		{ID: "2", DisplayName: "Boris Petrov"},
	}
}

func TestBuildStatsTotals(t *testing.T) {
	active := []models.Task{
		activeTask("10", "1", models.StatusInProgress, 10, false),
		activeTask("11", "1", models.StatusNew, 1, true),
		activeTask("12", "2", models.StatusWaitingControl, 4, false),
	}
	completed := []models.Task{
		{ID: "20", ResponsibleID: "1", Status: models.StatusCompleted},
	}

	stats := BuildStats(active, completed, testUsers(), nil)

	if stats.TotalActive != 3 {
		t.Errorf("totalActive = %d, want 3", stats.TotalActive)
	}
	if stats.TotalCompleted != 1 {
		t.Errorf("totalCompleted = %d, want 1", stats.TotalCompleted)
	}
	if stats.OverdueTasks != 1 {
		t.Errorf("overdueTasks = %d, want 1", stats.OverdueTasks)
	}
	if stats.InProgressTasks != 1 {
		t.Errorf("inProgressTasks = %d, want 1", stats.InProgressTasks)
	}
	// Task 10 is critical (10 inactive days), task 11 critical (overdue),
	// task 12 warning (4 days).
	if stats.CriticalTasks != 2 {
		t.Errorf("criticalTasks = %d, want 2", stats.CriticalTasks)
	}
	if stats.WarningTasks != 1 {
		t.Errorf("warningTasks = %d, want 1", stats.WarningTasks)
	}

	sumActive := 0
	for _, emp := range stats.ByEmployee {
		sumActive += emp.Active
	}
	if sumActive != stats.TotalActive {
		t.Errorf("sum(byEmployee.active) = %d, want %d", sumActive, stats.TotalActive)
	}
}

func TestBuildStatsHistogramsCoverActiveTasks(t *testing.T) {
	active := []models.Task{
		activeTask("10", "1", models.StatusInProgress, 0, false),
		activeTask("11", "1", models.StatusNew, 3, false),
		activeTask("12", "2", models.StatusWaitingControl, 5, false),
		activeTask("13", "2", models.Status(42), 9, false),
	}

	stats := BuildStats(active, nil, testUsers(), nil)

	statusSum := 0
	for _, n := range stats.ByStatus {
		statusSum += n
	}
	if statusSum != stats.TotalActive {
		t.Errorf("status histogram sums to %d, want %d", statusSum, stats.TotalActive)
	}
	if stats.ByStatus[models.StatusLabelUnknown] != 1 {
		t.Errorf("Unknown bucket = %d, want 1", stats.ByStatus[models.StatusLabelUnknown])
	}

	bucketSum := 0
	for _, n := range stats.InactivityDistribution {
		bucketSum += n
	}
	if bucketSum != stats.TotalActive {
		t.Errorf("staleness histogram sums to %d, want %d", bucketSum, stats.TotalActive)
	}
	wantBuckets := map[string]int{"0-1": 1, "2-3": 1, "4-7": 1, "8+": 1}
	for bucket, want := range wantBuckets {
		if got := stats.InactivityDistribution[bucket]; got != want {
			t.Errorf("bucket %q = %d, want %d", bucket, got, want)
		}
	}
}

func TestBuildStatsSeedsAllUsers(t *testing.T) {
	stats := BuildStats(nil, nil, testUsers(), nil)

	if len(stats.ByEmployee) != 2 {
		t.Fatalf("byEmployee has %d rows, want 2", len(stats.ByEmployee))
	}
	for id, emp := range stats.ByEmployee {
		if emp.Active != 0 || emp.Completed != 0 || emp.AvgInactiveDays != 0 {
			t.Errorf("user %s row not zero-valued: %+v", id, emp)
		}
	}
}

func TestBuildStatsUnknownResponsible(t *testing.T) {
	active := []models.Task{activeTask("10", "999", models.StatusNew, 0, false)}

	stats := BuildStats(active, nil, testUsers(), nil)

	if stats.TotalActive != 1 {
		t.Errorf("totalActive = %d, want 1", stats.TotalActive)
	}
	sumActive := 0
	for _, emp := range stats.ByEmployee {
		sumActive += emp.Active
	}
	if sumActive != 0 {
		t.Errorf("sum(byEmployee.active) = %d, want 0 for unknown responsible", sumActive)
	}
}

func TestBuildStatsAvgInactiveDays(t *testing.T) {
	active := []models.Task{
		activeTask("10", "1", models.StatusNew, 2, false),
		activeTask("11", "1", models.StatusNew, 5, false),
	}

	stats := BuildStats(active, nil, testUsers(), nil)

	// (2+5)/2 = 3.5, rounds to 4.
	if got := stats.ByEmployee["1"].AvgInactiveDays; got != 4 {
		t.Errorf("avgInactiveDays = %v, want 4", got)
	}
	if got := stats.ByEmployee["2"].AvgInactiveDays; got != 0 {
		t.Errorf("avgInactiveDays for idle user = %v, want 0", got)
	}
}

func TestBuildStatsAbsences(t *testing.T) {
	absences := []models.AbsenceInfo{
		{UserID: "1", IsAbsent: true},
		{UserID: "2", IsAbsent: false},
	}

	stats := BuildStats(nil, nil, testUsers(), absences)

	if !stats.ByEmployee["1"].IsAbsent {
		t.Error("user 1 not marked absent")
	}
	if stats.ByEmployee["2"].IsAbsent {
		t.Error("user 2 marked absent")
	}
}

// The reference scenario: two users, one active in-progress task 10 days
// stale, one recently completed task.
func TestBuildStatsEndToEndScenario(t *testing.T) {
	active := []models.Task{activeTask("100", "1", models.StatusInProgress, 10, false)}
	completed := []models.Task{{ID: "101", ResponsibleID: "1", Status: models.StatusCompleted}}

	stats := BuildStats(active, completed, testUsers(), nil)

	if stats.TotalActive != 1 || stats.TotalCompleted != 1 {
		t.Errorf("totals = %d/%d, want 1/1", stats.TotalActive, stats.TotalCompleted)
	}
	if active[0].Priority != models.PriorityCritical {
		t.Errorf("priority = %v, want critical", active[0].Priority)
	}
	if stats.InactivityDistribution["8+"] != 1 {
		t.Errorf("8+ bucket = %d, want 1", stats.InactivityDistribution["8+"])
	}
	if stats.ByStatus["InProgress"] != 1 || len(stats.ByStatus) != 1 {
		t.Errorf("byStatus = %v, want {InProgress: 1}", stats.ByStatus)
	}
	if emp := stats.ByEmployee["2"]; emp.Active != 0 || emp.AvgInactiveDays != 0 {
		t.Errorf("idle user row = %+v, want zeros", emp)
	}
	if emp := stats.ByEmployee["1"]; emp.Active != 1 || emp.Completed != 1 || emp.Critical != 1 || emp.AvgInactiveDays != 10 {
		t.Errorf("active user row = %+v", emp)
	}
}
