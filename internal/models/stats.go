// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package models

import "time"

// Staleness bucket labels for the inactivity distribution, keyed by days
// since last activity.
const (
	BucketFresh   = "0-1"
	BucketRecent  = "2-3"
	BucketStale   = "4-7"
	BucketDormant = "8+"
)

// InactivityBucket returns the distribution bucket for an inactivity age.
func InactivityBucket(days int) string {
	switch {
	case days <= 1:
		return BucketFresh
	case days <= 3:
		return BucketRecent
	case days <= 7:
		return BucketStale
	default:
		return BucketDormant
	}
}

// EmployeeStats is the per-employee row of the dashboard summary table.
// A row exists for every department member, including members with no tasks.
type EmployeeStats struct {
	Name            string  `json:"name"`
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	Critical        int     `json:"critical"`
	Warning         int     `json:"warning"`
	Overdue         int     `json:"overdue"`
	InProgress      int     `json:"inProgress"`
	AvgInactiveDays float64 `json:"avgInactiveDays"`
	IsAbsent        bool    `json:"isAbsent"`
}

// TaskStats is the aggregated dashboard summary computed in a single pass
// over the enriched task sets.
type TaskStats struct {
	TotalActive            int                      `json:"totalActive"`
	TotalCompleted         int                      `json:"totalCompleted"`
	CriticalTasks          int                      `json:"criticalTasks"`
	WarningTasks           int                      `json:"warningTasks"`
	OverdueTasks           int                      `json:"overdueTasks"`
	InProgressTasks        int                      `json:"inProgressTasks"`
	ByEmployee             map[string]EmployeeStats `json:"byEmployee"`
	ByStatus               map[string]int           `json:"byStatus"`
	InactivityDistribution map[string]int           `json:"inactivityDistribution"`
}

// DashboardResult is the complete payload a dashboard load produces. It is
// what gets cached, streamed and returned from the JSON endpoint.
type DashboardResult struct {
	Tasks          []Task        `json:"tasks"`
	CompletedTasks []Task        `json:"completedTasks"`
	Users          []User        `json:"users"`
	Department     *Department   `json:"department"`
	Stats          TaskStats     `json:"stats"`
	Absences       []AbsenceInfo `json:"absences"`
	Timestamp      time.Time     `json:"timestamp"`
}
