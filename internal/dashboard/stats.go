// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"math"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// BuildStats aggregates enriched task batches into the dashboard summary.
// One pass over each collection; O(active + completed + users) total.
//
// Every known user gets a row before scanning, so members without tasks
// appear with zero values. Tasks whose responsible ID matches no known user
// still count toward the totals and histograms, just not toward any row.
// The status and staleness histograms cover active tasks only.
func BuildStats(active, completed []models.Task, users []models.User, absences []models.AbsenceInfo) models.TaskStats {
	absent := make(map[string]bool, len(absences))
	for _, a := range absences {
		absent[a.UserID] = a.IsAbsent
	}

	byEmployee := make(map[string]models.EmployeeStats, len(users))
	inactiveSums := make(map[string]int, len(users))
	for _, user := range users {
		byEmployee[user.ID] = models.EmployeeStats{
			Name:     user.DisplayName,
			IsAbsent: absent[user.ID],
		}
	}

	stats := models.TaskStats{
		TotalActive:    len(active),
		TotalCompleted: len(completed),
		ByStatus:       make(map[string]int),
		InactivityDistribution: map[string]int{
			models.BucketFresh:   0,
			models.BucketRecent:  0,
			models.BucketStale:   0,
			models.BucketDormant: 0,
		},
	}

	for _, task := range active {
		stats.ByStatus[task.Status.Label()]++
		stats.InactivityDistribution[models.InactivityBucket(task.InactiveDays)]++

		if task.IsOverdue {
			stats.OverdueTasks++
		}
		if task.IsInProgress {
			stats.InProgressTasks++
		}
		switch task.Priority {
		case models.PriorityCritical:
			stats.CriticalTasks++
		case models.PriorityWarning:
			stats.WarningTasks++
		}

		emp, known := byEmployee[task.ResponsibleID]
		if !known {
			continue
		}
		emp.Active++
		if task.IsOverdue {
			emp.Overdue++
		}
		if task.IsInProgress {
			emp.InProgress++
		}
		switch task.Priority {
		case models.PriorityCritical:
			emp.Critical++
		case models.PriorityWarning:
			emp.Warning++
		}
		inactiveSums[task.ResponsibleID] += task.InactiveDays
		byEmployee[task.ResponsibleID] = emp
	}

	for _, task := range completed {
		if emp, known := byEmployee[task.ResponsibleID]; known {
			emp.Completed++
			byEmployee[task.ResponsibleID] = emp
		}
	}

	for id, emp := range byEmployee {
		if emp.Active > 0 {
			emp.AvgInactiveDays = math.Round(float64(inactiveSums[id]) / float64(emp.Active))
			byEmployee[id] = emp
		}
	}

	stats.ByEmployee = byEmployee
	return stats
}
