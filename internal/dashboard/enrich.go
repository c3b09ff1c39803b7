// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"time"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// Enrich derives the staleness fields for a batch of tasks. Pure function:
// no I/O, input untouched, a new slice comes back. The caller passes one
// wall-clock reading per batch so relative staleness stays consistent across
// the batch.
func Enrich(tasks []models.Task, now time.Time) []models.Task {
	enriched := make([]models.Task, len(tasks))
	copy(enriched, tasks)

	for i := range enriched {
		t := &enriched[i]

		lastActivity := t.CreatedDate
		if t.ChangedDate != nil {
			lastActivity = *t.ChangedDate
		}
		t.LastActivity = lastActivity
		t.InactiveDays = daysBetween(lastActivity, now)
		t.IsOverdue = t.Deadline != nil && t.Deadline.Before(now)
		t.IsInProgress = t.Status == models.StatusInProgress

		if t.IsInProgress {
			t.ExecutionTime = t.InactiveDays
			start := lastActivity
			t.ExecutionStartDate = &start
		} else {
			t.ExecutionTime = 0
			t.ExecutionStartDate = nil
		}

		t.Priority = models.ClassifyPriority(t.IsOverdue, t.InactiveDays)
	}

	return enriched
}

// daysBetween returns whole days from one instant to a later one. Records
// changed in the future (clock skew between portal and server) count as
// zero days inactive rather than negative.
func daysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
