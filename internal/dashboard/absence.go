// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"context"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// AbsenceProvider reports which users are currently absent. The default
// implementation reports everyone present; a calendar-backed provider can
// replace it without touching the pipeline.
type AbsenceProvider interface {
	Absences(ctx context.Context, users []models.User) ([]models.AbsenceInfo, error)
}

// PresentProvider reports every user as present.
type PresentProvider struct{}

// Absences returns one all-present entry per user.
func (PresentProvider) Absences(_ context.Context, users []models.User) ([]models.AbsenceInfo, error) {
	absences := make([]models.AbsenceInfo, len(users))
	for i, user := range users {
		absences[i] = models.AbsenceInfo{UserID: user.ID, IsAbsent: false}
	}
	return absences, nil
}
