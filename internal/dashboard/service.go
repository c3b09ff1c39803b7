// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Package dashboard runs the task reporting pipeline: resolve the configured
// department, enumerate its members, fetch their active and recently
// completed tasks in bounded chunks, enrich everything with staleness fields
// and aggregate the result. Pipeline steps run strictly sequentially; the
// chunked task fetch is the deliberate backpressure bound on upstream load.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/Roughriver74/bitrix-dash/internal/bitrix"
	"github.com/Roughriver74/bitrix-dash/internal/cache"
	"github.com/Roughriver74/bitrix-dash/internal/config"
	"github.com/Roughriver74/bitrix-dash/internal/logging"
	"github.com/Roughriver74/bitrix-dash/internal/metrics"
	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// ProgressFunc receives pipeline milestones: a human-readable message and a
// percentage in [0,100]. Percentages never decrease within one run.
type ProgressFunc func(message string, percent int)

// Service is the dashboard pipeline.
type Service struct {
	client   Upstream
	resolver *Resolver
	absences AbsenceProvider
	cache    *cache.Cache
	cfg      config.DashboardConfig

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewService wires the pipeline. The absence provider may be nil, in which
// case everyone is reported present.
func NewService(client Upstream, resultCache *cache.Cache, absences AbsenceProvider, cfg config.DashboardConfig) *Service {
	if absences == nil {
		absences = PresentProvider{}
	}
	return &Service{
		client:   client,
		resolver: NewResolver(client),
		absences: absences,
		cache:    resultCache,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Load returns the dashboard result, from cache when fresh. force bypasses
// the cache read but still stores the recomputed result, keeping later
// callers warm. progress may be nil.
func (s *Service) Load(ctx context.Context, force bool, progress ProgressFunc) (*models.DashboardResult, error) {
	if progress == nil {
		progress = func(string, int) {}
	}

	if !force {
		if cached, ok := s.cache.Get(cache.DashboardKey); ok {
			if result, ok := cached.(*models.DashboardResult); ok {
				logging.Ctx(ctx).Debug().Msg("Dashboard served from cache")
				return result, nil
			}
		}
	}

	started := time.Now()
	result, err := s.run(ctx, progress)
	metrics.RecordPipelineRun(time.Since(started), err)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cache.DashboardKey, result)
	return result, nil
}

// run executes one full pipeline pass.
func (s *Service) run(ctx context.Context, progress ProgressFunc) (*models.DashboardResult, error) {
	log := logging.Ctx(ctx)

	department, departmentIDs, err := s.resolver.Resolve(ctx, s.cfg.DepartmentName)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("department", department.Name).
		Int("departments", len(departmentIDs)).
		Msg("Department resolved")
	progress("Department resolved", 10)

	users, err := s.resolver.Members(ctx, departmentIDs)
	if err != nil {
		return nil, err
	}
	log.Info().Int("users", len(users)).Msg("Department members listed")
	progress("Department members listed", 20)

	userIDs := make([]string, len(users))
	for i, user := range users {
		userIDs[i] = user.ID
	}
	now := s.now()

	activeRecords := s.fetchTaskChunks(ctx, userIDs, s.activeFilter())
	progress("Active tasks fetched", 30)

	completedRecords := s.fetchTaskChunks(ctx, userIDs, s.completedFilter(now))
	progress("Completed tasks fetched", 50)

	progress("User details loaded", 70)

	absences, err := s.absences.Absences(ctx, users)
	if err != nil {
		// Absence data is decorative; a provider failure must not kill
		// the run.
		log.Warn().Err(err).Msg("Absence lookup failed, reporting everyone present")
		absences, _ = PresentProvider{}.Absences(ctx, users)
	}
	progress("Absences checked", 85)

	active := Enrich(decodeTasks(activeRecords), now)
	completed := Enrich(decodeTasks(completedRecords), now)
	stats := BuildStats(active, completed, users, absences)
	progress("Statistics generated", 95)

	log.Info().
		Int("active", len(active)).
		Int("completed", len(completed)).
		Msg("Dashboard pipeline finished")

	return &models.DashboardResult{
		Tasks:          active,
		CompletedTasks: completed,
		Users:          users,
		Department:     department,
		Stats:          stats,
		Absences:       absences,
		Timestamp:      now,
	}, nil
}

// activeFilter matches tasks in any non-terminal status.
func (s *Service) activeFilter() map[string]interface{} {
	return map[string]interface{}{
		"!STATUS": []int{int(models.StatusCompleted), int(models.StatusDeferred)},
	}
}

// completedFilter matches tasks closed within the configured window.
func (s *Service) completedFilter(now time.Time) map[string]interface{} {
	since := now.Add(-s.cfg.CompletedWindow)
	return map[string]interface{}{
		"STATUS":        int(models.StatusCompleted),
		">=CLOSED_DATE": since.Format(time.RFC3339),
	}
}

// fetchTaskChunks fetches tasks for the users in chunks, sequentially. A
// chunk failure is logged and skipped; the remaining chunks still load, so
// one bad filter or upstream hiccup costs part of the data, not the run.
func (s *Service) fetchTaskChunks(ctx context.Context, userIDs []string, baseFilter map[string]interface{}) []bitrix.RawRecord {
	var records []bitrix.RawRecord

	for _, chunk := range chunkStrings(userIDs, s.cfg.ChunkSize) {
		filter := make(map[string]interface{}, len(baseFilter)+1)
		for k, v := range baseFilter {
			filter[k] = v
		}
		filter["RESPONSIBLE_ID"] = chunk

		page, err := s.client.ListTasks(ctx, filter, []string{"*"})
		if err != nil {
			metrics.PipelineChunkFailures.Inc()
			logging.Ctx(ctx).Warn().
				Err(err).
				Strs("user_ids", chunk).
				Msg("Task chunk fetch failed, continuing with remaining chunks")
			continue
		}
		records = append(records, page...)
	}
	return records
}

// chunkStrings splits ids into chunks of at most size elements.
func chunkStrings(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// decodeTasks converts raw upstream records to canonical tasks.
func decodeTasks(records []bitrix.RawRecord) []models.Task {
	tasks := make([]models.Task, len(records))
	for i, rec := range records {
		tasks[i] = bitrix.DecodeTask(rec)
	}
	return tasks
}

// Describe renders the pipeline configuration for startup logging.
func (s *Service) Describe() string {
	return fmt.Sprintf("department=%q chunk_size=%d completed_window=%s",
		s.cfg.DepartmentName, s.cfg.ChunkSize, s.cfg.CompletedWindow)
}
