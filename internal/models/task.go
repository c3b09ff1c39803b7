// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Package models defines the canonical data structures shared by the
// dashboard pipeline: tasks, users, departments and the aggregated result.
//
// Upstream Bitrix24 records arrive with inconsistent field casing; decoding
// into these canonical types happens in internal/bitrix. Everything past that
// boundary works with the types in this package only.
package models

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Status is a Bitrix24 task status code.
type Status int

// The seven fixed Bitrix24 task status codes.
const (
	StatusNew              Status = 1
	StatusWaitingExecution Status = 2
	StatusInProgress       Status = 3
	StatusWaitingControl   Status = 4
	StatusCompleted        Status = 5
	StatusDeferred         Status = 6
	StatusRejected         Status = 7
)

// statusLabels maps the fixed status codes to display labels. Codes outside
// the map render as "Unknown"; aggregation must never fail on them.
var statusLabels = map[Status]string{
	StatusNew:              "New",
	StatusWaitingExecution: "WaitingExecution",
	StatusInProgress:       "InProgress",
	StatusWaitingControl:   "WaitingControl",
	StatusCompleted:        "Completed",
	StatusDeferred:         "Deferred",
	StatusRejected:         "Rejected",
}

// StatusLabelUnknown is the bucket for unrecognized status codes.
const StatusLabelUnknown = "Unknown"

// Label returns the display label for the status, or "Unknown" for codes
// outside the fixed enumeration.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return StatusLabelUnknown
}

// MarshalJSON renders the status as a quoted numeric string, matching the
// shape Bitrix24 itself uses on the wire.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(s)))
}

// UnmarshalJSON accepts both string ("3") and numeric (3) encodings.
func (s *Status) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		n, convErr := strconv.Atoi(asString)
		if convErr != nil {
			*s = 0
			return nil
		}
		*s = Status(n)
		return nil
	}
	var asInt int
	if err := json.Unmarshal(data, &asInt); err != nil {
		return err
	}
	*s = Status(asInt)
	return nil
}

// PriorityTier is the derived three-tier classification of a task.
type PriorityTier string

const (
	PriorityNormal   PriorityTier = "normal"
	PriorityWarning  PriorityTier = "warning"
	PriorityCritical PriorityTier = "critical"
)

// ClassifyPriority computes the priority tier from the overdue flag and the
// inactivity age. Pure function of its two inputs: Critical when the task is
// overdue or inactive for 7+ days, Warning at 3+ inactive days, else Normal.
func ClassifyPriority(isOverdue bool, inactiveDays int) PriorityTier {
	if isOverdue || inactiveDays >= 7 {
		return PriorityCritical
	}
	if inactiveDays >= 3 {
		return PriorityWarning
	}
	return PriorityNormal
}

// Task is the canonical task record. The UPPER_SNAKE JSON tags mirror the
// Bitrix24 payload the browser dashboard already consumes; the camelCase
// fields are derived by the enricher and never present upstream.
type Task struct {
	ID            string     `json:"ID"`
	Title         string     `json:"TITLE"`
	Description   string     `json:"DESCRIPTION,omitempty"`
	ResponsibleID string     `json:"RESPONSIBLE_ID"`
	CreatedBy     string     `json:"CREATED_BY"`
	CreatedDate   time.Time  `json:"CREATED_DATE"`
	ChangedDate   *time.Time `json:"CHANGED_DATE,omitempty"`
	ClosedDate    *time.Time `json:"CLOSED_DATE,omitempty"`
	Deadline      *time.Time `json:"DEADLINE,omitempty"`
	Status        Status     `json:"STATUS"`
	RawPriority   string     `json:"PRIORITY,omitempty"`
	GroupID       string     `json:"GROUP_ID,omitempty"`
	Tags          []string   `json:"TAGS,omitempty"`

	// Derived fields, computed by dashboard.Enrich.
	LastActivity       time.Time    `json:"lastActivity"`
	InactiveDays       int          `json:"inactiveDays"`
	IsOverdue          bool         `json:"isOverdue"`
	IsInProgress       bool         `json:"isInProgress"`
	ExecutionTime      int          `json:"executionTime"`
	ExecutionStartDate *time.Time   `json:"executionStartDate,omitempty"`
	Priority           PriorityTier `json:"priority"`
}
