// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package models

import "strings"

// User is the canonical Bitrix24 user record. The lowercase "name" field is
// the precomputed display name the dashboard tables render.
type User struct {
	ID           string   `json:"ID"`
	Name         string   `json:"NAME"`
	LastName     string   `json:"LAST_NAME"`
	Email        string   `json:"EMAIL"`
	WorkPosition string   `json:"WORK_POSITION,omitempty"`
	Departments  []string `json:"UF_DEPARTMENT,omitempty"`
	Active       bool     `json:"ACTIVE"`
	DisplayName  string   `json:"name"`
}

// FullName joins first and last name with surrounding whitespace trimmed.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// Department is a node of the Bitrix24 department tree. Bitrix returns the
// tree either flat (PARENT links) or nested (CHILDREN); the resolver handles
// both.
type Department struct {
	ID       string        `json:"ID"`
	Name     string        `json:"NAME"`
	Parent   string        `json:"PARENT,omitempty"`
	Sort     int           `json:"SORT,omitempty"`
	Head     string        `json:"UF_HEAD,omitempty"`
	Children []*Department `json:"CHILDREN,omitempty"`
}

// AbsenceInfo carries per-user absence state. Calendar integration is behind
// a capability interface and currently always reports present.
type AbsenceInfo struct {
	UserID   string `json:"userId"`
	IsAbsent bool   `json:"isAbsent"`
}
