// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package bitrix

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// RawRecord is one upstream record with its original, inconsistently cased
// keys intact. Bitrix24 returns UPPER_SNAKE keys from most endpoints and
// camelCase from some task endpoints; the accessors below probe both, with
// the UPPER_SNAKE spelling taking precedence when a record carries both.
type RawRecord map[string]json.RawMessage

// UntitledPlaceholder fills in for tasks that arrive without a title.
const UntitledPlaceholder = "Untitled"

// lookup resolves an UPPER_SNAKE key against the record, falling back to its
// camelCase twin (CHANGED_DATE -> changedDate).
func (r RawRecord) lookup(key string) (json.RawMessage, bool) {
	if raw, ok := r[key]; ok {
		return raw, true
	}
	if raw, ok := r[toCamel(key)]; ok {
		return raw, true
	}
	return nil, false
}

// toCamel converts an UPPER_SNAKE field name to camelCase.
func toCamel(key string) string {
	parts := strings.Split(strings.ToLower(key), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// String returns the field as a string, converting numbers and booleans.
// Missing or null fields return "".
func (r RawRecord) String(key string) string {
	raw, ok := r.lookup(key)
	if !ok || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// Int returns the field as an int, accepting both string and numeric
// encodings. Missing or unparseable fields return 0.
func (r RawRecord) Int(key string) int {
	s := r.String(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Bool returns the field as a bool. Bitrix encodes booleans as "Y"/"N" in
// most places, plain true/false in others.
func (r RawRecord) Bool(key string) bool {
	raw, ok := r.lookup(key)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	s := r.String(key)
	return s == "Y" || s == "y" || s == "true" || s == "1"
}

// timeLayouts are the date encodings Bitrix24 is known to emit.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time parses the field as a timestamp. Missing, empty or unparseable
// values return nil.
func (r RawRecord) Time(key string) *time.Time {
	s := r.String(key)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// StringSlice returns the field as a slice of strings, accepting a bare
// string, an array of strings/numbers, or an object whose values are strings
// (Bitrix tag lists arrive keyed by tag ID).
func (r RawRecord) StringSlice(key string) []string {
	raw, ok := r.lookup(key)
	if !ok || string(raw) == "null" {
		return nil
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			out = append(out, anyToString(v))
		}
		return out
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		out := make([]string, 0, len(obj))
		for _, v := range obj {
			out = append(out, anyToString(v))
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

func anyToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// DecodeTask converts a raw upstream record into the canonical task shape.
// Derived fields stay zero; enrichment fills them in later.
func DecodeTask(r RawRecord) models.Task {
	task := models.Task{
		ID:            r.String("ID"),
		Title:         r.String("TITLE"),
		Description:   r.String("DESCRIPTION"),
		ResponsibleID: r.String("RESPONSIBLE_ID"),
		CreatedBy:     r.String("CREATED_BY"),
		ChangedDate:   r.Time("CHANGED_DATE"),
		ClosedDate:    r.Time("CLOSED_DATE"),
		Deadline:      r.Time("DEADLINE"),
		Status:        models.Status(r.Int("STATUS")),
		RawPriority:   r.String("PRIORITY"),
		GroupID:       r.String("GROUP_ID"),
		Tags:          r.StringSlice("TAGS"),
	}
	if created := r.Time("CREATED_DATE"); created != nil {
		task.CreatedDate = *created
	}
	if task.Title == "" {
		task.Title = UntitledPlaceholder
	}
	return task
}

// DecodeUser converts a raw user record, precomputing the display name.
func DecodeUser(r RawRecord) models.User {
	user := models.User{
		ID:           r.String("ID"),
		Name:         r.String("NAME"),
		LastName:     r.String("LAST_NAME"),
		Email:        r.String("EMAIL"),
		WorkPosition: r.String("WORK_POSITION"),
		Departments:  r.StringSlice("UF_DEPARTMENT"),
		Active:       r.Bool("ACTIVE"),
	}
	user.DisplayName = user.FullName()
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return user
}

// DecodeDepartment converts a raw department record. CHILDREN, when present,
// is decoded recursively.
func DecodeDepartment(r RawRecord) *models.Department {
	dept := &models.Department{
		ID:     r.String("ID"),
		Name:   r.String("NAME"),
		Parent: r.String("PARENT"),
		Sort:   r.Int("SORT"),
		Head:   r.String("UF_HEAD"),
	}
	if raw, ok := r.lookup("CHILDREN"); ok {
		var children []RawRecord
		if err := json.Unmarshal(raw, &children); err == nil {
			for _, child := range children {
				dept.Children = append(dept.Children, DecodeDepartment(child))
			}
		}
	}
	return dept
}
