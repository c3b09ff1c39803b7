// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package bitrix

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/Roughriver74/bitrix-dash/internal/models"
)

func mustRecord(t *testing.T, raw string) RawRecord {
	t.Helper()
	var r RawRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	return r
}

func TestRecordDualCaseLookup(t *testing.T) {
	r := mustRecord(t, `{"changedDate": "2026-08-01T10:00:00+03:00", "TITLE": "upper"}`)

	if got := r.String("TITLE"); got != "upper" {
		t.Errorf("String(TITLE) = %q", got)
	}
	if ts := r.Time("CHANGED_DATE"); ts == nil {
		t.Error("Time(CHANGED_DATE) did not resolve camelCase key")
	}
}

func TestRecordUpperCaseWins(t *testing.T) {
	r := mustRecord(t, `{"TITLE": "upper", "title": "lower"}`)

	if got := r.String("TITLE"); got != "upper" {
		t.Errorf("String(TITLE) = %q, want the UPPER_SNAKE value", got)
	}
}

func TestRecordStringConversions(t *testing.T) {
	r := mustRecord(t, `{"ID": 42, "SORT": "500", "FLAG": true, "EMPTY": null}`)

	if got := r.String("ID"); got != "42" {
		t.Errorf("String(ID) = %q, want 42", got)
	}
	if got := r.Int("SORT"); got != 500 {
		t.Errorf("Int(SORT) = %d, want 500", got)
	}
	if got := r.String("FLAG"); got != "true" {
		t.Errorf("String(FLAG) = %q", got)
	}
	if got := r.String("EMPTY"); got != "" {
		t.Errorf("String(EMPTY) = %q, want empty", got)
	}
	if got := r.String("ABSENT"); got != "" {
		t.Errorf("String(ABSENT) = %q, want empty", got)
	}
}

func TestRecordBool(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"ACTIVE": "Y"}`, true},
		{`{"ACTIVE": "N"}`, false},
		{`{"ACTIVE": true}`, true},
		{`{"ACTIVE": false}`, false},
		{`{}`, false},
	}
	for _, tc := range cases {
		r := mustRecord(t, tc.raw)
		if got := r.Bool("ACTIVE"); got != tc.want {
			t.Errorf("Bool(ACTIVE) on %s = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestRecordTimeFormats(t *testing.T) {
	cases := []string{
		`{"D": "2026-08-01T10:30:00+03:00"}`,
		`{"D": "2026-08-01T10:30:00"}`,
		`{"D": "2026-08-01 10:30:00"}`,
		`{"D": "2026-08-01"}`,
	}
	for _, raw := range cases {
		r := mustRecord(t, raw)
		if ts := r.Time("D"); ts == nil {
			t.Errorf("Time(D) = nil for %s", raw)
		}
	}

	r := mustRecord(t, `{"D": "not a date"}`)
	if ts := r.Time("D"); ts != nil {
		t.Errorf("Time(D) = %v for garbage input, want nil", ts)
	}
}

func TestRecordStringSlice(t *testing.T) {
	r := mustRecord(t, `{"UF_DEPARTMENT": [5, "7"], "TAGS": {"12": "urgent"}, "SINGLE": "x"}`)

	depts := r.StringSlice("UF_DEPARTMENT")
	if len(depts) != 2 || depts[0] != "5" || depts[1] != "7" {
		t.Errorf("StringSlice(UF_DEPARTMENT) = %v", depts)
	}
	tags := r.StringSlice("TAGS")
	if len(tags) != 1 || tags[0] != "urgent" {
		t.Errorf("StringSlice(TAGS) = %v", tags)
	}
	single := r.StringSlice("SINGLE")
	if len(single) != 1 || single[0] != "x" {
		t.Errorf("StringSlice(SINGLE) = %v", single)
	}
}

func TestDecodeTask(t *testing.T) {
	r := mustRecord(t, `{
		"ID": "901",
		"TITLE": "Fix build",
		"RESPONSIBLE_ID": "7",
		"CREATED_BY": "1",
		"CREATED_DATE": "2026-07-01T09:00:00+03:00",
		"CHANGED_DATE": "2026-07-10T09:00:00+03:00",
		"STATUS": "3",
		"DEADLINE": "2026-07-20T18:00:00+03:00"
	}`)

	task := DecodeTask(r)
	if task.ID != "901" || task.Title != "Fix build" || task.ResponsibleID != "7" {
		t.Errorf("DecodeTask core fields = %+v", task)
	}
	if task.Status != models.StatusInProgress {
		t.Errorf("Status = %v, want InProgress", task.Status)
	}
	if task.CreatedDate.IsZero() || task.ChangedDate == nil || task.Deadline == nil {
		t.Error("date fields not decoded")
	}
	if task.ClosedDate != nil {
		t.Error("ClosedDate decoded from absent field")
	}
}

func TestDecodeTaskCamelCase(t *testing.T) {
	r := mustRecord(t, `{"id": 901, "title": "camel", "responsibleId": 7, "status": 5}`)

	task := DecodeTask(r)
	if task.ID != "901" {
		t.Errorf("ID = %q, want 901", task.ID)
	}
	if task.Title != "camel" {
		t.Errorf("Title = %q", task.Title)
	}
	if task.ResponsibleID != "7" {
		t.Errorf("ResponsibleID = %q, want 7", task.ResponsibleID)
	}
	if task.Status != models.StatusCompleted {
		t.Errorf("Status = %v, want Completed", task.Status)
	}
}

func TestDecodeTaskMissingTitle(t *testing.T) {
	task := DecodeTask(mustRecord(t, `{"ID": "1"}`))
	if task.Title != UntitledPlaceholder {
		t.Errorf("Title = %q, want placeholder", task.Title)
	}
}

func TestDecodeUser(t *testing.T) {
	r := mustRecord(t, `{
		"ID": "7",
		"NAME": "Anna",
		"LAST_NAME": "Ivanova",
		"EMAIL": "anna@example.com",
		"UF_DEPARTMENT": [12],
		"ACTIVE": true
	}`)

	user := DecodeUser(r)
	if user.DisplayName != "Anna Ivanova" {
		t.Errorf("DisplayName = %q", user.DisplayName)
	}
	if !user.Active {
		t.Error("Active = false")
	}
	if len(user.Departments) != 1 || user.Departments[0] != "12" {
		t.Errorf("Departments = %v", user.Departments)
	}
}

func TestDecodeUserNamelessFallsBackToID(t *testing.T) {
	user := DecodeUser(mustRecord(t, `{"ID": "7"}`))
	if user.DisplayName != "7" {
		t.Errorf("DisplayName = %q, want ID fallback", user.DisplayName)
	}
}

func TestDecodeDepartmentTree(t *testing.T) {
	r := mustRecord(t, `{
		"ID": "1",
		"NAME": "Company",
		"CHILDREN": [
			{"ID": "2", "NAME": "QA", "PARENT": "1"},
			{"ID": "3", "NAME": "Dev", "PARENT": "1", "CHILDREN": [{"ID": "4", "NAME": "Backend", "PARENT": "3"}]}
		]
	}`)

	dept := DecodeDepartment(r)
	if dept.Name != "Company" || len(dept.Children) != 2 {
		t.Fatalf("DecodeDepartment = %+v", dept)
	}
	if dept.Children[1].Children[0].Name != "Backend" {
		t.Errorf("nested child = %+v", dept.Children[1])
	}
}

func TestToCamel(t *testing.T) {
	cases := map[string]string{
		"TITLE":          "title",
		"CHANGED_DATE":   "changedDate",
		"RESPONSIBLE_ID": "responsibleId",
		"UF_DEPARTMENT":  "ufDepartment",
	}
	for in, want := range cases {
		if got := toCamel(in); got != want {
			t.Errorf("toCamel(%q) = %q, want %q", in, got, want)
		}
	}
}
