// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Roughriver74/bitrix-dash/internal/bitrix"
	"github.com/Roughriver74/bitrix-dash/internal/models"
)

// ErrDepartmentNotFound means the configured department name matched nothing
// in the portal's department tree. Handlers map it to a 404.
var ErrDepartmentNotFound = errors.New("department not found")

// Upstream is the slice of the Bitrix24 client the pipeline consumes.
type Upstream interface {
	Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error)
	GetAll(ctx context.Context, method string, params map[string]interface{}) ([]bitrix.RawRecord, error)
	ListTasks(ctx context.Context, filter map[string]interface{}, selectFields []string) ([]bitrix.RawRecord, error)
}

// Resolver finds a department by name and enumerates its members.
type Resolver struct {
	client Upstream
}

// NewResolver creates a resolver over the given upstream client.
func NewResolver(client Upstream) *Resolver {
	return &Resolver{client: client}
}

// Resolve fetches the full department tree once and searches it depth-first
// for an exact, case-sensitive name match. The first match wins; duplicate
// names deeper in the tree are unreachable. Returns the matched department
// and the deduplicated set of its ID plus all descendant department IDs.
func (r *Resolver) Resolve(ctx context.Context, name string) (*models.Department, []string, error) {
	records, err := r.client.GetAll(ctx, "department.get", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching department tree: %w", err)
	}

	departments := make([]*models.Department, 0, len(records))
	for _, rec := range records {
		departments = append(departments, bitrix.DecodeDepartment(rec))
	}

	target := findByName(departments, name)
	if target == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrDepartmentNotFound, name)
	}

	return target, collectIDs(target, departments), nil
}

// findByName walks the forest depth-first, children before siblings.
func findByName(departments []*models.Department, name string) *models.Department {
	for _, dept := range departments {
		if dept.Name == name {
			return dept
		}
		if found := findByName(dept.Children, name); found != nil {
			return found
		}
	}
	return nil
}

// collectIDs gathers root's ID and every descendant's. Bitrix returns the
// tree either nested (CHILDREN) or flat (PARENT links), sometimes both for
// the same portal, so descendants are discovered through both and deduped.
func collectIDs(root *models.Department, all []*models.Department) []string {
	seen := make(map[string]bool)
	var ids []string

	var visit func(dept *models.Department)
	visit = func(dept *models.Department) {
		if dept.ID == "" || seen[dept.ID] {
			return
		}
		seen[dept.ID] = true
		ids = append(ids, dept.ID)

		for _, child := range dept.Children {
			visit(child)
		}
		for _, other := range all {
			if other.Parent == dept.ID {
				visit(other)
			}
		}
	}
	visit(root)

	return ids
}

// Members fetches every user belonging to any of the given departments.
// The result is deduplicated by user ID; a user reachable through several
// department paths appears once.
func (r *Resolver) Members(ctx context.Context, departmentIDs []string) ([]models.User, error) {
	records, err := r.client.GetAll(ctx, "user.get", map[string]interface{}{
		"filter": map[string]interface{}{"UF_DEPARTMENT": departmentIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching department members: %w", err)
	}

	seen := make(map[string]bool, len(records))
	users := make([]models.User, 0, len(records))
	for _, rec := range records {
		user := bitrix.DecodeUser(rec)
		if user.ID == "" || seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		users = append(users, user)
	}
	return users, nil
}
