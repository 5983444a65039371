// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sql

import (
	"context"
	gosql "database/sql"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/trio2o/trio2o/pkg/routing"
)

// RoutingStore is a routing.Store backed by a DB. Reserve's conditional
// insert plus TTL reclaim, spec.md §5's "resolved by DB constraint"
// requirement, is implemented here as a transaction around a
// SELECT-then-branch rather than a real unique-constraint violation catch,
// since the decision (reclaim vs. back off) depends on the row's age, not
// merely its presence.
type RoutingStore struct {
	db *DB
}

// NewRoutingStore returns a routing.Store backed by db.
func NewRoutingStore(db *DB) *RoutingStore {
	return &RoutingStore{db: db}
}

func (s *RoutingStore) Reserve(ctx context.Context, topID, resourceType string, ttl time.Duration) (routing.Row, routing.ReserveStatus, error) {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return routing.Row{}, 0, err
	}
	defer tx.Rollback()

	row, ok, err := s.get(ctx, tx, topID, resourceType)
	if err != nil {
		return routing.Row{}, 0, err
	}
	now := time.Now()

	if !ok {
		row = routing.Row{TopID: topID, ResourceType: resourceType, CreatedAt: now, UpdatedAt: now}
		if err := s.insert(ctx, tx, row); err != nil {
			return routing.Row{}, 0, err
		}
		return row, routing.Reserved, tx.Commit()
	}

	if !row.IsReservation() {
		return row, routing.ResDone, tx.Commit()
	}

	if now.Sub(row.UpdatedAt) < ttl {
		return row, routing.NoneDone, tx.Commit()
	}

	row.UpdatedAt = now
	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("resource_routings").Set(ub.Assign("updated_at", now)).
		Where(ub.Equal("top_id", topID), ub.Equal("resource_type", resourceType))
	q, a := ub.BuildWithFlavor(s.db.Flavor)
	if _, err := tx.ExecContext(ctx, q, a...); err != nil {
		return routing.Row{}, 0, err
	}
	return row, routing.Reserved, tx.Commit()
}

func (s *RoutingStore) Complete(ctx context.Context, topID, resourceType, bottomID, podID, projectID string) (routing.Row, error) {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return routing.Row{}, err
	}
	defer tx.Rollback()

	now := time.Now()
	_, ok, err := s.get(ctx, tx, topID, resourceType)
	if err != nil {
		return routing.Row{}, err
	}

	row := routing.Row{TopID: topID, ResourceType: resourceType, BottomID: bottomID, PodID: podID, ProjectID: projectID, UpdatedAt: now}
	if ok {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("resource_routings").Set(
			ub.Assign("bottom_id", bottomID),
			ub.Assign("pod_id", podID),
			ub.Assign("project_id", projectID),
			ub.Assign("updated_at", now),
		).Where(ub.Equal("top_id", topID), ub.Equal("resource_type", resourceType))
		q, a := ub.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return routing.Row{}, err
		}
	} else {
		row.CreatedAt = now
		if err := s.insert(ctx, tx, row); err != nil {
			return routing.Row{}, err
		}
	}

	return row, tx.Commit()
}

func (s *RoutingStore) LookupBottoms(ctx context.Context, topID, resourceType string) ([]routing.Row, error) {
	row, ok, err := s.get(ctx, s.db.Conn, topID, resourceType)
	if err != nil || !ok || row.IsReservation() {
		return nil, err
	}
	return []routing.Row{row}, nil
}

func (s *RoutingStore) LookupByTenantPod(ctx context.Context, tenantID, podID, resourceType string) (map[string]routing.Row, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("top_id", "resource_type", "bottom_id", "pod_id", "project_id", "created_at", "updated_at").
		From("resource_routings").
		Where(sb.Equal("project_id", tenantID), sb.Equal("pod_id", podID), sb.NotEqual("bottom_id", ""))
	if resourceType != "" {
		sb.Where(sb.Equal("resource_type", resourceType))
	}

	query, args := sb.BuildWithFlavor(s.db.Flavor)
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]routing.Row{}
	for rows.Next() {
		var r routing.Row
		if err := rows.Scan(&r.TopID, &r.ResourceType, &r.BottomID, &r.PodID, &r.ProjectID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out[r.BottomID] = r
	}
	return out, rows.Err()
}

func (s *RoutingStore) Delete(ctx context.Context, filter routing.Filter) error {
	db := sqlbuilder.NewDeleteBuilder()
	db.DeleteFrom("resource_routings")
	var conds []string
	if filter.TopID != "" {
		conds = append(conds, db.Equal("top_id", filter.TopID))
	}
	if filter.PodID != "" {
		conds = append(conds, db.Equal("pod_id", filter.PodID))
	}
	if filter.ProjectID != "" {
		conds = append(conds, db.Equal("project_id", filter.ProjectID))
	}
	if filter.ResourceType != "" {
		conds = append(conds, db.Equal("resource_type", filter.ResourceType))
	}
	if len(conds) > 0 {
		db.Where(conds...)
	}
	query, args := db.BuildWithFlavor(s.db.Flavor)
	_, err := s.db.Conn.ExecContext(ctx, query, args...)
	return err
}

func (s *RoutingStore) get(ctx context.Context, q execer, topID, resourceType string) (routing.Row, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("top_id", "resource_type", "bottom_id", "pod_id", "project_id", "created_at", "updated_at").
		From("resource_routings").Where(sb.Equal("top_id", topID), sb.Equal("resource_type", resourceType))
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	var r routing.Row
	err := q.QueryRowContext(ctx, query, args...).
		Scan(&r.TopID, &r.ResourceType, &r.BottomID, &r.PodID, &r.ProjectID, &r.CreatedAt, &r.UpdatedAt)
	if err == gosql.ErrNoRows {
		return routing.Row{}, false, nil
	}
	if err != nil {
		return routing.Row{}, false, err
	}
	return r, true, nil
}

func (s *RoutingStore) insert(ctx context.Context, tx *gosql.Tx, row routing.Row) error {
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("resource_routings").Cols("top_id", "resource_type", "bottom_id", "pod_id", "project_id", "created_at", "updated_at").
		Values(row.TopID, row.ResourceType, row.BottomID, row.PodID, row.ProjectID, row.CreatedAt, row.UpdatedAt)
	query, args := ib.BuildWithFlavor(s.db.Flavor)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

var _ routing.Store = (*RoutingStore)(nil)
