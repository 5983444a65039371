// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sql

import (
	"context"
	gosql "database/sql"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/trio2o/trio2o/pkg/apierror"
	"github.com/trio2o/trio2o/pkg/pod"
)

// PodStore is a pod.Catalog backed by a DB, grounded on the same
// check-then-write transaction shape as pkg/pod's in-memory Catalog but
// executed as SQL statements within a database/sql transaction.
type PodStore struct {
	db *DB
}

// NewPodStore returns a pod.Catalog backed by db. Callers must have run
// Migrate(db) first.
func NewPodStore(db *DB) *PodStore {
	return &PodStore{db: db}
}

func (s *PodStore) ListPods(ctx context.Context) ([]pod.Pod, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("pod_id", "pod_name", "az_name", "dc_name", "pod_az_name", "is_under_maintenance", "create_time").From("pods")
	return s.queryPods(ctx, sb)
}

func (s *PodStore) GetByID(ctx context.Context, podID string) (pod.Pod, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("pod_id", "pod_name", "az_name", "dc_name", "pod_az_name", "is_under_maintenance", "create_time").
		From("pods").Where(sb.Equal("pod_id", podID))
	pods, err := s.queryPods(ctx, sb)
	if err != nil || len(pods) == 0 {
		return pod.Pod{}, false, err
	}
	return pods[0], true, nil
}

func (s *PodStore) GetByName(ctx context.Context, podName string) (pod.Pod, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("pod_id", "pod_name", "az_name", "dc_name", "pod_az_name", "is_under_maintenance", "create_time").
		From("pods").Where(sb.Equal("pod_name", podName))
	pods, err := s.queryPods(ctx, sb)
	if err != nil || len(pods) == 0 {
		return pod.Pod{}, false, err
	}
	return pods[0], true, nil
}

// ListPodsByTenant resolves the AZs tenantID is actively bound to, then
// returns every pod in those AZs — the same two-step join pkg/pod's
// in-memory Catalog performs in one pass over its maps.
func (s *PodStore) ListPodsByTenant(ctx context.Context, tenantID string) ([]pod.Pod, error) {
	bsb := sqlbuilder.NewSelectBuilder()
	bsb.Select("pod_id").From("pod_bindings").Where(bsb.Equal("tenant_id", tenantID), bsb.Equal("is_binding", 1))
	query, args := bsb.BuildWithFlavor(s.db.Flavor)
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var boundPodIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		boundPodIDs = append(boundPodIDs, id)
	}
	rows.Close()
	if len(boundPodIDs) == 0 {
		return nil, nil
	}

	azSet := map[string]bool{}
	for _, id := range boundPodIDs {
		p, ok, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			azSet[p.AZName] = true
		}
	}

	all, err := s.ListPods(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pod.Pod, 0, len(all))
	for _, p := range all {
		if azSet[p.AZName] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *PodStore) ListAffinityTags(ctx context.Context, filter pod.AffinityTagFilter) ([]pod.AffinityTag, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("affinity_tag_id", "pod_id", "tag_key", "tag_value").From("pod_affinity_tags")
	var conds []string
	if filter.AffinityTagID != "" {
		conds = append(conds, sb.Equal("affinity_tag_id", filter.AffinityTagID))
	}
	if filter.PodID != "" {
		conds = append(conds, sb.Equal("pod_id", filter.PodID))
	}
	if filter.Key != "" {
		conds = append(conds, sb.Equal("tag_key", filter.Key))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}

	query, args := sb.BuildWithFlavor(s.db.Flavor)
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []pod.AffinityTag{}
	for rows.Next() {
		var t pod.AffinityTag
		if err := rows.Scan(&t.AffinityTagID, &t.PodID, &t.Key, &t.Value); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PodStore) GetState(ctx context.Context, podID string) (pod.State, bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("pod_id", "count", "vcpus", "vcpus_used", "memory_mb", "memory_mb_used", "local_gb", "local_gb_used",
		"free_ram_mb", "free_disk_gb", "current_workload", "running_vms", "disk_available_least").
		From("pod_states").Where(sb.Equal("pod_id", podID))
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	var st pod.State
	row := s.db.Conn.QueryRowContext(ctx, query, args...)
	err := row.Scan(&st.PodID, &st.Count, &st.VCPUs, &st.VCPUsUsed, &st.MemoryMB, &st.MemoryMBUsed, &st.LocalGB, &st.LocalGBUsed,
		&st.FreeRAMMB, &st.FreeDiskGB, &st.CurrentWorkload, &st.RunningVMs, &st.DiskAvailableLeast)
	if err == gosql.ErrNoRows {
		return pod.State{}, false, nil
	}
	if err != nil {
		return pod.State{}, false, err
	}
	return st, true, nil
}

func (s *PodStore) CreatePod(ctx context.Context, p pod.Pod) error {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if exists, err := s.rowExists(ctx, tx, "pods", "pod_id", p.PodID); err != nil {
		return err
	} else if exists {
		return apierror.New(apierror.Conflict, "pod %s already exists", p.PodID)
	}
	if exists, err := s.rowExists(ctx, tx, "pods", "pod_name", p.PodName); err != nil {
		return err
	} else if exists {
		return apierror.New(apierror.Conflict, "pod name %s already in use", p.PodName)
	}
	if p.AZName == "" {
		sb := sqlbuilder.NewSelectBuilder()
		sb.Select("pod_id").From("pods").Where(sb.Equal("az_name", ""))
		query, args := sb.BuildWithFlavor(s.db.Flavor)
		var existing string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err == nil {
			return apierror.New(apierror.Conflict, "a top pod already exists: %s", existing)
		} else if err != gosql.ErrNoRows {
			return err
		}
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("pods").Cols("pod_id", "pod_name", "az_name", "dc_name", "pod_az_name", "is_under_maintenance", "create_time").
		Values(p.PodID, p.PodName, p.AZName, p.DCName, p.PodAZName, boolToInt(p.IsUnderMaintenance), p.CreateTime)
	query, args := ib.BuildWithFlavor(s.db.Flavor)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PodStore) CreateAffinityTag(ctx context.Context, tag pod.AffinityTag) (pod.AffinityTag, error) {
	if tag.Key == "" || tag.Value == "" || tag.PodID == "" {
		return pod.AffinityTag{}, apierror.New(apierror.InvalidInput, "key, value and pod_id are required")
	}
	if _, ok, err := s.GetByID(ctx, tag.PodID); err != nil {
		return pod.AffinityTag{}, err
	} else if !ok {
		return pod.AffinityTag{}, apierror.New(apierror.PodNotFound, "pod %s not found", tag.PodID)
	}

	if tag.AffinityTagID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return pod.AffinityTag{}, err
		}
		tag.AffinityTagID = id.String()
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("pod_affinity_tags").Cols("affinity_tag_id", "pod_id", "tag_key", "tag_value").
		Values(tag.AffinityTagID, tag.PodID, tag.Key, tag.Value)
	query, args := ib.BuildWithFlavor(s.db.Flavor)
	if _, err := s.db.Conn.ExecContext(ctx, query, args...); err != nil {
		return pod.AffinityTag{}, err
	}
	return tag, nil
}

func (s *PodStore) DeleteAffinityTag(ctx context.Context, affinityTagID string) error {
	db := sqlbuilder.NewDeleteBuilder()
	db.DeleteFrom("pod_affinity_tags").Where(db.Equal("affinity_tag_id", affinityTagID))
	query, args := db.BuildWithFlavor(s.db.Flavor)
	res, err := s.db.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierror.New(apierror.NotFound, "affinity tag %s not found", affinityTagID)
	}
	return nil
}

func (s *PodStore) CreateBinding(ctx context.Context, b pod.Binding) error {
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("pod_bindings").Cols("tenant_id", "pod_id", "is_binding").
		Values(b.TenantID, b.PodID, boolToInt(b.IsBinding))
	query, args := ib.BuildWithFlavor(s.db.Flavor)
	_, err := s.db.Conn.ExecContext(ctx, query, args...)
	return err
}

// ChangeBinding implements the Scheduler's "switch active within az"
// transaction in SQL: deactivate any other active binding for tenantID in
// azName, then activate (or insert) the target, all within one transaction
// so a concurrent refresh never observes two active bindings for the same
// (tenant, az).
func (s *PodStore) ChangeBinding(ctx context.Context, tenantID, azName, podID string) error {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("pb.pod_id").From("pod_bindings pb").JoinWithOption(sqlbuilder.InnerJoin, "pods p", "p.pod_id = pb.pod_id").
		Where(sb.Equal("pb.tenant_id", tenantID), sb.Equal("p.az_name", azName), sb.Equal("pb.is_binding", 1))
	query, args := sb.BuildWithFlavor(s.db.Flavor)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	var active []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		active = append(active, id)
	}
	rows.Close()

	for _, id := range active {
		if id == podID {
			continue
		}
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("pod_bindings").Set(ub.Assign("is_binding", 0)).
			Where(ub.Equal("tenant_id", tenantID), ub.Equal("pod_id", id))
		q, a := ub.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return err
		}
	}

	if exists, err := s.rowExistsWhere(ctx, tx, "pod_bindings", map[string]interface{}{"tenant_id": tenantID, "pod_id": podID}); err != nil {
		return err
	} else if exists {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("pod_bindings").Set(ub.Assign("is_binding", 1)).
			Where(ub.Equal("tenant_id", tenantID), ub.Equal("pod_id", podID))
		q, a := ub.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return err
		}
	} else {
		ib := sqlbuilder.NewInsertBuilder()
		ib.InsertInto("pod_bindings").Cols("tenant_id", "pod_id", "is_binding").Values(tenantID, podID, 1)
		q, a := ib.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PodStore) ListBindingsForTenant(ctx context.Context, tenantID string) ([]pod.Binding, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("tenant_id", "pod_id", "is_binding").From("pod_bindings").Where(sb.Equal("tenant_id", tenantID))
	query, args := sb.BuildWithFlavor(s.db.Flavor)
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []pod.Binding{}
	for rows.Next() {
		var b pod.Binding
		var isBinding int
		if err := rows.Scan(&b.TenantID, &b.PodID, &isBinding); err != nil {
			return nil, err
		}
		b.IsBinding = isBinding != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateState is the PodState upsert, done in a transaction so concurrent
// refreshes of the same pod_id never duplicate or lose an update.
func (s *PodStore) UpdateState(ctx context.Context, st pod.State) error {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if exists, err := s.rowExists(ctx, tx, "pods", "pod_id", st.PodID); err != nil {
		return err
	} else if !exists {
		return apierror.New(apierror.PodNotFound, "pod %s not found", st.PodID)
	}

	exists, err := s.rowExists(ctx, tx, "pod_states", "pod_id", st.PodID)
	if err != nil {
		return err
	}

	if exists {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("pod_states").Set(
			ub.Assign("count", st.Count),
			ub.Assign("vcpus", st.VCPUs),
			ub.Assign("vcpus_used", st.VCPUsUsed),
			ub.Assign("memory_mb", st.MemoryMB),
			ub.Assign("memory_mb_used", st.MemoryMBUsed),
			ub.Assign("local_gb", st.LocalGB),
			ub.Assign("local_gb_used", st.LocalGBUsed),
			ub.Assign("free_ram_mb", st.FreeRAMMB),
			ub.Assign("free_disk_gb", st.FreeDiskGB),
			ub.Assign("current_workload", st.CurrentWorkload),
			ub.Assign("running_vms", st.RunningVMs),
			ub.Assign("disk_available_least", st.DiskAvailableLeast),
		).Where(ub.Equal("pod_id", st.PodID))
		q, a := ub.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return err
		}
	} else {
		ib := sqlbuilder.NewInsertBuilder()
		ib.InsertInto("pod_states").Cols("pod_id", "count", "vcpus", "vcpus_used", "memory_mb", "memory_mb_used",
			"local_gb", "local_gb_used", "free_ram_mb", "free_disk_gb", "current_workload", "running_vms", "disk_available_least").
			Values(st.PodID, st.Count, st.VCPUs, st.VCPUsUsed, st.MemoryMB, st.MemoryMBUsed, st.LocalGB, st.LocalGBUsed,
				st.FreeRAMMB, st.FreeDiskGB, st.CurrentWorkload, st.RunningVMs, st.DiskAvailableLeast)
		q, a := ib.BuildWithFlavor(s.db.Flavor)
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PodStore) queryPods(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]pod.Pod, error) {
	query, args := sb.BuildWithFlavor(s.db.Flavor)
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []pod.Pod{}
	for rows.Next() {
		var p pod.Pod
		var maintenance int
		if err := rows.Scan(&p.PodID, &p.PodName, &p.AZName, &p.DCName, &p.PodAZName, &maintenance, &p.CreateTime); err != nil {
			return nil, err
		}
		p.IsUnderMaintenance = maintenance != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *gosql.Row
}

func (s *PodStore) rowExists(ctx context.Context, tx execer, table, column, value string) (bool, error) {
	return s.rowExistsWhere(ctx, tx, table, map[string]interface{}{column: value})
}

func (s *PodStore) rowExistsWhere(ctx context.Context, tx execer, table string, where map[string]interface{}) (bool, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("1").From(table)
	var conds []string
	for col, val := range where {
		conds = append(conds, sb.Equal(col, val))
	}
	sb.Where(conds...)
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == gosql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ pod.Catalog = (*PodStore)(nil)
var _ pod.Bindings = (*PodStore)(nil)
