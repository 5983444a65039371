// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package sql

import (
	"context"
	gosql "database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/trio2o/trio2o/pkg/job"
)

// JobStore is a job.Store backed by a DB. Register's compare-and-set runs
// inside a transaction: check for an existing Running row, insert iff none
// exists, the SQL equivalent of the in-memory store's single-mutex
// critical section.
type JobStore struct {
	db *DB
}

// NewJobStore returns a job.Store backed by db.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) InsertNew(ctx context.Context, jobType, resourceID string) (job.Job, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return job.Job{}, err
	}
	row := job.Job{ID: id.String(), Type: jobType, ResourceID: resourceID, Timestamp: time.Now(), Status: job.New}
	if err := s.insert(ctx, s.db.Conn, row); err != nil {
		return job.Job{}, err
	}
	return row, nil
}

func (s *JobStore) Register(ctx context.Context, jobType, resourceID, extraID string) (job.Job, bool, job.Job, error) {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return job.Job{}, false, job.Job{}, err
	}
	defer tx.Rollback()

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "job_type", "resource_id", "extra_id", "ts", "status").From("jobs").
		Where(sb.Equal("job_type", jobType), sb.Equal("resource_id", resourceID), sb.Equal("status", string(job.Running)))
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	var existing job.Job
	err = tx.QueryRowContext(ctx, query, args...).
		Scan(&existing.ID, &existing.Type, &existing.ResourceID, &existing.ExtraID, &existing.Timestamp, &existing.Status)
	if err == nil {
		return job.Job{}, false, existing, tx.Commit()
	}
	if err != gosql.ErrNoRows {
		return job.Job{}, false, job.Job{}, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return job.Job{}, false, job.Job{}, err
	}
	row := job.Job{ID: id.String(), Type: jobType, ResourceID: resourceID, ExtraID: extraID, Timestamp: time.Now(), Status: job.Running}
	if err := s.insert(ctx, tx, row); err != nil {
		return job.Job{}, false, job.Job{}, err
	}
	return row, true, job.Job{}, tx.Commit()
}

func (s *JobStore) MarkSuccess(ctx context.Context, jobType, resourceID, extraID string, tNew time.Time) error {
	return s.transition(ctx, jobType, resourceID, extraID, job.Success, tNew)
}

func (s *JobStore) MarkFail(ctx context.Context, jobType, resourceID, extraID string) error {
	return s.transition(ctx, jobType, resourceID, extraID, job.Fail, time.Time{})
}

func (s *JobStore) ForceFail(ctx context.Context, jobType, resourceID, extraID string) error {
	return s.transition(ctx, jobType, resourceID, extraID, job.Fail, time.Time{})
}

// transition rewrites the Running row matching extraID, stamping
// carryTimestamp when set so MarkSuccess can carry t_new forward for
// LatestSuccessAt to compare against.
func (s *JobStore) transition(ctx context.Context, jobType, resourceID, extraID string, status job.Status, carryTimestamp time.Time) error {
	ts := time.Now()
	if !carryTimestamp.IsZero() {
		ts = carryTimestamp
	}

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("jobs").Set(ub.Assign("status", string(status)), ub.Assign("ts", ts)).
		Where(ub.Equal("job_type", jobType), ub.Equal("resource_id", resourceID), ub.Equal("extra_id", extraID), ub.Equal("status", string(job.Running)))
	query, args := ub.BuildWithFlavor(s.db.Flavor)
	_, err := s.db.Conn.ExecContext(ctx, query, args...)
	return err
}

func (s *JobStore) LatestSuccessAt(ctx context.Context, jobType, resourceID string) (time.Time, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("ts").From("jobs").
		Where(sb.Equal("job_type", jobType), sb.Equal("resource_id", resourceID), sb.Equal("status", string(job.Success))).
		OrderBy("ts").Desc().Limit(1)
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	var ts time.Time
	err := s.db.Conn.QueryRowContext(ctx, query, args...).Scan(&ts)
	if err == gosql.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, err
}

// LatestByResource returns the most recent row for every (type,
// resource_id) pair with at least one row. database/sql has no portable
// "DISTINCT ON" across all four dialects this package targets, so the
// selection is done in Go over every row ordered oldest-first, the same
// single-pass-keep-latest approach the in-memory store uses.
func (s *JobStore) LatestByResource(ctx context.Context) ([]job.Job, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "job_type", "resource_id", "extra_id", "ts", "status").From("jobs").OrderBy("ts").Asc()
	query, args := sb.BuildWithFlavor(s.db.Flavor)

	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type key struct{ jobType, resourceID string }
	latest := map[key]job.Job{}
	for rows.Next() {
		var j job.Job
		if err := rows.Scan(&j.ID, &j.Type, &j.ResourceID, &j.ExtraID, &j.Timestamp, &j.Status); err != nil {
			return nil, err
		}
		latest[key{j.Type, j.ResourceID}] = j // later rows overwrite earlier ones
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]job.Job, 0, len(latest))
	for _, j := range latest {
		out = append(out, j)
	}
	return out, nil
}

func (s *JobStore) insert(ctx context.Context, ex interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (gosql.Result, error)
}, row job.Job) error {
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("jobs").Cols("id", "job_type", "resource_id", "extra_id", "ts", "status").
		Values(row.ID, row.Type, row.ResourceID, row.ExtraID, row.Timestamp, string(row.Status))
	query, args := ib.BuildWithFlavor(s.db.Flavor)
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

var _ job.Store = (*JobStore)(nil)
