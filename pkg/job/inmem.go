// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type resourceKey struct {
	jobType    string
	resourceID string
}

// inmemStore is a process-local Store. All operations run under a single
// mutex: Register's compare-and-set is a plain "is there already a Running
// row" check performed atomically with the insert, the same guarantee a
// real backend expresses as a unique constraint on (type, resource_id,
// status=Running).
type inmemStore struct {
	mu   sync.Mutex
	rows map[resourceKey][]Job
}

// NewInMemory returns a Store backed by process memory.
func NewInMemory() Store {
	return &inmemStore{rows: map[resourceKey][]Job{}}
}

func (s *inmemStore) InsertNew(_ context.Context, jobType, resourceID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewRandom()
	if err != nil {
		return Job{}, err
	}
	row := Job{ID: id.String(), Type: jobType, ResourceID: resourceID, Timestamp: time.Now(), Status: New}
	k := resourceKey{jobType, resourceID}
	s.rows[k] = append(s.rows[k], row)
	return row, nil
}

func (s *inmemStore) Register(_ context.Context, jobType, resourceID, extraID string) (Job, bool, Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := resourceKey{jobType, resourceID}
	for _, row := range s.rows[k] {
		if row.Status == Running {
			return Job{}, false, row, nil
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Job{}, false, Job{}, err
	}
	row := Job{ID: id.String(), Type: jobType, ResourceID: resourceID, ExtraID: extraID, Timestamp: time.Now(), Status: Running}
	s.rows[k] = append(s.rows[k], row)
	return row, true, Job{}, nil
}

func (s *inmemStore) MarkSuccess(_ context.Context, jobType, resourceID, extraID string, tNew time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(jobType, resourceID, extraID, Success, tNew)
}

func (s *inmemStore) MarkFail(_ context.Context, jobType, resourceID, extraID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(jobType, resourceID, extraID, Fail, time.Time{})
}

func (s *inmemStore) ForceFail(_ context.Context, jobType, resourceID, extraID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(jobType, resourceID, extraID, Fail, time.Time{})
}

// transition rewrites the Running row matching extraID into status,
// stamping it with carryTimestamp when set (Success carries t_new so
// LatestSuccessAt can compare against the marker that requested it).
func (s *inmemStore) transition(jobType, resourceID, extraID string, status Status, carryTimestamp time.Time) error {
	k := resourceKey{jobType, resourceID}
	rows := s.rows[k]
	for i := range rows {
		if rows[i].ExtraID == extraID && rows[i].Status == Running {
			rows[i].Status = status
			if !carryTimestamp.IsZero() {
				rows[i].Timestamp = carryTimestamp
			} else {
				rows[i].Timestamp = time.Now()
			}
		}
	}
	return nil
}

func (s *inmemStore) LatestSuccessAt(_ context.Context, jobType, resourceID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	for _, row := range s.rows[resourceKey{jobType, resourceID}] {
		if row.Status == Success && row.Timestamp.After(latest) {
			latest = row.Timestamp
		}
	}
	return latest, nil
}

func (s *inmemStore) LatestByResource(_ context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.rows))
	for _, rows := range s.rows {
		latest := rows[0]
		for _, row := range rows[1:] {
			// On a timestamp tie the later-inserted row wins: a Success
			// carries its New marker's timestamp and must still read as
			// the latest row.
			if !row.Timestamp.Before(latest.Timestamp) {
				latest = row
			}
		}
		out = append(out, latest)
	}
	return out, nil
}
