package moderation

import (
	"sync"
	"time"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
)

type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportResolving ReportStatus = "resolving"
	ReportResolved  ReportStatus = "resolved"
)

type ReportRecord struct {
	ID         string
	Key        ReportKey
	ReporterID int64
	CreatedAt  time.Time
	Status     ReportStatus
	Outcome    Outcome
	ResolverID int64
	ResolvedAt time.Time
	// Notices are the admin messages hosting the resolution buttons.
	Notices []MessageRef
}

func (r ReportRecord) TargetMessage() MessageRef {
	return r.Key.Message()
}

func (r ReportRecord) clone() ReportRecord {
	r.Notices = append([]MessageRef(nil), r.Notices...)
	return r
}

// reportStore keeps report records in memory. The Pending -> Resolving claim
// is the only mutual exclusion point of a resolution.
type reportStore struct {
	mu       sync.Mutex
	records  map[ReportKey]*ReportRecord
	byNotice map[MessageRef]ReportKey
}

func newReportStore() *reportStore {
	return &reportStore{
		records:  map[ReportKey]*ReportRecord{},
		byNotice: map[MessageRef]ReportKey{},
	}
}

// create stores rec unless an unresolved record with the same key exists,
// in which case the existing one is returned with created == false.
func (s *reportStore) create(rec ReportRecord) (ReportRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok {
		if existing.Status != ReportResolved {
			return existing.clone(), false
		}
		s.dropNoticesLocked(existing)
	}
	rec.Status = ReportPending
	rec.Notices = nil
	s.records[rec.Key] = &rec
	return rec.clone(), true
}

func (s *reportStore) attachNotice(key ReportKey, notice MessageRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	if _, ok := s.byNotice[notice]; ok {
		return nil
	}
	rec.Notices = append(rec.Notices, notice)
	s.byNotice[notice] = key
	return nil
}

func (s *reportStore) get(key ReportKey) (ReportRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ReportRecord{}, false
	}
	return rec.clone(), true
}

func (s *reportStore) keyByNotice(notice MessageRef) (ReportKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byNotice[notice]
	return key, ok
}

func (s *reportStore) claim(key ReportKey) (ReportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ReportRecord{}, apperrors.ErrNotFound
	}
	if rec.Status != ReportPending {
		return rec.clone(), apperrors.ErrStaleResolution
	}
	rec.Status = ReportResolving
	return rec.clone(), nil
}

func (s *reportStore) release(key ReportKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && rec.Status == ReportResolving {
		rec.Status = ReportPending
	}
}

func (s *reportStore) complete(key ReportKey, outcome Outcome, resolverID int64, at time.Time) (ReportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ReportRecord{}, apperrors.ErrNotFound
	}
	if rec.Status != ReportResolving {
		return rec.clone(), apperrors.ErrStaleResolution
	}
	rec.Status = ReportResolved
	rec.Outcome = outcome
	rec.ResolverID = resolverID
	rec.ResolvedAt = at
	return rec.clone(), nil
}

func (s *reportStore) discard(key ReportKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		s.dropNoticesLocked(rec)
		delete(s.records, key)
	}
}

// purgeResolved drops tombstones resolved before the cutoff.
func (s *reportStore) purgeResolved(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, rec := range s.records {
		if rec.Status == ReportResolved && rec.ResolvedAt.Before(before) {
			s.dropNoticesLocked(rec)
			delete(s.records, key)
			purged++
		}
	}
	return purged
}

func (s *reportStore) dropNoticesLocked(rec *ReportRecord) {
	for _, notice := range rec.Notices {
		if key, ok := s.byNotice[notice]; ok && key == rec.Key {
			delete(s.byNotice, notice)
		}
	}
}
