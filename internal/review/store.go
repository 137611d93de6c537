// Package review holds the records of each session's last upload until the
// user downloads or trims them.
package review

import (
	"sync"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]*pending
	limit    int
}

type pending struct {
	records []entity.ExamRecord
	cls     entity.Classification
}

type Option func(*Store)

// WithSessionLimit caps how many sessions are held. Past the cap an
// arbitrary session is evicted.
func WithSessionLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{sessions: make(map[string]*pending), limit: 1024}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put replaces the session's pending list.
func (s *Store) Put(session string, cls entity.Classification, records []entity.ExamRecord) {
	cp := make([]entity.ExamRecord, len(records))
	copy(cp, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session]; !ok && len(s.sessions) >= s.limit {
		for k := range s.sessions {
			delete(s.sessions, k)
			break
		}
	}
	s.sessions[session] = &pending{records: cp, cls: cls}
}

// Get returns a copy of the session's pending records and their classification.
func (s *Store) Get(session string) ([]entity.ExamRecord, entity.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[session]
	if !ok {
		return []entity.ExamRecord{}, entity.Classification{}
	}
	out := make([]entity.ExamRecord, len(p.records))
	copy(out, p.records)
	return out, p.cls
}

// DeleteLast drops the most recent pending record. It reports false when the
// list is already empty.
func (s *Store) DeleteLast(session string) (entity.ExamRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.sessions[session]
	if !ok || len(p.records) == 0 {
		return entity.ExamRecord{}, false
	}
	last := p.records[len(p.records)-1]
	p.records = p.records[:len(p.records)-1]
	return last, true
}
