// Package memory is the in-process repository used in development and tests.
// It implements every collaborator the engine persists through.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"certflow/internal/certification/models"
	id "certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

type txKey struct{}

// InMemoryStore keeps all records in maps guarded by mu. Values are copied on
// the way in and out so callers never share state with the store.
//
// RunInTx serializes transactional callers behind txMu; there is no rollback,
// so transactional callers do their reads first and make a conditional write
// their first write. A failed read or lost race then leaves nothing behind.
type InMemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	processes    map[id.ProcessID]*models.Process
	candidates   map[id.CandidateID]*models.Candidate
	evaluators   map[id.EvaluatorID]*models.Evaluator
	competencies map[id.CompetencyID]*models.Competency
	evaluations  map[id.ProcessID][]*models.Evaluation
	certificates map[id.CertificateID]*models.Certificate
	documents    map[id.CandidateID]map[string]models.Document
	ledger       []models.NotificationLogEntry
	capabilities map[id.UserID]map[string]struct{}
}

func New() *InMemoryStore {
	return &InMemoryStore{
		processes:    make(map[id.ProcessID]*models.Process),
		candidates:   make(map[id.CandidateID]*models.Candidate),
		evaluators:   make(map[id.EvaluatorID]*models.Evaluator),
		competencies: make(map[id.CompetencyID]*models.Competency),
		evaluations:  make(map[id.ProcessID][]*models.Evaluation),
		certificates: make(map[id.CertificateID]*models.Certificate),
		documents:    make(map[id.CandidateID]map[string]models.Document),
		capabilities: make(map[id.UserID]map[string]struct{}),
	}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

// -----------------------------------------------------------------------------
// Processes
// -----------------------------------------------------------------------------

func (s *InMemoryStore) CreateProcess(_ context.Context, p *models.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processes[p.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.processes {
		if existing.CandidateID == p.CandidateID && !existing.IsTerminal() {
			return sentinel.ErrConflict
		}
	}
	c := p.Clone()
	c.Version = 1
	s.processes[p.ID] = c
	p.Version = 1
	return nil
}

func (s *InMemoryStore) GetProcess(_ context.Context, processID id.ProcessID) (*models.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[processID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryStore) SaveProcess(_ context.Context, p *models.Process, expectedStage models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.processes[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Stage != expectedStage || current.Version != p.Version || current.Quarantined {
		return sentinel.ErrConflict
	}
	c := p.Clone()
	c.Version = current.Version + 1
	s.processes[p.ID] = c
	p.Version = c.Version
	return nil
}

func (s *InMemoryStore) QuarantineProcess(_ context.Context, processID id.ProcessID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[processID]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.ApplyQuarantine(reason, at)
	p.Version++
	return nil
}

func (s *InMemoryStore) FindProcessesNeeding(_ context.Context, q models.ProcessQuery) ([]*models.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Process
	for _, p := range s.processes {
		if q.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) FindActiveProcess(_ context.Context, candidateID id.CandidateID) (*models.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.processes {
		if p.CandidateID == candidateID && !p.IsTerminal() {
			return p.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) CountActiveAssignments(_ context.Context, evaluatorID id.EvaluatorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.processes {
		if p.HasEvaluator() && *p.EvaluatorID == evaluatorID && !p.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Candidates, evaluators, competencies
// -----------------------------------------------------------------------------

func (s *InMemoryStore) GetCandidate(_ context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[candidateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) FindCandidate(_ context.Context, userID id.UserID, competencyID id.CompetencyID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.candidates {
		if c.UserID == userID && c.CompetencyID == competencyID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveCandidate(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.candidates {
		if existing.ID != c.ID && existing.UserID == c.UserID && existing.CompetencyID == c.CompetencyID {
			return sentinel.ErrConflict
		}
	}
	cp := *c
	s.candidates[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetEvaluator(_ context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evaluators[evaluatorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *InMemoryStore) FindEvaluatorByUser(_ context.Context, userID id.UserID) (*models.Evaluator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.evaluators {
		if e.UserID == userID {
			return e.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// LockEvaluator relies on RunInTx for exclusion.
func (s *InMemoryStore) LockEvaluator(ctx context.Context, evaluatorID id.EvaluatorID) (*models.Evaluator, error) {
	return s.GetEvaluator(ctx, evaluatorID)
}

func (s *InMemoryStore) SaveEvaluator(_ context.Context, e *models.Evaluator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluators[e.ID] = e.Clone()
	return nil
}

// ListActive implements the evaluator directory over stored evaluators.
func (s *InMemoryStore) ListActive(_ context.Context, competencyID id.CompetencyID) ([]*models.Evaluator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Evaluator
	for _, e := range s.evaluators {
		if e.Active && e.Covers(competencyID) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) GetCompetency(_ context.Context, competencyID id.CompetencyID) (*models.Competency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competencies[competencyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	cp.RequiredKinds = slices.Clone(c.RequiredKinds)
	return &cp, nil
}

func (s *InMemoryStore) SaveCompetency(_ context.Context, c *models.Competency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.RequiredKinds = slices.Clone(c.RequiredKinds)
	s.competencies[c.ID] = &cp
	return nil
}

// -----------------------------------------------------------------------------
// Evaluations and certificates
// -----------------------------------------------------------------------------

func (s *InMemoryStore) AppendEvaluation(_ context.Context, e *models.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.evaluations[e.ProcessID] = append(s.evaluations[e.ProcessID], &cp)
	return nil
}

func (s *InMemoryStore) ListEvaluations(_ context.Context, processID id.ProcessID) ([]*models.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Evaluation, 0, len(s.evaluations[processID]))
	for _, e := range s.evaluations[processID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) CreateCertificate(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certificates {
		if existing.ProcessID == c.ProcessID {
			return sentinel.ErrConflict
		}
	}
	cp := c.Clone()
	cp.Version = 1
	s.certificates[c.ID] = cp
	c.Version = 1
	return nil
}

func (s *InMemoryStore) GetCertificate(_ context.Context, certificateID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certificates[certificateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) FindCertificateByProcess(_ context.Context, processID id.ProcessID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certificates {
		if c.ProcessID == processID {
			return c.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveCertificate(_ context.Context, c *models.Certificate, expectedStatus models.CertificateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.certificates[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expectedStatus || current.Version != c.Version {
		return sentinel.ErrConflict
	}
	cp := c.Clone()
	cp.Version = current.Version + 1
	s.certificates[c.ID] = cp
	c.Version = cp.Version
	return nil
}

func (s *InMemoryStore) FindCertificates(_ context.Context, q models.CertificateQuery) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Certificate
	for _, c := range s.certificates {
		if q.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Notification ledger
// -----------------------------------------------------------------------------

func (s *InMemoryStore) AppendNotificationLog(_ context.Context, entry models.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, entry)
	return nil
}

func (s *InMemoryStore) ExistsLogEntry(_ context.Context, recipient id.UserID, kind models.NotificationKind, after time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ledger) - 1; i >= 0; i-- {
		e := s.ledger[i]
		if e.Recipient == recipient && e.Kind == kind && e.SentAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

// NotificationLog returns a copy of the ledger in append order.
func (s *InMemoryStore) NotificationLog() []models.NotificationLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ledger)
}

// -----------------------------------------------------------------------------
// Documents
// -----------------------------------------------------------------------------

func (s *InMemoryStore) SubmitDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.documents[doc.CandidateID]
	if !ok {
		docs = make(map[string]models.Document)
		s.documents[doc.CandidateID] = docs
	}
	docs[doc.Kind] = *doc
	return nil
}

func (s *InMemoryStore) IsComplete(_ context.Context, candidateID id.CandidateID, requiredKinds []string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.documents[candidateID]
	for _, kind := range requiredKinds {
		d, ok := docs[kind]
		if !ok || !d.Counts() {
			return false, nil
		}
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

func (s *InMemoryStore) GrantCapability(userID id.UserID, capability string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps, ok := s.capabilities[userID]
	if !ok {
		caps = make(map[string]struct{})
		s.capabilities[userID] = caps
	}
	caps[capability] = struct{}{}
}

func (s *InMemoryStore) HasCapability(_ context.Context, userID id.UserID, capability string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.capabilities[userID][capability]
	return ok, nil
}

func (s *InMemoryStore) ListPrincipalsWithCapability(_ context.Context, capability string) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.UserID
	for userID, caps := range s.capabilities {
		if _, ok := caps[capability]; ok {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
