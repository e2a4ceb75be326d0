package models

import (
	"time"

	id "certflow/pkg/domain"
)

// ProcessQuery selects non-quarantined processes for a sweep job. Nil fields
// do not filter.
type ProcessQuery struct {
	Stage          Stage
	StartedBefore  *time.Time
	AssignedBefore *time.Time
	NotEvaluated   bool
	Limit          int
}

func (q ProcessQuery) Matches(p *Process) bool {
	if p.Quarantined {
		return false
	}
	if q.Stage != "" && p.Stage != q.Stage {
		return false
	}
	if q.StartedBefore != nil && !p.StartedAt.Before(*q.StartedBefore) {
		return false
	}
	if q.AssignedBefore != nil && (p.AssignedAt == nil || !p.AssignedAt.Before(*q.AssignedBefore)) {
		return false
	}
	if q.NotEvaluated && p.EvaluatedAt != nil {
		return false
	}
	return true
}

// CertificateQuery selects certificates by status and expiry. ExpiresBefore
// is exclusive; ExpiresFrom and ExpiresTo are inclusive. Any expiry filter
// excludes non-expiring certificates.
type CertificateQuery struct {
	Status        CertificateStatus
	HolderUserID  *id.UserID
	ExpiresBefore *time.Time
	ExpiresFrom   *time.Time
	ExpiresTo     *time.Time
	Limit         int
}

func (q CertificateQuery) Matches(c *Certificate) bool {
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	if q.HolderUserID != nil && c.HolderUserID != *q.HolderUserID {
		return false
	}
	hasExpiryFilter := q.ExpiresBefore != nil || q.ExpiresFrom != nil || q.ExpiresTo != nil
	if hasExpiryFilter && c.ExpiresAt == nil {
		return false
	}
	if q.ExpiresBefore != nil && !c.ExpiresAt.Before(*q.ExpiresBefore) {
		return false
	}
	if q.ExpiresFrom != nil && c.ExpiresAt.Before(*q.ExpiresFrom) {
		return false
	}
	if q.ExpiresTo != nil && c.ExpiresAt.After(*q.ExpiresTo) {
		return false
	}
	return true
}
