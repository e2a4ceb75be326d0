package models

import (
	"time"

	id "certflow/pkg/domain"
)

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusExpired CertificateStatus = "expired"
)

// Certificate is issued once per approved Process.
//
// Invariants:
//   - Status moves active -> expired only, never back
//   - ExpiresAt == nil means the certificate never expires
//   - ExpiredAt is set iff Status is expired
type Certificate struct {
	ID           id.CertificateID  `json:"id"`
	ProcessID    id.ProcessID      `json:"process_id"`
	CandidateID  id.CandidateID    `json:"candidate_id"`
	HolderUserID id.UserID         `json:"holder_user_id"`
	CompetencyID id.CompetencyID   `json:"competency_id"`
	Level        int               `json:"level"`
	Status       CertificateStatus `json:"status"`
	IssuedAt     time.Time         `json:"issued_at"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	ExpiredAt    *time.Time        `json:"expired_at,omitempty"`
	Version      int64             `json:"version"`
}

// ExpiryDate returns issuedAt + validity, or nil for a non-expiring period.
func ExpiryDate(issuedAt time.Time, validity time.Duration) *time.Time {
	if validity <= 0 {
		return nil
	}
	t := issuedAt.Add(validity)
	return &t
}

func NewCertificate(p *Process, validity time.Duration, now time.Time) *Certificate {
	return &Certificate{
		ID:           id.NewCertificateID(),
		ProcessID:    p.ID,
		CandidateID:  p.CandidateID,
		HolderUserID: p.CandidateUserID,
		CompetencyID: p.CompetencyID,
		Level:        p.Level,
		Status:       CertificateStatusActive,
		IssuedAt:     now,
		ExpiresAt:    ExpiryDate(now, validity),
	}
}

// IsDue reports whether the certificate should be expired at now.
func (c *Certificate) IsDue(now time.Time) bool {
	return c.Status == CertificateStatusActive && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

func (c *Certificate) CanExpire(now time.Time) error {
	if c.Status != CertificateStatusActive {
		return ErrCertificateNotActive
	}
	if !c.IsDue(now) {
		return ErrInvalidStage
	}
	return nil
}

// ApplyExpiry flips the certificate to expired. Call CanExpire first.
func (c *Certificate) ApplyExpiry(now time.Time) {
	at := now
	c.Status = CertificateStatusExpired
	c.ExpiredAt = &at
}

func (c *Certificate) CheckInvariants() error {
	switch c.Status {
	case CertificateStatusActive:
		if c.ExpiredAt != nil {
			return &InvariantViolation{Entity: "certificate", ID: c.ID.String(), Reason: "active certificate has expired_at"}
		}
	case CertificateStatusExpired:
		if c.ExpiredAt == nil {
			return &InvariantViolation{Entity: "certificate", ID: c.ID.String(), Reason: "expired certificate without expired_at"}
		}
	default:
		return &InvariantViolation{Entity: "certificate", ID: c.ID.String(), Reason: "unknown status " + string(c.Status)}
	}
	return nil
}

func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ExpiresAt = cloneTime(c.ExpiresAt)
	cp.ExpiredAt = cloneTime(c.ExpiredAt)
	return &cp
}
