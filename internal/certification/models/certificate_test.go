package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certflow/pkg/domain"
)

func TestExpiryDate(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, ExpiryDate(issued, 0))

	exp := ExpiryDate(issued, 365*24*time.Hour)
	require.NotNil(t, exp)
	assert.Equal(t, issued.Add(365*24*time.Hour), *exp)
}

func TestCertificateExpiryIsMonotonic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cand, err := NewCandidate(id.NewUserID(), "welding", 1, now)
	require.NoError(t, err)
	cert := NewCertificate(NewProcess(cand, now), time.Hour, now)

	assert.False(t, cert.IsDue(now.Add(time.Hour)), "expires_at must be strictly before now")
	assert.True(t, cert.IsDue(now.Add(time.Hour+time.Second)))

	later := now.Add(2 * time.Hour)
	require.NoError(t, cert.CanExpire(later))
	cert.ApplyExpiry(later)
	assert.Equal(t, CertificateStatusExpired, cert.Status)
	assert.NoError(t, cert.CheckInvariants())

	assert.ErrorIs(t, cert.CanExpire(later.Add(time.Hour)), ErrCertificateNotActive)
	assert.False(t, cert.IsDue(later.Add(time.Hour)))
}

func TestNonExpiringCertificateIsNeverDue(t *testing.T) {
	now := time.Now()
	cand, err := NewCandidate(id.NewUserID(), "welding", 1, now)
	require.NoError(t, err)
	cert := NewCertificate(NewProcess(cand, now), 0, now)
	assert.Nil(t, cert.ExpiresAt)
	assert.False(t, cert.IsDue(now.Add(100*365*24*time.Hour)))
}
