package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCertificateQueryBounds(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }
	cert := func(exp *time.Time) *Certificate {
		return &Certificate{Status: CertificateStatusActive, ExpiresAt: exp}
	}

	before := CertificateQuery{Status: CertificateStatusActive, ExpiresBefore: &now}
	assert.True(t, before.Matches(cert(at(-time.Second))))
	assert.False(t, before.Matches(cert(at(0))), "exclusive upper bound")
	assert.False(t, before.Matches(cert(nil)), "non-expiring never matches expiry filters")

	window := CertificateQuery{Status: CertificateStatusActive, ExpiresFrom: at(29 * 24 * time.Hour), ExpiresTo: at(30 * 24 * time.Hour)}
	assert.True(t, window.Matches(cert(at(29*24*time.Hour))))
	assert.True(t, window.Matches(cert(at(30*24*time.Hour))))
	assert.False(t, window.Matches(cert(at(30*24*time.Hour+time.Second))))
}

func TestProcessQueryExcludesQuarantined(t *testing.T) {
	p := &Process{Stage: StageRequested, StartedAt: time.Now().Add(-time.Hour)}
	q := ProcessQuery{Stage: StageRequested}
	assert.True(t, q.Matches(p))
	p.Quarantined = true
	assert.False(t, q.Matches(p))
}
