package models

import (
	"time"

	id "certflow/pkg/domain"
)

type DocumentStatus string

const (
	DocumentStatusSubmitted DocumentStatus = "submitted"
	DocumentStatusApproved  DocumentStatus = "approved"
	DocumentStatusRejected  DocumentStatus = "rejected"
)

// Document is the metadata of one uploaded file. Content lives in the
// document store; only presence and review status matter here.
type Document struct {
	CandidateID id.CandidateID `json:"candidate_id"`
	Kind        string         `json:"kind"`
	Status      DocumentStatus `json:"status"`
	UploadedAt  time.Time      `json:"uploaded_at"`
}

// Counts reports whether the document satisfies its required kind.
// Rejected documents must be replaced.
func (d *Document) Counts() bool {
	return d.Status != DocumentStatusRejected
}
