package domain

import (
	"github.com/google/uuid"

	dErrors "certflow/pkg/domain-errors"
)

// Typed identifiers keep processes, evaluators and certificates from being
// mixed up at compile time. All of them are UUIDs on the wire.
type (
	UserID        uuid.UUID
	CandidateID   uuid.UUID
	ProcessID     uuid.UUID
	EvaluatorID   uuid.UUID
	CertificateID uuid.UUID
	EvaluationID  uuid.UUID
)

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewCandidateID() CandidateID     { return CandidateID(uuid.New()) }
func NewProcessID() ProcessID         { return ProcessID(uuid.New()) }
func NewEvaluatorID() EvaluatorID     { return EvaluatorID(uuid.New()) }
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }
func NewEvaluationID() EvaluationID   { return EvaluationID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id CandidateID) String() string   { return uuid.UUID(id).String() }
func (id ProcessID) String() string     { return uuid.UUID(id).String() }
func (id EvaluatorID) String() string   { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id EvaluationID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id CandidateID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ProcessID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EvaluatorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EvaluationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the trust-boundary rule shared by every ID type:
// the value must be a well-formed, non-nil UUID.
func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseCandidateID(s string) (CandidateID, error) {
	u, err := parseUUID("candidate id", s)
	return CandidateID(u), err
}

func ParseProcessID(s string) (ProcessID, error) {
	u, err := parseUUID("process id", s)
	return ProcessID(u), err
}

func ParseEvaluatorID(s string) (EvaluatorID, error) {
	u, err := parseUUID("evaluator id", s)
	return EvaluatorID(u), err
}

func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID("certificate id", s)
	return CertificateID(u), err
}

func ParseEvaluationID(s string) (EvaluationID, error) {
	u, err := parseUUID("evaluation id", s)
	return EvaluationID(u), err
}
