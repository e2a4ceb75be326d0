package domain

import (
	"strings"

	dErrors "certflow/pkg/domain-errors"
)

const maxCompetencyIDLength = 64

// CompetencyID is the catalog code of a certifiable competency (e.g.
// "welding-tig" or a legacy numeric code such as "12"). Codes are compared
// as whole values; there is no prefix or substring matching.
type CompetencyID string

// ParseCompetencyID normalizes to lower case and accepts only
// [a-z0-9._-] so codes are safe to use as set members and storage keys.
func ParseCompetencyID(s string) (CompetencyID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "competency id is required")
	}
	if len(s) > maxCompetencyIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "competency id is too long")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid competency id")
		}
	}
	return CompetencyID(s), nil
}

func (c CompetencyID) String() string { return string(c) }

func (c CompetencyID) IsNil() bool { return c == "" }
