package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

func pqCode(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// IsUniqueViolation checks if the error is a unique constraint violation.
// An empty constraintName matches any unique constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	pqErr, ok := pqCode(err)
	if !ok || pqErr.Code != codeUniqueViolation {
		return false
	}
	if constraintName != "" {
		return strings.Contains(pqErr.Detail, constraintName) ||
			strings.Contains(pqErr.Constraint, constraintName)
	}
	return true
}

// IsForeignKeyViolation checks if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	pqErr, ok := pqCode(err)
	return ok && pqErr.Code == codeForeignKeyViolation
}

// IsCheckViolation checks if the error is a check constraint violation
func IsCheckViolation(err error) bool {
	pqErr, ok := pqCode(err)
	return ok && pqErr.Code == codeCheckViolation
}
