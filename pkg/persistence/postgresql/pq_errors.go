package postgresql

import (
	"errors"

	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, which the instance repository maps to the already-exists
// sentinel.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}

	return false
}
