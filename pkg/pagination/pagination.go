package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxLimit caps an explicit limit. An absent limit means no limit at all.
const MaxLimit = 1000

// Params holds optional pagination parameters extracted from a request.
// Limit 0 means unbounded.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset= from the request. Both are
// optional; malformed or negative values are an error.
func FromContext(c echo.Context) (Params, error) {
	var p Params

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("limit must be a non-negative integer")
		}
		p.Limit = n
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("offset must be a non-negative integer")
		}
		p.Offset = n
	}

	return p, nil
}

// SQL returns the LIMIT and OFFSET clause for SQL queries, or "" when
// neither applies.
func (p Params) SQL() string {
	switch {
	case p.Limit > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
	case p.Offset > 0:
		return fmt.Sprintf("OFFSET %d", p.Offset)
	default:
		return ""
	}
}
