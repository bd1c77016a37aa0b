package database

import (
	"strconv"
	"strings"
)

// Placeholder is a SQL bind-parameter style.
type Placeholder int

const (
	// Question is the "?" style used by SQLite.
	Question Placeholder = iota

	// Dollar is the "$1, $2" style used by PostgreSQL.
	Dollar
)

// PlaceholderFor returns the placeholder style for a driver name.
func PlaceholderFor(driver string) Placeholder {
	if driver == DriverPostgres {
		return Dollar
	}
	return Question
}

// Rebind rewrites a query written with "?" placeholders into p's style.
// Question marks inside single-quoted literals are left alone.
func (p Placeholder) Rebind(query string) string {
	if p == Question {
		return query
	}

	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(query) + 8) //nolint:mnd // room for a few multi-digit params
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
