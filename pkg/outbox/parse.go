package outbox

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identifierPart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseIdentifier accepts "table" or "schema.table". Parts are limited to
// plain SQL identifiers so the result can be sanitized into queries.
func ParseIdentifier(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("empty table name")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("table %q: want table or schema.table", s)
	}
	ident := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !identifierPart.MatchString(p) {
			return nil, invalidConfig("table %q: bad part %q", s, p)
		}
		ident = append(ident, p)
	}
	return ident, nil
}

// ParseIdentifierList parses a comma-separated list such as
// OUTBOX_RELAY_TABLES. Empty items are skipped and a table named twice is
// kept once, so one table never gets two relays.
func ParseIdentifierList(s string) ([]pgx.Identifier, error) {
	var out []pgx.Identifier
	seen := make(map[string]struct{})
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		ident, err := ParseIdentifier(item)
		if err != nil {
			return nil, err
		}
		label := TableLabel(ident)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, ident)
	}
	return out, nil
}
