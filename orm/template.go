package orm

import "strings"

// Statement templates use placeholder tokens resolved against a schema:
//
//	%t      table name            %t.a   → "tablename a"
//	%c      column list           %c.a   → "a.col1,a.col2"
//	%c=     assignment list       %c.a=  → "a.col1=?,a.col2=?"
//	%c?     one ? per column
//	%pc     primary key (if any) then columns, %pc.a alias-qualified
//	\%      literal %
//
// Expansion is a single left-to-right pass with longest-match token
// recognition, so expanded output is never re-scanned and %c= / %c? are
// matched before the bare %c they structurally contain. Joins use "," with
// no space. The expander never quotes identifiers; that is a dialect
// concern of the query builder, not of fixed statement templates.

// Expand substitutes the recognized tokens in template with fragments
// computed from the schema's table name, primary key and column list.
// The bind arguments pass through unchanged, so call sites can hand the
// pair straight to the database handle.
func (s *Schema) Expand(template string, args ...any) (string, []any) {
	var b strings.Builder
	b.Grow(len(template) + 16*len(s.columns))

	for i := 0; i < len(template); {
		c := template[i]
		if c == '\\' && i+1 < len(template) && template[i+1] == '%' {
			b.WriteByte('%')
			i += 2
			continue
		}
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}

		rest := template[i+1:]
		switch {
		case strings.HasPrefix(rest, "pc"):
			alias, n := parseAlias(rest[2:])
			b.WriteString(s.keyedColumnList(alias))
			i += 3 + n

		case strings.HasPrefix(rest, "c?"):
			b.WriteString(s.placeholderList())
			i += 3

		case strings.HasPrefix(rest, "c"):
			alias, n := parseAlias(rest[1:])
			if strings.HasPrefix(rest[1+n:], "=") {
				b.WriteString(s.assignmentList(alias))
				i += 3 + n
			} else {
				b.WriteString(s.columnList(alias))
				i += 2 + n
			}

		case strings.HasPrefix(rest, "t"):
			alias, n := parseAlias(rest[1:])
			b.WriteString(s.table)
			if alias != "" {
				b.WriteByte(' ')
				b.WriteString(alias)
			}
			i += 2 + n

		default:
			b.WriteByte('%')
			i++
		}
	}

	return b.String(), args
}

// parseAlias consumes an optional ".alias" qualifier. It returns the
// alias and the number of bytes consumed (including the dot), or ("", 0)
// when s does not start with a dot followed by an identifier.
func parseAlias(s string) (string, int) {
	if len(s) < 2 || s[0] != '.' {
		return "", 0
	}
	end := 1
	for end < len(s) && isIdentByte(s[end]) {
		end++
	}
	if end == 1 {
		return "", 0
	}
	return s[1:end], end
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func (s *Schema) columnList(alias string) string {
	return joinColumns(s.columns, alias, "")
}

func (s *Schema) assignmentList(alias string) string {
	return joinColumns(s.columns, alias, "=?")
}

func (s *Schema) placeholderList() string {
	parts := make([]string, len(s.columns))
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ",")
}

func (s *Schema) keyedColumnList(alias string) string {
	cols := s.columns
	if s.pk != "" {
		cols = append([]string{s.pk}, cols...)
	}
	return joinColumns(cols, alias, "")
}

func joinColumns(cols []string, alias, suffix string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		if alias != "" {
			parts[i] = alias + "." + c + suffix
		} else {
			parts[i] = c + suffix
		}
	}
	return strings.Join(parts, ",")
}
