package database

import (
	"fmt"
	"strings"
)

// Filter accumulates AND-ed WHERE conditions with numbered placeholders.
type Filter struct {
	conds []string
	args  []interface{}
}

func (f *Filter) next(v interface{}) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

// Eq adds "column = value".
func (f *Filter) Eq(column string, v interface{}) *Filter {
	f.conds = append(f.conds, column+" = "+f.next(v))
	return f
}

// Contains adds a case-sensitive substring match, escaping LIKE wildcards.
func (f *Filter) Contains(column, substr string) *Filter {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(substr)
	f.conds = append(f.conds, column+" LIKE "+f.next("%"+escaped+"%"))
	return f
}

// Where renders the accumulated conditions, or "" when there are none.
func (f *Filter) Where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// Args returns the placeholder values for the WHERE clause only.
func (f *Filter) Args() []interface{} {
	return append([]interface{}(nil), f.args...)
}

// Page renders ORDER BY / LIMIT / OFFSET after the WHERE clause and returns
// the full argument list. orderBy must be a trusted column expression.
func (f *Filter) Page(orderBy, direction string, limit, offset int) (string, []interface{}) {
	if !strings.EqualFold(direction, "asc") {
		direction = "DESC"
	} else {
		direction = "ASC"
	}
	args := f.Args()
	args = append(args, limit, offset)
	clause := fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", orderBy, direction, len(args)-1, len(args))
	return clause, args
}
