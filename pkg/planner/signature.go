package planner

import (
	"fmt"
	"sort"
	"strings"

	"mdbms/pkg/sql"
)

// Signature computes the plan cache key for q: sorted column lists,
// whitespace-normalized predicate text, and preserved join order (§4.E
// stage 5's "canonical signature of the Query").
func Signature(q *sql.Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|", q.Kind, q.Table)

	cols := append([]string(nil), q.Columns...)
	sort.Strings(cols)
	b.WriteString(strings.Join(cols, ","))
	b.WriteByte('|')

	for _, j := range q.Joins {
		fmt.Fprintf(&b, "%d:%s:%s=%s;", j.Type, j.Table, j.LeftColumn, j.RightColumn)
	}
	b.WriteByte('|')

	b.WriteString(normalizeCondition(q))
	b.WriteByte('|')

	group := append([]string(nil), q.GroupBy...)
	sort.Strings(group)
	b.WriteString(strings.Join(group, ","))
	b.WriteByte('|')

	for _, o := range q.OrderBy {
		fmt.Fprintf(&b, "%s:%v;", o.Column, o.Desc)
	}
	return b.String()
}

func normalizeCondition(q *sql.Query) string {
	if q.Where == nil {
		return ""
	}
	var parts []string
	for _, conj := range q.Where.Disjuncts {
		var clauses []string
		for _, cmp := range conj {
			clauses = append(clauses, fmt.Sprintf("%v%s%v", cmp.Left, cmp.Op, cmp.Right))
		}
		sort.Strings(clauses)
		parts = append(parts, strings.Join(clauses, "&"))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}
