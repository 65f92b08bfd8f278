package repository

import (
	"fmt"
	"strings"

	"github.com/septivank/meter-dashboard/internal/meter"
)

const meterColumns = `id, meter_id, consumer_id, meter_id_norm, consumer_id_norm, value, image_ref, created_at, updated_at`

// dialect captures the few SQL differences between the supported stores
type dialect struct {
	placeholder func(n int) string
	like        string
}

var (
	postgresDialect = dialect{
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		like:        "ILIKE",
	}
	sqliteDialect = dialect{
		placeholder: func(int) string { return "?" },
		like:        "LIKE",
	}
)

// statement accumulates SQL text and positional arguments
type statement struct {
	d    dialect
	sb   strings.Builder
	args []any
}

func (s *statement) write(sql string) {
	s.sb.WriteString(sql)
}

func (s *statement) arg(v any) string {
	s.args = append(s.args, v)
	return s.d.placeholder(len(s.args))
}

func (s *statement) String() string {
	return s.sb.String()
}

// escapeLike makes text match literally inside a LIKE pattern using '\' as escape.
func escapeLike(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(text)
}

// where filters on a literal substring of either identifier and on an exact consumer ID.
// Filter text is compared case-insensitively but never trimmed, so padding is part of the match.
func (s *statement) where(q meter.Query) {
	var conds []string

	if search := strings.ToUpper(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		conds = append(conds, fmt.Sprintf(`(meter_id %[1]s %[2]s ESCAPE '\' OR consumer_id %[1]s %[3]s ESCAPE '\')`,
			s.d.like, s.arg(pattern), s.arg(pattern)))
	}
	if consumer := strings.ToUpper(q.ConsumerExact); consumer != "" {
		conds = append(conds, "consumer_id_norm = "+s.arg(consumer))
	}

	if len(conds) > 0 {
		s.write(" WHERE " + strings.Join(conds, " AND "))
	}
}

// buildCountQuery returns the pre-pagination count for the query filters.
func buildCountQuery(d dialect, q meter.Query) (string, []any) {
	s := &statement{d: d}
	s.write("SELECT COUNT(*) FROM meters")
	s.where(q)
	return s.String(), s.args
}

// buildPageQuery returns the filtered, sorted page of meters.
func buildPageQuery(d dialect, q meter.Query) (string, []any) {
	s := &statement{d: d}
	s.write("SELECT " + meterColumns + " FROM meters")
	s.where(q)
	dir := q.Direction.SQL()
	s.write(fmt.Sprintf(" ORDER BY %s %s, id %s", q.Sort.Column(), dir, dir))
	s.write(" LIMIT " + s.arg(q.PageSize) + " OFFSET " + s.arg(q.Offset()))
	return s.String(), s.args
}

// buildConflictQuery returns at most two rows colliding on either canonical identifier.
func buildConflictQuery(d dialect, meterIDNorm, consumerIDNorm string) (string, []any) {
	s := &statement{d: d}
	s.write("SELECT " + meterColumns + " FROM meters WHERE meter_id_norm = " + s.arg(meterIDNorm) +
		" OR consumer_id_norm = " + s.arg(consumerIDNorm) + " LIMIT 2")
	return s.String(), s.args
}
