package repository

import (
	"strings"
	"testing"

	"github.com/septivank/meter-dashboard/internal/meter"
)

func TestBuildPageQuery_NoFilters(t *testing.T) {
	q := meter.Query{Sort: meter.SortCreatedAt, Direction: meter.Descending, Page: 1, PageSize: 9}

	sql, args := buildPageQuery(postgresDialect, q)

	if strings.Contains(sql, "WHERE") {
		t.Errorf("Expected no WHERE clause, got: %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2") {
		t.Errorf("Unexpected ordering/pagination: %s", sql)
	}
	if len(args) != 2 || args[0] != 9 || args[1] != 9 {
		t.Errorf("Expected args [9 9], got %v", args)
	}
}

func TestBuildPageQuery_SearchAndConsumer(t *testing.T) {
	q := meter.Query{
		Search:        " mtr ",
		ConsumerExact: "csm-1001",
		Sort:          meter.SortValue,
		Direction:     meter.Ascending,
		PageSize:      6,
	}

	sql, args := buildPageQuery(postgresDialect, q)

	if !strings.Contains(sql, `(meter_id ILIKE $1 ESCAPE '\' OR consumer_id ILIKE $2 ESCAPE '\')`) {
		t.Errorf("Expected search clause, got: %s", sql)
	}
	if !strings.Contains(sql, " AND consumer_id_norm = $3") {
		t.Errorf("Expected consumer clause ANDed with search, got: %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY value ASC, id ASC LIMIT $4 OFFSET $5") {
		t.Errorf("Unexpected ordering: %s", sql)
	}
	if args[0] != "% MTR %" || args[1] != "% MTR %" || args[2] != "CSM-1001" {
		t.Errorf("Unexpected filter args: %v", args)
	}
}

func TestBuildCountQuery_SQLitePlaceholders(t *testing.T) {
	q := meter.Query{Search: "a", ConsumerExact: "b", PageSize: 5}

	sql, args := buildCountQuery(sqliteDialect, q)

	if !strings.HasPrefix(sql, "SELECT COUNT(*) FROM meters WHERE") {
		t.Errorf("Unexpected count query: %s", sql)
	}
	if strings.Contains(sql, "$") || strings.Count(sql, "?") != 3 {
		t.Errorf("Expected three '?' placeholders, got: %s", sql)
	}
	if !strings.Contains(sql, "meter_id LIKE ?") {
		t.Errorf("Expected LIKE for sqlite, got: %s", sql)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 args, got %d", len(args))
	}
}

func TestEscapeLike(t *testing.T) {
	result := escapeLike(`50%_off\`)
	if result != `50\%\_off\\` {
		t.Errorf("Unexpected escape result: %s", result)
	}
}

func TestBuildConflictQuery(t *testing.T) {
	sql, args := buildConflictQuery(postgresDialect, "MTR1", "CSM1")
	if !strings.Contains(sql, "meter_id_norm = $1 OR consumer_id_norm = $2 LIMIT 2") {
		t.Errorf("Unexpected conflict query: %s", sql)
	}
	if len(args) != 2 || args[0] != "MTR1" || args[1] != "CSM1" {
		t.Errorf("Unexpected args: %v", args)
	}
}
