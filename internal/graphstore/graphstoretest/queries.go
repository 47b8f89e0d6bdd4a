package graphstoretest

import (
	"fmt"

	"github.com/raphaelgruber/kgforge/internal/graphstore"
	"github.com/raphaelgruber/kgforge/internal/models"
)

// CountRelation counts the edges matching t; the column is "count".
func CountRelation(t models.Triple) string {
	return fmt.Sprintf(
		"MATCH (a:Entity {name: '%s'})-[r:Relation {type: '%s'}]->(b:Entity {name: '%s'}) RETURN count(r) AS count",
		graphstore.Escape(t.Subject), graphstore.NormalizePredicate(t.Predicate), graphstore.Escape(t.Object),
	)
}

// CountEntity counts the nodes named name; the column is "count".
func CountEntity(name string) string {
	return fmt.Sprintf("MATCH (n:Entity {name: '%s'}) RETURN count(n) AS count", graphstore.Escape(name))
}

// Count reads the "count" column of the first row.
func Count(rows []graphstore.Row) int64 {
	if len(rows) == 0 {
		return 0
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
