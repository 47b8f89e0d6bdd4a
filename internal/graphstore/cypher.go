package graphstore

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/kgforge/internal/models"
)

var escaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Escape makes s safe inside a single-quoted Cypher string literal.
func Escape(s string) string {
	return escaper.Replace(s)
}

// NormalizePredicate escapes p and replaces spaces so it can be used as a
// relationship type value.
func NormalizePredicate(p string) string {
	return strings.ReplaceAll(Escape(p), " ", "_")
}

// MergeEntity creates the entity node named name unless it exists.
func MergeEntity(name string) string {
	return fmt.Sprintf("MERGE (n:Entity {name: '%s'})", Escape(name))
}

// MergeRelation links two existing entity nodes unless the edge exists.
func MergeRelation(t models.Triple) string {
	return fmt.Sprintf(
		"MATCH (a:Entity {name: '%s'}), (b:Entity {name: '%s'}) MERGE (a)-[r:Relation {type: '%s'}]->(b)",
		Escape(t.Subject), Escape(t.Object), NormalizePredicate(t.Predicate),
	)
}

// UpsertTriple returns the three idempotent statements that import t.
func UpsertTriple(t models.Triple) []string {
	return []string{
		MergeEntity(t.Subject),
		MergeEntity(t.Object),
		MergeRelation(t),
	}
}
