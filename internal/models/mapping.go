package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RelationRule maps one subject column and one object column to a fixed
// predicate.
type RelationRule struct {
	SubjectColumn string `json:"subject_column"`
	Predicate     string `json:"predicate"`
	ObjectColumn  string `json:"object_column"`
}

// ColumnMapping configures deterministic triple extraction from tables.
type ColumnMapping struct {
	EntityColumns   []string       `json:"entity_columns"`
	RelationConfigs []RelationRule `json:"relation_configs"`
}

// ParseColumnMapping decodes the JSON text sent with an upload. Empty input
// yields a nil mapping.
func ParseColumnMapping(raw string) (*ColumnMapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var m ColumnMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode column mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every rule names both columns and a predicate.
func (m ColumnMapping) Validate() error {
	if len(m.RelationConfigs) == 0 {
		return errors.New("column mapping has no relation_configs")
	}
	for i, r := range m.RelationConfigs {
		if strings.TrimSpace(r.SubjectColumn) == "" || strings.TrimSpace(r.ObjectColumn) == "" {
			return fmt.Errorf("relation_configs[%d]: subject_column and object_column are required", i)
		}
		if strings.TrimSpace(r.Predicate) == "" {
			return fmt.Errorf("relation_configs[%d]: predicate is required", i)
		}
	}
	return nil
}

// Clone returns a deep copy of m.
func (m ColumnMapping) Clone() ColumnMapping {
	return ColumnMapping{
		EntityColumns:   append([]string(nil), m.EntityColumns...),
		RelationConfigs: append([]RelationRule(nil), m.RelationConfigs...),
	}
}
