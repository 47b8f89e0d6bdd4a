package models

import "time"

// VariableType is the input kind of a prompt template variable.
type VariableType string

const (
	VariableText   VariableType = "text"
	VariableSelect VariableType = "select"
)

// TemplateVariable is a typed placeholder inside a prompt template.
type TemplateVariable struct {
	Name    string       `json:"name"`
	Type    VariableType `json:"type"`
	Label   string       `json:"label,omitempty"`
	Options []string     `json:"options,omitempty"` // only for select
	Default string       `json:"default,omitempty"`
}

// PromptTemplate is a named, reusable extraction instruction.
// System templates are shared and immutable; user templates belong to UserID.
type PromptTemplate struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   *string            `json:"description,omitempty"`
	PromptContent string             `json:"prompt_content"`
	Variables     []TemplateVariable `json:"variables"`
	IsSystem      bool               `json:"is_system"`
	UserID        string             `json:"user_id,omitempty"`

	CreatedAt time.Time `json:"gmt_created"`
	UpdatedAt time.Time `json:"gmt_modified"`
}

// TemplateInput is the input structure for creating templates.
type TemplateInput struct {
	Name          string             `json:"name"`
	Description   *string            `json:"description,omitempty"`
	PromptContent string             `json:"prompt_content"`
	Variables     []TemplateVariable `json:"variables,omitempty"`
}

// TemplateUpdate is the input structure for updating templates.
type TemplateUpdate struct {
	Name          *string             `json:"name,omitempty"`
	Description   *string             `json:"description,omitempty"`
	PromptContent *string             `json:"prompt_content,omitempty"`
	Variables     *[]TemplateVariable `json:"variables,omitempty"`
}

// DefaultTemplates returns the built-in system templates.
func DefaultTemplates() []TemplateInput {
	return []TemplateInput{
		{
			Name:        "Triple Extraction",
			Description: Ptr("Extract entity-relation triples as a JSON array"),
			PromptContent: `You are a knowledge graph extraction expert. Extract entities and their relations from the given text and return the triples as a JSON array.
Each triple has the form: ["entity1", "relation", "entity2"]
Return only the JSON code block without any additional explanation.`,
		},
		{
			Name:        "Domain Triple Extraction",
			Description: Ptr("Extract triples focused on a selected domain"),
			PromptContent: `You are a knowledge graph extraction expert for the {domain} domain.
Extract only facts relevant to {domain} from the given text. Prefer these relation types: {relations}.
Return a JSON array of triples of the form ["entity1", "relation", "entity2"] and nothing else.`,
			Variables: []TemplateVariable{
				{
					Name:    "domain",
					Type:    VariableSelect,
					Label:   "Domain",
					Options: []string{"general", "finance", "medical", "technology", "legal"},
					Default: "general",
				},
				{
					Name:    "relations",
					Type:    VariableText,
					Label:   "Preferred relation types",
					Default: "located_in, founded_in, part_of, works_for",
				},
			},
		},
		{
			Name:        "Parenthesized Triples",
			Description: Ptr("Legacy format: one (subject, predicate, object) per line"),
			PromptContent: `Some text is provided below. Given the text, extract up to {max_knowledge} knowledge triplets in the form of (subject, predicate, object).
Write one triplet per line and avoid stopwords.`,
			Variables: []TemplateVariable{
				{Name: "max_knowledge", Type: VariableText, Label: "Maximum triplets", Default: "10"},
			},
		},
	}
}
