package models

import "fmt"

// Triple is one (subject, predicate, object) fact.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Valid reports whether all three fields are non-empty.
func (t Triple) Valid() bool {
	return t.Subject != "" && t.Predicate != "" && t.Object != ""
}

func (t Triple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Subject, t.Predicate, t.Object)
}
