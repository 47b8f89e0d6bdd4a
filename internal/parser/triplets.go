package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/kgforge/internal/models"
)

// tupleTrimSet is stripped from both ends of every tuple field. It covers
// ASCII punctuation and the common full-width CJK marks.
const tupleTrimSet = "`~!@#$%^&*()-=+[]\\{}|;':\",./<>?" +
	"·！￥&*（）—【】、「」；‘’：“”，。、《》？"

var parenTuple = regexp.MustCompile(`\((.*?)\)`)

// ErrNotTripleArray is returned when the decoded JSON value is not an array.
var ErrNotTripleArray = errors.New("model output is not a JSON array")

// StripCodeFence removes a Markdown code fence around text. A ```json fence
// wins over a bare ``` fence; only the first fenced block is kept.
func StripCodeFence(text string) string {
	clean := strings.TrimSpace(text)
	if _, after, ok := strings.Cut(clean, "```json"); ok {
		clean, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(clean, "```"); ok {
		clean, _, _ = strings.Cut(after, "```")
	}
	return strings.TrimSpace(clean)
}

// ParseJSONTriples parses model output of the form [["s","p","o"], ...].
//
// Code fences are stripped first. Only the first JSON value is decoded, so
// trailing garbage such as content duplicated by stream artifacts is ignored.
// Items that are not 3-element arrays are skipped; elements are stringified
// and trimmed, and triples with an empty field are dropped.
func ParseJSONTriples(text string) ([]models.Triple, error) {
	clean := StripCodeFence(text)
	if clean == "" {
		return nil, errors.New("empty model output")
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	items, ok := data.([]any)
	if !ok {
		return nil, ErrNotTripleArray
	}

	triples := make([]models.Triple, 0, len(items))
	for _, item := range items {
		parts, ok := item.([]any)
		if !ok || len(parts) != 3 {
			continue
		}
		t := models.Triple{
			Subject:   stringify(parts[0]),
			Predicate: stringify(parts[1]),
			Object:    stringify(parts[2]),
		}
		if !t.Valid() {
			continue
		}
		triples = append(triples, t)
	}
	return triples, nil
}

// stringify renders a decoded JSON element as trimmed text.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return strings.TrimSpace(fmt.Sprint(x))
		}
		return strings.TrimSpace(string(b))
	}
}

// ParseTupleTriples scans free-form "(subject, predicate, object)" lines.
// Every parenthesized group is split on commas; groups with exactly three
// non-empty parts become triples after punctuation is trimmed from each part.
// Extraction stops once limit triples are collected; limit <= 0 means no limit.
func ParseTupleTriples(text string, limit int) []models.Triple {
	var triples []models.Triple
	for line := range strings.SplitSeq(text, "\n") {
		for _, m := range parenTuple.FindAllStringSubmatch(line, -1) {
			parts := splitNonEmpty(m[1])
			if len(parts) != 3 {
				continue
			}
			t := models.Triple{
				Subject:   strings.Trim(parts[0], tupleTrimSet),
				Predicate: strings.Trim(parts[1], tupleTrimSet),
				Object:    strings.Trim(parts[2], tupleTrimSet),
			}
			if !t.Valid() {
				continue
			}
			triples = append(triples, t)
			if limit > 0 && len(triples) >= limit {
				return triples
			}
		}
	}
	return triples
}

func splitNonEmpty(s string) []string {
	var parts []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
