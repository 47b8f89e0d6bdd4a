package parser

import (
	"testing"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONTriples(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []models.Triple
		wantErr bool
	}{
		{
			name:  "plain array",
			input: `[["Tencent","founded_in","1998"],["Tencent","located_in","Shenzhen"]]`,
			want: []models.Triple{
				{Subject: "Tencent", Predicate: "founded_in", Object: "1998"},
				{Subject: "Tencent", Predicate: "located_in", Object: "Shenzhen"},
			},
		},
		{
			name:  "json fence with trailing garbage",
			input: "```json\n[[\"A\",\"rel\",\"B\"]]\n```\n[[\"A\",\"rel\",\"B\"]] and more",
			want:  []models.Triple{{Subject: "A", Predicate: "rel", Object: "B"}},
		},
		{
			name:  "garbage after first value inside fence",
			input: "```json\n[[\"A\",\"rel\",\"B\"]][[\"A\",\"rel\"\n```",
			want:  []models.Triple{{Subject: "A", Predicate: "rel", Object: "B"}},
		},
		{
			name:  "bare fence",
			input: "Here you go:\n```\n[[\"x\", \"y\", \"z\"]]\n```",
			want:  []models.Triple{{Subject: "x", Predicate: "y", Object: "z"}},
		},
		{
			name:  "elements stringified and trimmed",
			input: `[["  Tencent ", "founded_in", 1998], ["flag", "is", true]]`,
			want: []models.Triple{
				{Subject: "Tencent", Predicate: "founded_in", Object: "1998"},
				{Subject: "flag", Predicate: "is", Object: "true"},
			},
		},
		{
			name:  "wrong arity and non-list items skipped",
			input: `[["a","b"], "loose", ["a","b","c","d"], {"s":1}, ["s","p","o"]]`,
			want:  []models.Triple{{Subject: "s", Predicate: "p", Object: "o"}},
		},
		{
			name:  "empty field dropped",
			input: `[["", "p", "o"], [null, "p", "o"], ["s", "p", "o"]]`,
			want:  []models.Triple{{Subject: "s", Predicate: "p", Object: "o"}},
		},
		{
			name:    "not json at all",
			input:   "not json at all",
			wantErr: true,
		},
		{
			name:    "object instead of array",
			input:   `{"triples": []}`,
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONTriples(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1]`, StripCodeFence("```json\n[1]\n```"))
	assert.Equal(t, `[2]`, StripCodeFence("```\n[2]\n```"))
	assert.Equal(t, `[3]`, StripCodeFence("  [3]  "))
	// an unterminated fence keeps everything after the opener
	assert.Equal(t, `[4]`, StripCodeFence("```json [4]"))
}

func TestParseTupleTriples(t *testing.T) {
	text := `Triples:
(Tencent, founded_in, 1998)
("Tencent", "located_in", "Shenzhen.")
(腾讯公司, 创始人, 马化腾。)
(only, two)
(a, , b)
(x, y, z) (u, v, w)
no tuples here`

	got := ParseTupleTriples(text, 0)
	want := []models.Triple{
		{Subject: "Tencent", Predicate: "founded_in", Object: "1998"},
		{Subject: "Tencent", Predicate: "located_in", Object: "Shenzhen"},
		{Subject: "腾讯公司", Predicate: "创始人", Object: "马化腾"},
		{Subject: "x", Predicate: "y", Object: "z"},
		{Subject: "u", Predicate: "v", Object: "w"},
	}
	assert.Equal(t, want, got)
}

func TestParseTupleTriplesLimit(t *testing.T) {
	text := "(a, b, c)\n(d, e, f)\n(g, h, i)"
	got := ParseTupleTriples(text, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[1].Subject)
}

func TestParseTupleTriplesPunctuationOnly(t *testing.T) {
	// fields made only of punctuation collapse to empty and are dropped
	assert.Empty(t, ParseTupleTriples("(..., p, o)", 0))
	assert.Empty(t, ParseTupleTriples("not json at all", 0))
}
