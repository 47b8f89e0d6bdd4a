package parser

import "testing"

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantTitle string
		wantBody  string
		wantFM    string
	}{
		{
			name:      "front matter title",
			content:   "---\ntitle: Companies\ntags: [a, b]\n---\n# Ignored\n\nTencent was founded in 1998.",
			wantTitle: "Companies",
			wantBody:  "# Ignored\n\nTencent was founded in 1998.",
			wantFM:    "Companies",
		},
		{
			name:      "h1 title",
			content:   "# Shenzhen\n\nA city.",
			wantTitle: "Shenzhen",
			wantBody:  "# Shenzhen\n\nA city.",
		},
		{
			name:     "invalid yaml ignored",
			content:  "---\n: : :\n---\nbody",
			wantBody: "body",
		},
		{
			name:      "crlf normalized",
			content:   "---\r\nname: x\r\n---\r\nline",
			wantBody:  "line",
			wantTitle: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseMarkdown(tt.content)
			if doc.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if doc.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", doc.Body, tt.wantBody)
			}
			if tt.wantFM != "" && doc.Frontmatter["title"] != tt.wantFM {
				t.Errorf("Frontmatter[title] = %v, want %q", doc.Frontmatter["title"], tt.wantFM)
			}
		})
	}
}
