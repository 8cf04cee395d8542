package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_ContentPrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  RawHit
		want string
	}{
		{
			name: "text beats content within fields",
			raw: RawHit{
				ID:     "1",
				Fields: map[string]any{"text": "from text", "content": "from content"},
			},
			want: "from text",
		},
		{
			name: "fields beat metadata",
			raw: RawHit{
				ID:       "2",
				Fields:   map[string]any{"content": "fields content"},
				Metadata: map[string]any{"text": "metadata text"},
			},
			want: "fields content",
		},
		{
			name: "metadata used when fields have nothing",
			raw: RawHit{
				ID:       "3",
				Fields:   map[string]any{"irrelevant": "x"},
				Metadata: map[string]any{"excerpt": "metadata excerpt"},
			},
			want: "metadata excerpt",
		},
		{
			name: "empty strings are skipped",
			raw: RawHit{
				ID:     "4",
				Fields: map[string]any{"text": "", "content": "non-empty"},
			},
			want: "non-empty",
		},
		{
			name: "non-string values are skipped",
			raw: RawHit{
				ID:     "5",
				Fields: map[string]any{"text": 42, "content": "real content"},
			},
			want: "real content",
		},
		{
			name: "nothing found yields empty",
			raw:  RawHit{ID: "6"},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.raw).Content)
		})
	}
}

func TestNormalize_TitleFallback(t *testing.T) {
	hit := Normalize(RawHit{ID: "1", Fields: map[string]any{"text": "body"}})
	assert.Equal(t, UntitledDocument, hit.Title)

	hit = Normalize(RawHit{ID: "2", Fields: map[string]any{"name": "Billing FAQ"}})
	assert.Equal(t, "Billing FAQ", hit.Title)

	hit = Normalize(RawHit{ID: "3", Metadata: map[string]any{"source": "kb/cancel.md"}})
	assert.Equal(t, "kb/cancel.md", hit.Title)
}

func TestNormalize_MetadataFallsBackToFields(t *testing.T) {
	hit := Normalize(RawHit{ID: "1", Fields: map[string]any{"text": "body", "url": "https://x"}})
	assert.Equal(t, "https://x", hit.Metadata["url"])
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	hits := NormalizeAll([]RawHit{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.5},
		{ID: "c", Score: 0.7},
	})
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestHit_AsSource(t *testing.T) {
	hit := Hit{
		ID:      "doc-1",
		Score:   0.87,
		Title:   "Cancelling",
		Content: "How to cancel",
		Metadata: map[string]any{
			"file_path":   "kb/cancel.md",
			"url":         "https://help.example.com/cancel",
			"description": "Cancellation guide",
		},
	}

	src := hit.AsSource()
	assert.Equal(t, "doc-1", src.ID)
	assert.Equal(t, "kb/cancel.md", src.FilePath)
	assert.Equal(t, "https://help.example.com/cancel", src.URL)
	assert.Equal(t, "Cancellation guide", src.Description)
}
