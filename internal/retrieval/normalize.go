package retrieval

// Hit is the normalized document record shared by the pipeline and the
// streaming multiplexer.
type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source is the display-oriented shape carried by the synthetic
// augmentation event at the head of a response stream.
type Source struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Score       float64        `json:"score"`
	Content     string         `json:"content,omitempty"`
	FilePath    string         `json:"filePath,omitempty"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UntitledDocument is the title fallback when no title field is present.
const UntitledDocument = "Untitled"

var (
	contentPrecedence = []string{"text", "content", "excerpt"}
	titlePrecedence   = []string{"title", "name", "source"}
)

// Normalize flattens a raw backend hit into a Hit. Content is extracted
// by trying field names in a fixed precedence order, first in the
// primary fields container and then inside the metadata container; the
// first non-empty string wins, else empty.
func Normalize(raw RawHit) Hit {
	meta := raw.Metadata
	if meta == nil {
		meta = raw.Fields
	}
	return Hit{
		ID:       raw.ID,
		Score:    raw.Score,
		Title:    firstString(titlePrecedence, UntitledDocument, raw.Fields, raw.Metadata),
		Content:  firstString(contentPrecedence, "", raw.Fields, raw.Metadata),
		Metadata: meta,
	}
}

// NormalizeAll normalizes a slice of raw hits, preserving order.
func NormalizeAll(raw []RawHit) []Hit {
	hits := make([]Hit, len(raw))
	for i, r := range raw {
		hits[i] = Normalize(r)
	}
	return hits
}

// AsSource maps a normalized hit into the display shape, lifting the
// optional presentation fields out of the metadata container.
func (h Hit) AsSource() Source {
	return Source{
		ID:          h.ID,
		Title:       h.Title,
		Score:       h.Score,
		Content:     h.Content,
		FilePath:    stringField(h.Metadata, "file_path"),
		URL:         stringField(h.Metadata, "url"),
		Description: stringField(h.Metadata, "description"),
		Metadata:    h.Metadata,
	}
}

// firstString returns the first non-empty string found by trying each
// name in order within each container in order, or fallback.
func firstString(names []string, fallback string, containers ...map[string]any) string {
	for _, container := range containers {
		if container == nil {
			continue
		}
		for _, name := range names {
			if s, ok := container[name].(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
