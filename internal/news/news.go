package news

import (
	"fmt"
	"strings"
	"time"
)

// BlockKind enumerates the closed set of content block variants a story is
// made of. Rendering is total over this set; an unknown kind is a bug.
type BlockKind string

const (
	BlockHeadline BlockKind = "headline"
	BlockHeading  BlockKind = "heading"
	BlockText     BlockKind = "text"
)

// ContentBlock is one unit of a story's content. Block order is reading
// order and is preserved through chunking and context assembly.
type ContentBlock struct {
	Kind BlockKind `json:"type"`
	Text string    `json:"text"`
}

// Story is one ingested article. (Publication, StoryID) is the natural key;
// ID is the storage-assigned surrogate.
type Story struct {
	ID          string         `json:"id"`
	Publication string         `json:"publication"`
	StoryID     string         `json:"storyId"`
	Href        string         `json:"href"`
	Content     []ContentBlock `json:"content"`
	PublishedAt time.Time      `json:"publishedAt"`
	UpdatedAt   *time.Time     `json:"updatedAt"`
}

// StoryRef is the lightweight identifier a content source listing returns;
// fetching the full story is a separate per-item call.
type StoryRef struct {
	ID string `json:"id"`
}

// Chunk is a word-budgeted contiguous slice of a story's content, the unit
// of embedding and retrieval. For a fixed (publication, storyId, version)
// the indices are contiguous from 0 and the chunk contents reconstruct the
// story content exactly. Embedding stays nil until the embedder has run.
type Chunk struct {
	ID          string         `json:"id"`
	Publication string         `json:"publication"`
	StoryID     string         `json:"storyId"`
	Version     int            `json:"version"`
	Index       int            `json:"index"`
	Content     []ContentBlock `json:"content"`
	Embedding   []float32      `json:"embedding"`
}

// ChunkMatch is a similarity-search hit against the chunk index.
type ChunkMatch struct {
	ChunkID    string
	Similarity float64
}

// WordCount sums the space-split token counts of every block. The split is
// on single spaces with no normalization: repeated spaces and empty strings
// still produce tokens. Chunking and context budgets both depend on this
// exact rule.
func WordCount(blocks []ContentBlock) int {
	count := 0
	for _, block := range blocks {
		count += len(strings.Split(block.Text, " "))
	}
	return count
}

// Markdown renders blocks to the flattened text form shared by the embedder
// and the answer context: headlines as "#", headings as "##", text verbatim,
// with a blank line between blocks.
func Markdown(blocks []ContentBlock) string {
	lines := make([]string, len(blocks))
	for i, block := range blocks {
		lines[i] = block.markdown()
	}
	return strings.Join(lines, "\n\n")
}

func (b ContentBlock) markdown() string {
	switch b.Kind {
	case BlockHeadline:
		return "# " + b.Text
	case BlockHeading:
		return "## " + b.Text
	case BlockText:
		return b.Text
	}
	panic(fmt.Sprintf("unknown content block kind %q", b.Kind))
}

// Headline returns the text of the story's first headline block, or an
// empty string when the story has none.
func (s Story) Headline() string {
	for _, block := range s.Content {
		if block.Kind == BlockHeadline {
			return block.Text
		}
	}
	return ""
}
