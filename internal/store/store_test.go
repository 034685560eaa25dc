package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestUpsertStory(t *testing.T) {
	st, mock := newMockStore(t)

	publishedAt := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	story := news.Story{
		Publication: "hs",
		StoryID:     "abc-123",
		Href:        "https://example.com/abc-123",
		PublishedAt: publishedAt,
		Content: []news.ContentBlock{
			{Kind: news.BlockHeadline, Text: "Otsikko"},
			{Kind: news.BlockText, Text: "Leipäteksti."},
		},
	}

	query := regexp.QuoteMeta(`
INSERT INTO stories (
  story_publication,
  story_story_id,
  story_href,
  story_published_at,
  story_updated_at,
  story_content
)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (story_publication, story_story_id) DO UPDATE SET
  story_href = EXCLUDED.story_href,
  story_published_at = EXCLUDED.story_published_at,
  story_updated_at = EXCLUDED.story_updated_at,
  story_content = EXCLUDED.story_content;
`)
	mock.ExpectExec(query).
		WithArgs("hs", "abc-123", "https://example.com/abc-123", publishedAt, nil,
			[]byte(`[{"type":"headline","text":"Otsikko"},{"type":"text","text":"Leipäteksti."}]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertStory(context.Background(), story); err != nil {
		t.Fatalf("UpsertStory: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListStoryIDsWithoutChunks(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT story_story_id\s+FROM stories\s+WHERE\s+story_publication = \$1 AND\s+NOT EXISTS`).
		WithArgs("hs", 2).
		WillReturnRows(sqlmock.NewRows([]string{"story_story_id"}).AddRow("a1").AddRow("a2"))

	ids, err := st.ListStoryIDsWithoutChunks(context.Background(), "hs", 2)
	if err != nil {
		t.Fatalf("ListStoryIDsWithoutChunks: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindStoryByID(t *testing.T) {
	st, mock := newMockStore(t)

	publishedAt := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT story_id, story_publication, story_story_id, story_href, story_published_at, story_updated_at, story_content\s+FROM stories`).
		WithArgs("hs", "a1").
		WillReturnRows(sqlmock.NewRows([]string{
			"story_id", "story_publication", "story_story_id", "story_href", "story_published_at", "story_updated_at", "story_content",
		}).AddRow("17", "hs", "a1", "https://example.com/a1", publishedAt, nil,
			[]byte(`[{"type":"headline","text":"Otsikko"}]`)))

	story, err := st.FindStoryByID(context.Background(), "hs", "a1")
	if err != nil {
		t.Fatalf("FindStoryByID: %v", err)
	}
	if story.ID != "17" || story.Publication != "hs" || story.StoryID != "a1" {
		t.Fatalf("unexpected story: %+v", story)
	}
	if story.UpdatedAt != nil {
		t.Fatalf("expected nil UpdatedAt")
	}
	if len(story.Content) != 1 || story.Content[0].Kind != news.BlockHeadline {
		t.Fatalf("unexpected content: %+v", story.Content)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertChunk(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO story_chunks`).
		WithArgs("hs", "a1", 2, 0, []byte(`[{"type":"text","text":"eka pätkä"}]`), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	chunk := news.Chunk{
		Publication: "hs",
		StoryID:     "a1",
		Version:     2,
		Index:       0,
		Content:     []news.ContentBlock{{Kind: news.BlockText, Text: "eka pätkä"}},
	}
	if err := st.InsertChunk(context.Background(), chunk); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertEmbedding(t *testing.T) {
	st, mock := newMockStore(t)

	query := regexp.QuoteMeta(`
UPDATE story_chunks
SET story_chunk_embedding = $1::vector
WHERE story_chunk_id = $2;
`)
	mock.ExpectExec(query).
		WithArgs("[0.1,0.2]", "41").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.InsertEmbedding(context.Background(), "41", []float32{0.1, 0.2}); err != nil {
		t.Fatalf("InsertEmbedding: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertEmbeddingEmptyVector(t *testing.T) {
	st, _ := newMockStore(t)
	if err := st.InsertEmbedding(context.Background(), "41", nil); err == nil {
		t.Fatalf("expected error for empty vector")
	}
}

func TestListChunks(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{
		"story_chunk_id", "story_publication", "story_story_id", "story_chunk_version",
		"story_chunk_index", "story_chunk_content", "story_chunk_embedding",
	}
	mock.ExpectQuery(`SELECT story_chunk_id, .*\s+FROM story_chunks\s+JOIN stories USING \(story_id\)`).
		WithArgs("hs", "a1", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("41", "hs", "a1", 2, 0, []byte(`[{"type":"text","text":"eka"}]`), "[0.25,0.5]").
			AddRow("42", "hs", "a1", 2, 1, []byte(`[{"type":"text","text":"toka"}]`), nil))

	chunks, err := st.ListChunks(context.Background(), "hs", "a1", 2)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("unexpected indices: %+v", chunks)
	}
	if len(chunks[0].Embedding) != 2 || chunks[0].Embedding[1] != 0.5 {
		t.Fatalf("unexpected embedding: %v", chunks[0].Embedding)
	}
	if chunks[1].Embedding != nil {
		t.Fatalf("expected nil embedding for chunk without one")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchChunks(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT story_chunk_id, 1 - \(story_chunk_embedding <=> \$1::vector\) AS similarity`).
		WithArgs("[0.1,0.2]", 0.78, 8).
		WillReturnRows(sqlmock.NewRows([]string{"story_chunk_id", "similarity"}).
			AddRow("41", 0.93).
			AddRow("42", 0.81))

	matches, err := st.SearchChunks(context.Background(), []float32{0.1, 0.2}, 0.78, 8)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(matches) != 2 || matches[0].ChunkID != "41" || matches[0].Similarity != 0.93 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindChunkByIDNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{
		"story_chunk_id", "story_publication", "story_story_id", "story_chunk_version",
		"story_chunk_index", "story_chunk_content", "story_chunk_embedding",
	}
	mock.ExpectQuery(`SELECT story_chunk_id, .*\s+FROM story_chunks`).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows(cols))

	if _, err := st.FindChunkByID(context.Background(), "404"); err == nil {
		t.Fatalf("expected error for missing chunk")
	}
}
