package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// EmbeddingDimensions is the expected length of the vectors stored in the
// pgvector embedding column. Must match the migration schema.
const EmbeddingDimensions = 1536

// Store is the durable keyed storage for stories, chunks and embeddings.
// All pipeline stages communicate exclusively through it.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// UpsertStory inserts the story or, when its natural key already exists,
// refreshes the stored attributes and content.
func (s *Store) UpsertStory(ctx context.Context, story news.Story) error {
	content, err := json.Marshal(story.Content)
	if err != nil {
		return fmt.Errorf("marshal story content: %w", err)
	}
	var updatedAt interface{}
	if story.UpdatedAt != nil {
		updatedAt = *story.UpdatedAt
	}
	_, err = s.DB.ExecContext(ctx, `
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
`, story.Publication, story.StoryID, story.Href, story.PublishedAt, updatedAt, content)
	return err
}

// ListStoryIDs returns every source-assigned story identifier stored for the
// publication.
func (s *Store) ListStoryIDs(ctx context.Context, publication string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_story_id
FROM stories
WHERE story_publication = $1
`, publication)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStoryIDsWithoutChunks returns the story identifiers under the
// publication that have no chunk rows at the given version. Presence of any
// chunk at the version means the story is already chunked for it.
func (s *Store) ListStoryIDsWithoutChunks(ctx context.Context, publication string, version int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_story_id
FROM stories
WHERE
  story_publication = $1 AND
  NOT EXISTS (
    SELECT 1
    FROM story_chunks
    WHERE
      story_chunks.story_id = stories.story_id AND
      story_chunk_version = $2
  )
`, publication, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindStoryByID returns the story identified by its natural key.
func (s *Store) FindStoryByID(ctx context.Context, publication, storyID string) (news.Story, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT story_id, story_publication, story_story_id, story_href, story_published_at, story_updated_at, story_content
FROM stories
WHERE
  story_publication = $1 AND
  story_story_id = $2
`, publication, storyID)
	var (
		story     news.Story
		updatedAt sql.NullTime
		content   []byte
	)
	if err := row.Scan(&story.ID, &story.Publication, &story.StoryID, &story.Href, &story.PublishedAt, &updatedAt, &content); err != nil {
		return news.Story{}, fmt.Errorf("find story %q/%q: %w", publication, storyID, err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		story.UpdatedAt = &t
	}
	if err := json.Unmarshal(content, &story.Content); err != nil {
		return news.Story{}, fmt.Errorf("unmarshal story content: %w", err)
	}
	return story, nil
}

// InsertChunk persists one chunk of a story's content. The parent story row
// is resolved from the chunk's natural key.
func (s *Store) InsertChunk(ctx context.Context, chunk news.Chunk) error {
	content, err := json.Marshal(chunk.Content)
	if err != nil {
		return fmt.Errorf("marshal chunk content: %w", err)
	}
	var embedding interface{}
	if len(chunk.Embedding) > 0 {
		literal, err := encodeVectorLiteral(chunk.Embedding)
		if err != nil {
			return err
		}
		embedding = literal
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO story_chunks (
  story_id,
  story_chunk_version,
  story_chunk_index,
  story_chunk_content,
  story_chunk_embedding
)
VALUES ((SELECT story_id FROM stories WHERE story_publication = $1 AND story_story_id = $2), $3, $4, $5, $6::vector);
`, chunk.Publication, chunk.StoryID, chunk.Version, chunk.Index, content, embedding)
	return err
}

// InsertEmbedding writes the computed vector onto the chunk. The pipeline
// calls this exactly once per chunk; already-embedded chunks are skipped
// upstream.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	literal, err := encodeVectorLiteral(vector)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
UPDATE story_chunks
SET story_chunk_embedding = $1::vector
WHERE story_chunk_id = $2;
`, literal, chunkID)
	return err
}

// ListChunks returns the chunks of a story at a version, ordered by index.
func (s *Store) ListChunks(ctx context.Context, publication, storyID string, version int) ([]news.Chunk, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_chunk_id, story_publication, story_story_id, story_chunk_version, story_chunk_index, story_chunk_content, story_chunk_embedding
FROM story_chunks
  JOIN stories USING (story_id)
WHERE
  story_publication = $1 AND
  story_story_id = $2 AND
  story_chunk_version = $3
ORDER BY story_chunk_index ASC
`, publication, storyID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []news.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// FindChunkByID returns the chunk identified by its surrogate key.
func (s *Store) FindChunkByID(ctx context.Context, chunkID string) (news.Chunk, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_chunk_id, story_publication, story_story_id, story_chunk_version, story_chunk_index, story_chunk_content, story_chunk_embedding
FROM story_chunks
  JOIN stories USING (story_id)
WHERE story_chunk_id = $1
`, chunkID)
	if err != nil {
		return news.Chunk{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return news.Chunk{}, err
		}
		return news.Chunk{}, fmt.Errorf("find chunk %q: %w", chunkID, sql.ErrNoRows)
	}
	return scanChunk(rows)
}

// SearchChunks ranks embedded chunks by cosine similarity to the query
// vector, descending, keeping only hits at or above the threshold.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, threshold float64, count int) ([]news.ChunkMatch, error) {
	literal, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT story_chunk_id, 1 - (story_chunk_embedding <=> $1::vector) AS similarity
FROM story_chunks
WHERE
  story_chunk_embedding IS NOT NULL AND
  1 - (story_chunk_embedding <=> $1::vector) >= $2
ORDER BY story_chunk_embedding <=> $1::vector ASC
LIMIT $3
`, literal, threshold, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []news.ChunkMatch
	for rows.Next() {
		var match news.ChunkMatch
		if err := rows.Scan(&match.ChunkID, &match.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func scanChunk(rows *sql.Rows) (news.Chunk, error) {
	var (
		chunk     news.Chunk
		content   []byte
		embedding sql.NullString
	)
	if err := rows.Scan(&chunk.ID, &chunk.Publication, &chunk.StoryID, &chunk.Version, &chunk.Index, &content, &embedding); err != nil {
		return news.Chunk{}, err
	}
	if err := json.Unmarshal(content, &chunk.Content); err != nil {
		return news.Chunk{}, fmt.Errorf("unmarshal chunk content: %w", err)
	}
	if embedding.Valid {
		vec, err := decodeVectorLiteral(embedding.String)
		if err != nil {
			return news.Chunk{}, err
		}
		chunk.Embedding = vec
	}
	return chunk, nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
