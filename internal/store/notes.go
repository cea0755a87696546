package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
)

// Note is a free-text memory owned by a user. The embedding is optional; a
// note without one is invisible to semantic search but still listable.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteMatch is a search hit with its cosine similarity to the query.
type NoteMatch struct {
	Note       *Note   `json:"note"`
	Similarity float64 `json:"similarity"`
}

// CreateNote inserts a note. Pass a nil embedding when the embedding provider
// is unavailable; the note is stored without one.
func (s *Store) CreateNote(userID, content string, embedding []float64) (*Note, error) {
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "required"}
	}
	now := utc(time.Now())
	n := &Note{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var embBytes []byte
	if len(embedding) > 0 {
		var err error
		embBytes, err = json.Marshal(embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
	}

	res, err := s.db.Exec(
		`INSERT INTO notes (id, user_id, content, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Content, embBytes, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}

	if len(embedding) > 0 && s.vecAvailable {
		rowid, err := res.LastInsertId()
		if err == nil {
			s.indexNoteVec(rowid, n.ID, embedding)
		}
	}
	return n, nil
}

// GetNote fetches a note by ID within the user's tenant scope.
func (s *Store) GetNote(userID, id string) (*Note, error) {
	return scanNote(s.db.QueryRow(
		`SELECT id, user_id, content, embedding, created_at, updated_at
		 FROM notes WHERE id = ? AND user_id = ?`, id, userID))
}

// ListNotes returns the user's notes, newest first.
func (s *Store) ListNotes(userID string) ([]*Note, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, content, embedding, created_at, updated_at
		 FROM notes WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNoteRows(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpdateNote replaces a note's content and embedding.
func (s *Store) UpdateNote(userID, id, content string, embedding []float64) (*Note, error) {
	n, err := s.GetNote(userID, id)
	if err != nil {
		return nil, err
	}
	n.Content = content
	n.Embedding = embedding
	n.UpdatedAt = utc(time.Now())

	var embBytes []byte
	if len(embedding) > 0 {
		embBytes, err = json.Marshal(embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
	}
	_, err = s.db.Exec(
		`UPDATE notes SET content = ?, embedding = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		n.Content, embBytes, n.UpdatedAt, n.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}

	if s.vecAvailable {
		var rowid int64
		if err := s.db.QueryRow(`SELECT rowid FROM notes WHERE id = ?`, n.ID).Scan(&rowid); err == nil {
			s.db.Exec(`DELETE FROM note_vec WHERE rowid = ?`, rowid)
			if len(embedding) > 0 {
				s.indexNoteVec(rowid, n.ID, embedding)
			}
		}
	}
	return n, nil
}

// DeleteNote deletes a note and its vector index entry.
func (s *Store) DeleteNote(userID, id string) error {
	var rowid int64
	rowidErr := s.db.QueryRow(`SELECT rowid FROM notes WHERE id = ? AND user_id = ?`, id, userID).Scan(&rowid)

	res, err := s.db.Exec(`DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.vecAvailable && rowidErr == nil {
		s.db.Exec(`DELETE FROM note_vec WHERE rowid = ?`, rowid)
	}
	return nil
}

// SearchNotes ranks the user's notes by cosine similarity to the query
// vector. Uses the vec0 KNN index when available; otherwise falls back to a
// full scan with Go-side scoring (O(n) but always works).
func (s *Store) SearchNotes(userID string, queryVec []float64, limit int) ([]*NoteMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	if len(queryVec) == 0 {
		return nil, &ValidationError{Field: "query", Reason: "embedding required"}
	}

	if s.vecAvailable && s.vecDim == len(queryVec) {
		matches, err := s.searchNotesVec(userID, queryVec, limit)
		if err == nil {
			return matches, nil
		}
		log.Printf("[store] vec search failed, falling back to full scan: %v", err)
	}
	return s.searchNotesScan(userID, queryVec, limit)
}

// searchNotesVec runs a KNN query against note_vec. Tenant filtering cannot
// happen inside the KNN constraint, so it over-fetches and filters by owner
// after the join.
func (s *Store) searchNotesVec(userID string, queryVec []float64, limit int) ([]*NoteMatch, error) {
	query32 := normalizeFloat32(float64ToFloat32(queryVec))
	serialized, err := sqlite_vec.SerializeFloat32(query32)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	k := limit * 8
	if k < 20 {
		k = 20
	}
	rows, err := s.db.Query(`
		SELECT v.note_id, v.distance
		FROM note_vec v
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`, serialized, k)
	if err != nil {
		return nil, fmt.Errorf("vec knn query: %w", err)
	}
	defer rows.Close()

	var matches []*NoteMatch
	for rows.Next() {
		var noteID string
		var dist float64
		if err := rows.Scan(&noteID, &dist); err != nil {
			continue
		}
		n, err := s.GetNote(userID, noteID)
		if errors.Is(err, ErrNotFound) {
			continue // another tenant's note
		}
		if err != nil {
			return nil, err
		}
		matches = append(matches, &NoteMatch{Note: n, Similarity: l2ToCosineSim(dist)})
		if len(matches) == limit {
			break
		}
	}
	return matches, rows.Err()
}

func (s *Store) searchNotesScan(userID string, queryVec []float64, limit int) ([]*NoteMatch, error) {
	notes, err := s.ListNotes(userID)
	if err != nil {
		return nil, err
	}
	var matches []*NoteMatch
	for _, n := range notes {
		if len(n.Embedding) == 0 {
			continue
		}
		matches = append(matches, &NoteMatch{Note: n, Similarity: cosineSimilarity(queryVec, n.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// initVecTableFromNotes reads the embedding dimension from existing notes,
// creates the note_vec virtual table with that dimension, and backfills all
// stored embeddings. No-ops if no notes with embeddings exist yet.
func (s *Store) initVecTableFromNotes() error {
	var embBytes []byte
	err := s.db.QueryRow(`SELECT embedding FROM notes WHERE embedding IS NOT NULL AND LENGTH(embedding) > 4 LIMIT 1`).Scan(&embBytes)
	if err != nil {
		return nil // no embedded notes yet; defer to first CreateNote
	}
	var emb64 []float64
	if err := json.Unmarshal(embBytes, &emb64); err != nil || len(emb64) == 0 {
		return nil
	}
	return s.ensureVecTable(len(emb64))
}

// ensureVecTable creates the note_vec virtual table for the given embedding
// dimension (if not yet created) and backfills existing notes. Idempotent for
// the same dim.
//
// Schema uses integer rowid (from the notes table) + auxiliary +note_id
// column, avoiding vec0's TEXT PRIMARY KEY partitioning behaviour which
// breaks KNN queries.
func (s *Store) ensureVecTable(dim int) error {
	if s.vecDim == dim {
		return nil
	}
	if s.vecDim != 0 && s.vecDim != dim {
		return fmt.Errorf("embedding dim %d doesn't match vec table dim %d", dim, s.vecDim)
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_vec USING vec0(
			embedding float[%d],
			+note_id TEXT
		)
	`, dim))
	if err != nil {
		return fmt.Errorf("failed to create note_vec(float[%d]): %w", dim, err)
	}
	s.vecDim = dim

	rows, err := s.db.Query(`SELECT rowid, id, embedding FROM notes WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil // backfill failure is non-fatal
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var rowid int64
		var id string
		var emb []byte
		if err := rows.Scan(&rowid, &id, &emb); err != nil {
			continue
		}
		var emb64 []float64
		if err := json.Unmarshal(emb, &emb64); err != nil || len(emb64) != dim {
			continue
		}
		if s.indexNoteVec(rowid, id, emb64) {
			count++
		}
	}
	if count > 0 {
		log.Printf("[store] vec backfill: indexed %d notes (dim=%d)", count, dim)
	}
	return rows.Err()
}

// indexNoteVec writes one normalized embedding into note_vec, creating the
// table first if this is the first embedding seen.
func (s *Store) indexNoteVec(rowid int64, noteID string, embedding []float64) bool {
	if s.vecDim == 0 {
		if err := s.ensureVecTable(len(embedding)); err != nil {
			log.Printf("[store] vec table init failed: %v", err)
			return false
		}
	}
	if len(embedding) != s.vecDim {
		return false
	}
	emb32 := normalizeFloat32(float64ToFloat32(embedding)) // normalize for cosine-compatible L2
	serialized, err := sqlite_vec.SerializeFloat32(emb32)
	if err != nil {
		return false
	}
	// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
	s.db.Exec(`DELETE FROM note_vec WHERE rowid = ?`, rowid)
	if _, err := s.db.Exec(`INSERT INTO note_vec(rowid, embedding, note_id) VALUES (?, ?, ?)`, rowid, serialized, noteID); err != nil {
		log.Printf("[store] vec index failed for %s: %v", noteID, err)
		return false
	}
	return true
}

// float64ToFloat32 converts a float64 slice to float32
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector.
// Normalizing before storing in vec0 makes L2 distance equivalent to cosine distance:
//
//	cosine_dist = L2_dist² / 2   (for unit vectors)
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2²/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}

// cosineSimilarity computes similarity between two embeddings (-1 to 1)
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func scanNote(row *sql.Row) (*Note, error) {
	var n Note
	var embBytes []byte
	err := row.Scan(&n.ID, &n.UserID, &n.Content, &embBytes, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	if len(embBytes) > 0 {
		json.Unmarshal(embBytes, &n.Embedding)
	}
	return &n, nil
}

func scanNoteRows(rows *sql.Rows) (*Note, error) {
	var n Note
	var embBytes []byte
	if err := rows.Scan(&n.ID, &n.UserID, &n.Content, &embBytes, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	if len(embBytes) > 0 {
		json.Unmarshal(embBytes, &n.Embedding)
	}
	return &n, nil
}
