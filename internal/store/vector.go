package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/mhismail3/tron-sub003/pkg/types"
)

// No native vec extension is loaded here: modernc.org/sqlite is pure Go
// and cannot dlopen sqlite-vec's cgo shared object, so embeddings are
// stored as a flat float32 BLOB and scored with cosine similarity in Go,
// the same tradeoff the corpus's sqlite-backed vector store makes.

// PutVector upserts the embedding for an event. The Event Store persists
// vectors but never computes them — embedding is an injected capability
// (spec.md §6).
func (s *Store) PutVector(ctx context.Context, eventID string, embedding []float32) error {
	return s.withTx(ctx, "put_vector", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_vectors (event_id, embedding, dim) VALUES (?, ?, ?)
			ON CONFLICT(event_id) DO UPDATE SET embedding = excluded.embedding, dim = excluded.dim`,
			eventID, encodeVector(embedding), len(embedding),
		)
		return err
	})
}

// SearchVector returns the limit nearest event ids to query by cosine
// similarity, descending (closer first).
func (s *Store) SearchVector(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, embedding FROM event_vectors`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	defer rows.Close()

	var matches []types.VectorMatch
	for rows.Next() {
		var eventID string
		var blob []byte
		if err := rows.Scan(&eventID, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
		}
		vec := decodeVector(blob)
		matches = append(matches, types.VectorMatch{
			EventID:  eventID,
			Distance: 1 - cosineSimilarity(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
