package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/kozaktomas/face-tracker/internal/vectormath"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// hnswCandidates is how many approximate neighbors the index contributes
// before the exact SQL re-score picks the winner.
const hnswCandidates = 8 * registry.SearchMultiplier

// Store is the PostgreSQL-backed identity registry with an optional
// in-memory HNSW index over centroids. Implements registry.Store.
type Store struct {
	pool         *Pool
	dim          int
	index        *registry.Index
	indexEnabled bool
	indexMu      sync.RWMutex
	clipMu       sync.Mutex
}

// NewStore creates a store over an existing pool. dim is the embedding
// dimensionality the registry accepts.
func NewStore(pool *Pool, dim int) *Store {
	return &Store{pool: pool, dim: dim}
}

// LockClip acquires the whole-clip write section. Registry writes for one
// clip's resolution pass are serialized here; cross-process exclusion is
// the orchestrator's concern.
func (s *Store) LockClip() { s.clipMu.Lock() }

// UnlockClip releases the whole-clip write section.
func (s *Store) UnlockClip() { s.clipMu.Unlock() }

// EnableIndex turns on HNSW-accelerated matching. When path is non-empty,
// a previously saved index is loaded from it; missing or stale files fall
// back to a rebuild from the database.
func (s *Store) EnableIndex(ctx context.Context, path string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index := registry.NewIndex()
	if path != "" {
		if err := index.Load(path); err != nil {
			return fmt.Errorf("loading identity index: %w", err)
		}
	}

	count, err := s.countIdentities(ctx)
	if err != nil {
		return err
	}
	if index.Count() != count {
		identities, err := s.List(ctx)
		if err != nil {
			return err
		}
		index.Build(identities)
		index.SetPath(path)
		if err := index.Save(); err != nil {
			return fmt.Errorf("saving identity index: %w", err)
		}
	}

	s.index = index
	s.indexEnabled = true
	return nil
}

// SaveIndex persists the HNSW index, if enabled and a path is set.
func (s *Store) SaveIndex() error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	if !s.indexEnabled {
		return nil
	}
	return s.index.Save()
}

func (s *Store) checkDim(embedding []float32) error {
	if s.dim > 0 && len(embedding) != s.dim {
		return fmt.Errorf("%w: got %d, registry stores %d", vectormath.ErrDimensionMismatch, len(embedding), s.dim)
	}
	return nil
}

const identityColumns = `
	id, seq, centroid, detection_count, label,
	rep_clip_id, rep_timestamp, rep_bbox, rep_embedding, rep_confidence, rep_quality,
	created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*registry.Identity, error) {
	var identity registry.Identity
	var centroid, repEmbedding pgvector.Vector
	var bbox []float64
	err := row.Scan(
		&identity.ID, &identity.Seq, &centroid, &identity.Count, &identity.Label,
		&identity.Representative.ClipID, &identity.Representative.Timestamp,
		pq.Array(&bbox), &repEmbedding,
		&identity.Representative.Confidence, &identity.Representative.Quality,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Centroid = centroid.Slice()
	identity.Representative.Embedding = repEmbedding.Slice()
	if len(bbox) == 4 {
		identity.Representative.BBox = faces.BBox{X: bbox[0], Y: bbox[1], W: bbox[2], H: bbox[3]}
	}
	return &identity, nil
}

// Get retrieves an identity by ID.
func (s *Store) Get(ctx context.Context, id string) (*registry.Identity, error) {
	row := s.pool.db.QueryRowContext(ctx,
		"SELECT"+identityColumns+" FROM identities WHERE id = $1", id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w: %w", registry.ErrUnavailable, err)
	}
	return identity, nil
}

// List returns all identities in creation order.
func (s *Store) List(ctx context.Context) ([]registry.Identity, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT"+identityColumns+" FROM identities ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w: %w", registry.ErrUnavailable, err)
	}
	defer rows.Close()

	var identities []registry.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w: %w", registry.ErrUnavailable, err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w: %w", registry.ErrUnavailable, err)
	}
	return identities, nil
}

// FindBestMatch returns the most similar identity above threshold. With
// the HNSW index enabled, the index proposes candidates and the exact
// pgvector distance re-scores them; ties resolve to the lowest seq either
// way, so results stay deterministic.
func (s *Store) FindBestMatch(ctx context.Context, embedding []float32, threshold float64) (*registry.Identity, float64, error) {
	if err := s.checkDim(embedding); err != nil {
		return nil, 0, err
	}

	query := "SELECT" + identityColumns + `, 1 - (centroid <=> $1) AS similarity
		FROM identities`
	args := []any{pgvector.NewVector(embedding)}

	s.indexMu.RLock()
	if s.indexEnabled && s.index.Count() > 0 {
		ids, _ := s.index.Search(embedding, hnswCandidates)
		query += " WHERE id = ANY($2)"
		args = append(args, pq.Array(ids))
	}
	s.indexMu.RUnlock()

	query += " ORDER BY centroid <=> $1 ASC, seq ASC LIMIT 1"

	row := s.pool.db.QueryRowContext(ctx, query, args...)

	var identity registry.Identity
	var centroid, repEmbedding pgvector.Vector
	var bbox []float64
	var similarity float64
	err := row.Scan(
		&identity.ID, &identity.Seq, &centroid, &identity.Count, &identity.Label,
		&identity.Representative.ClipID, &identity.Representative.Timestamp,
		pq.Array(&bbox), &repEmbedding,
		&identity.Representative.Confidence, &identity.Representative.Quality,
		&identity.CreatedAt, &identity.UpdatedAt,
		&similarity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("matching identity: %w: %w", registry.ErrUnavailable, err)
	}
	if similarity <= threshold {
		return nil, 0, nil
	}

	identity.Centroid = centroid.Slice()
	identity.Representative.Embedding = repEmbedding.Slice()
	if len(bbox) == 4 {
		identity.Representative.BBox = faces.BBox{X: bbox[0], Y: bbox[1], W: bbox[2], H: bbox[3]}
	}
	return &identity, similarity, nil
}

// FindByLabel returns identities whose label matches after normalization.
// The SQL mirrors registry.NormalizeLabel (lowercase, unaccent, dashes to
// spaces) so slugs match display names.
func (s *Store) FindByLabel(ctx context.Context, label string) ([]registry.Identity, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		"SELECT"+identityColumns+` FROM identities
		WHERE label <> '' AND LOWER(REPLACE(unaccent(label), '-', ' ')) = $1
		ORDER BY seq`,
		registry.NormalizeLabel(label))
	if err != nil {
		return nil, fmt.Errorf("querying identities by label: %w: %w", registry.ErrUnavailable, err)
	}
	defer rows.Close()

	var identities []registry.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w: %w", registry.ErrUnavailable, err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w: %w", registry.ErrUnavailable, err)
	}
	return identities, nil
}

// Stats returns registry totals.
func (s *Store) Stats(ctx context.Context) (registry.Stats, error) {
	var stats registry.Stats
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(detection_count), 0),
		       COUNT(*) FILTER (WHERE label <> '')
		FROM identities
	`).Scan(&stats.Identities, &stats.Detections, &stats.Labeled)
	if err != nil {
		return registry.Stats{}, fmt.Errorf("querying stats: %w: %w", registry.ErrUnavailable, err)
	}
	return stats, nil
}

// Create allocates a new identity with count=1.
func (s *Store) Create(ctx context.Context, centroid []float32, representative faces.Detection) (*registry.Identity, error) {
	if err := s.checkDim(centroid); err != nil {
		return nil, err
	}

	identity := &registry.Identity{
		ID:             uuid.NewString(),
		Centroid:       append([]float32(nil), centroid...),
		Representative: representative,
		Count:          1,
	}

	bbox := representative.BBox
	err := s.pool.db.QueryRowContext(ctx, `
		INSERT INTO identities (
			id, centroid, detection_count,
			rep_clip_id, rep_timestamp, rep_bbox, rep_embedding, rep_confidence, rep_quality, dim
		)
		VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, created_at, updated_at
	`,
		identity.ID, pgvector.NewVector(centroid),
		representative.ClipID, representative.Timestamp,
		pq.Array([]float64{bbox.X, bbox.Y, bbox.W, bbox.H}),
		pgvector.NewVector(representative.Embedding),
		representative.Confidence, representative.QualityScore(),
		len(centroid),
	).Scan(&identity.Seq, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating identity: %w: %w", registry.ErrUnavailable, err)
	}

	s.indexMu.RLock()
	if s.indexEnabled {
		s.index.Upsert(identity.ID, centroid)
	}
	s.indexMu.RUnlock()

	return identity, nil
}

// Merge folds one detection into an identity and returns the new centroid.
// Runs in a transaction with the row locked so the running mean never
// loses an update.
func (s *Store) Merge(ctx context.Context, id string, embedding []float32, detection faces.Detection) ([]float32, error) {
	if err := s.checkDim(embedding); err != nil {
		return nil, err
	}

	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning merge: %w: %w", registry.ErrUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT"+identityColumns+" FROM identities WHERE id = $1 FOR UPDATE", id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("locking identity: %w: %w", registry.ErrUnavailable, err)
	}

	newCentroid, err := vectormath.RunningMean(identity.Centroid, identity.Count, embedding)
	if err != nil {
		return nil, err
	}
	replace, err := registry.BetterRepresentative(detection, identity.Representative, newCentroid)
	if err != nil {
		return nil, err
	}

	rep := identity.Representative
	if replace {
		rep = detection
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE identities
		SET centroid = $2, detection_count = detection_count + 1,
		    rep_clip_id = $3, rep_timestamp = $4, rep_bbox = $5,
		    rep_embedding = $6, rep_confidence = $7, rep_quality = $8,
		    updated_at = NOW()
		WHERE id = $1
	`,
		id, pgvector.NewVector(newCentroid),
		rep.ClipID, rep.Timestamp,
		pq.Array([]float64{rep.BBox.X, rep.BBox.Y, rep.BBox.W, rep.BBox.H}),
		pgvector.NewVector(rep.Embedding),
		rep.Confidence, rep.QualityScore(),
	)
	if err != nil {
		return nil, fmt.Errorf("updating identity: %w: %w", registry.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing merge: %w: %w", registry.ErrUnavailable, err)
	}

	s.indexMu.RLock()
	if s.indexEnabled {
		s.index.Upsert(id, newCentroid)
	}
	s.indexMu.RUnlock()

	return newCentroid, nil
}

// SetLabel attaches an external label to an identity.
func (s *Store) SetLabel(ctx context.Context, id string, label string) error {
	result, err := s.pool.db.ExecContext(ctx,
		"UPDATE identities SET label = $2, updated_at = NOW() WHERE id = $1", id, label)
	if err != nil {
		return fmt.Errorf("updating label: %w: %w", registry.ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating label: %w: %w", registry.ErrUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	return nil
}

func (s *Store) countIdentities(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting identities: %w: %w", registry.ErrUnavailable, err)
	}
	return count, nil
}

var _ registry.Store = (*Store)(nil)
