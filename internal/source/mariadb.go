package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-tracker/internal/faces"
)

// DetectorDB reads face detections straight out of the detector
// service's MariaDB, for deployments where clips are not exported to
// files. Embeddings are stored as a JSON float list per detection.
type DetectorDB struct {
	db *sql.DB
}

// NewDetectorDB opens a connection pool against the detector's MariaDB.
func NewDetectorDB(dsn string) (*DetectorDB, error) {
	if dsn == "" {
		return nil, errors.New("detector database DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open detector database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping detector database: %w", err)
	}

	return &DetectorDB{db: db}, nil
}

// Close closes the connection pool.
func (d *DetectorDB) Close() error {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			return fmt.Errorf("closing detector database: %w", err)
		}
	}
	return nil
}

// Detections returns one clip's face detections in timestamp order.
func (d *DetectorDB) Detections(ctx context.Context, clipID string) ([]faces.Detection, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT timestamp_seconds, x, y, w, h, embedding_json, confidence, quality
		FROM face_detections
		WHERE clip_id = ?
		ORDER BY timestamp_seconds
	`, clipID)
	if err != nil {
		return nil, fmt.Errorf("querying detections for clip %s: %w", clipID, err)
	}
	defer rows.Close()

	var detections []faces.Detection
	for rows.Next() {
		det := faces.Detection{ClipID: clipID}
		var embeddingJSON []byte
		err := rows.Scan(
			&det.Timestamp,
			&det.BBox.X, &det.BBox.Y, &det.BBox.W, &det.BBox.H,
			&embeddingJSON, &det.Confidence, &det.Quality,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning detection: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &det.Embedding); err != nil {
			return nil, fmt.Errorf("parsing embedding for clip %s at %f: %w", clipID, det.Timestamp, err)
		}
		detections = append(detections, det)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating detections for clip %s: %w", clipID, err)
	}
	return detections, nil
}

// ClipIDs returns every clip id the detector has processed.
func (d *DetectorDB) ClipIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT DISTINCT clip_id FROM face_detections ORDER BY clip_id")
	if err != nil {
		return nil, fmt.Errorf("querying clip ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning clip id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clip ids: %w", err)
	}
	return ids, nil
}
