package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newthinker/valscreen/internal/core"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no blob or snapshot exists.
var ErrNotFound = errors.New("archive: not found")

const stampLayout = "20060102T150405Z"

// Archiver stores result tables as JSON snapshots, one per scan, under
// "<index>/<finished-at>.json".
type Archiver struct {
	storage Storage
	logger  *zap.Logger
}

// NewArchiver wraps a storage backend.
func NewArchiver(storage Storage, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{storage: storage, logger: logger}
}

// SnapshotPath returns the path a table is archived under.
func SnapshotPath(t *core.ResultTable) string {
	at := t.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	return indexPrefix(t.Index) + at.UTC().Format(stampLayout) + ".json"
}

// Save writes a snapshot and returns its path.
func (a *Archiver) Save(ctx context.Context, t *core.ResultTable) (string, error) {
	if t == nil {
		return "", fmt.Errorf("archive: nil result table")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := SnapshotPath(t)
	if err := a.storage.Write(ctx, path, data); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	a.logger.Info("snapshot archived",
		zap.String("index", t.Index),
		zap.String("path", path),
		zap.Int("records", len(t.Records)))
	return path, nil
}

// Snapshots lists the archived snapshot paths for an index, oldest first.
func (a *Archiver) Snapshots(ctx context.Context, indexKey string) ([]string, error) {
	paths, err := a.storage.List(ctx, indexPrefix(indexKey))
	if err != nil {
		return nil, err
	}
	out := paths[:0]
	for _, p := range paths {
		if strings.HasSuffix(p, ".json") {
			out = append(out, p)
		}
	}
	return out, nil
}

// Load reads one snapshot.
func (a *Archiver) Load(ctx context.Context, path string) (*core.ResultTable, error) {
	data, err := a.storage.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var t core.ResultTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return &t, nil
}

// Latest loads the most recent snapshot for an index.
func (a *Archiver) Latest(ctx context.Context, indexKey string) (*core.ResultTable, error) {
	paths, err := a.Snapshots(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", indexKey, ErrNotFound)
	}
	return a.Load(ctx, paths[len(paths)-1])
}

func indexPrefix(indexKey string) string {
	key := strings.ToLower(strings.TrimSpace(indexKey))
	if key == "" {
		key = "unknown"
	}
	return key + "/"
}
