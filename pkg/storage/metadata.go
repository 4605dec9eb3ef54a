package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cosmeon-io/cosmeon/pkg/engine"
	"github.com/cosmeon-io/cosmeon/pkg/reconstruct"
)

// ShardInfo is one placement descriptor in a persisted file record.
type ShardInfo struct {
	Node       string    `json:"node"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ShardIndex int       `json:"shard_index"`
	Hash       string    `json:"hash"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FileRecord is the persisted metadata of a stored file. OriginalSize is
// the byte length the decoder must truncate to, measured after compression
// when the scheme compressed the payload.
type FileRecord struct {
	ID           string        `json:"id"`
	Filename     string        `json:"filename"`
	OriginalSize int64         `json:"original_size"`
	Algorithm    string        `json:"algorithm"`
	Config       engine.Config `json:"config"`
	Shards       []ShardInfo   `json:"shards"`
	CostEstimate float64       `json:"cost_estimate"`
	PolicyUsed   string        `json:"policy_used,omitempty"`
	UploadedAt   time.Time     `json:"uploaded_at"`
}

// Placements converts the record's shard list into planner placements,
// ordered by shard index.
func (r *FileRecord) Placements() []reconstruct.Placement {
	out := make([]reconstruct.Placement, 0, len(r.Shards))
	for _, shard := range r.Shards {
		out = append(out, reconstruct.Placement{
			Index:       shard.ShardIndex,
			NodeID:      shard.Node,
			Size:        shard.Size,
			ContentHash: shard.Hash,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// MetadataStore persists file records as JSON documents, one per file.
// Records written by earlier deployments used inconsistent field names and
// JSON-encoded-string columns; normalization happens here, at the storage
// boundary, so the rest of the system only ever sees the typed shape.
type MetadataStore struct {
	basePath string
}

func NewMetadataStore(basePath string) (*MetadataStore, error) {
	path := filepath.Join(basePath, "metadata")
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &MetadataStore{basePath: path}, nil
}

// Save writes a file record.
func (m *MetadataStore) Save(ctx context.Context, record *FileRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(m.recordPath(record.ID), data, 0644)
}

// Get loads and normalizes one file record.
func (m *MetadataStore) Get(ctx context.Context, fileID string) (*FileRecord, error) {
	data, err := os.ReadFile(m.recordPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return nil, err
	}
	return NormalizeRecord(data)
}

// List loads and normalizes every file record, sorted by upload time then
// id for a stable order.
func (m *MetadataStore) List(ctx context.Context) ([]FileRecord, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		return nil, err
	}

	records := make([]FileRecord, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.basePath, entry.Name()))
		if err != nil {
			continue
		}
		record, err := NormalizeRecord(data)
		if err != nil {
			continue
		}
		records = append(records, *record)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].UploadedAt.Equal(records[j].UploadedAt) {
			return records[i].UploadedAt.Before(records[j].UploadedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Delete removes a file record. Missing records are not an error.
func (m *MetadataStore) Delete(ctx context.Context, fileID string) error {
	err := os.Remove(m.recordPath(fileID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *MetadataStore) recordPath(fileID string) string {
	return filepath.Join(m.basePath, fileID+".json")
}

// looseRecord accepts every historical spelling of the persisted record:
// algorithm vs algorithm_used, config vs algorithm_config, and config or
// shards double-encoded as JSON strings.
type looseRecord struct {
	ID              string          `json:"id"`
	Filename        string          `json:"filename"`
	OriginalSize    int64           `json:"original_size"`
	Size            int64           `json:"size"`
	Algorithm       string          `json:"algorithm"`
	AlgorithmUsed   string          `json:"algorithm_used"`
	Config          json.RawMessage `json:"config"`
	AlgorithmConfig json.RawMessage `json:"algorithm_config"`
	Shards          json.RawMessage `json:"shards"`
	CostEstimate    float64         `json:"cost_estimate"`
	PolicyUsed      string          `json:"policy_used"`
	UploadedAt      string          `json:"uploaded_at"`
	CreatedAt       string          `json:"created_at"`
}

type looseShard struct {
	Node       string `json:"node"`
	Bucket     string `json:"bucket"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	ShardIndex int    `json:"shard_index"`
	Hash       string `json:"hash"`
	UploadedAt string `json:"uploaded_at"`
}

// NormalizeRecord migrates a raw persisted record into the typed shape.
func NormalizeRecord(data []byte) (*FileRecord, error) {
	var loose looseRecord
	if err := json.Unmarshal(data, &loose); err != nil {
		return nil, fmt.Errorf("malformed file record: %w", err)
	}

	record := &FileRecord{
		ID:           loose.ID,
		Filename:     loose.Filename,
		OriginalSize: loose.OriginalSize,
		CostEstimate: loose.CostEstimate,
		PolicyUsed:   loose.PolicyUsed,
	}
	if record.Filename == "" {
		record.Filename = loose.ID
	}
	if record.OriginalSize == 0 {
		record.OriginalSize = loose.Size
	}

	record.Algorithm = loose.Algorithm
	if record.Algorithm == "" {
		record.Algorithm = loose.AlgorithmUsed
	}

	cfgRaw := loose.Config
	if len(cfgRaw) == 0 {
		cfgRaw = loose.AlgorithmConfig
	}
	record.Config = decodeConfig(cfgRaw)

	record.Shards = decodeShards(loose.Shards)

	record.UploadedAt = parseTimestamp(loose.UploadedAt)
	if record.UploadedAt.IsZero() {
		record.UploadedAt = parseTimestamp(loose.CreatedAt)
	}

	return record, nil
}

func decodeConfig(raw json.RawMessage) engine.Config {
	raw = unquoteRaw(raw)
	var cfg engine.Config
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &cfg)
	}
	return cfg
}

func decodeShards(raw json.RawMessage) []ShardInfo {
	raw = unquoteRaw(raw)
	var loose []looseShard
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &loose)
	}

	shards := make([]ShardInfo, 0, len(loose))
	for _, sh := range loose {
		node := sh.Node
		if node == "" {
			node = sh.Bucket
		}
		shards = append(shards, ShardInfo{
			Node:       node,
			Filename:   sh.Filename,
			Size:       sh.Size,
			ShardIndex: sh.ShardIndex,
			Hash:       sh.Hash,
			UploadedAt: parseTimestamp(sh.UploadedAt),
		})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].ShardIndex < shards[j].ShardIndex })
	return shards
}

// unquoteRaw unwraps a value that was stored as a JSON-encoded string.
func unquoteRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			return json.RawMessage(inner)
		}
	}
	return raw
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
