package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/cosmeon-io/cosmeon/pkg/engine"
	"github.com/cosmeon-io/cosmeon/pkg/storage"
	"github.com/cosmeon-io/cosmeon/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMetadataStore(t *testing.T) (*storage.MetadataStore, func()) {
	tmpDir, cleanup := testutil.CreateTempDir(t, "cosmeon-meta-test-*")

	meta, err := storage.NewMetadataStore(tmpDir)
	require.NoError(t, err)

	return meta, cleanup
}

func sampleRecord(id string) *storage.FileRecord {
	return &storage.FileRecord{
		ID:           id,
		Filename:     "report.pdf",
		OriginalSize: 1234,
		Algorithm:    engine.AlgorithmReedSolomon,
		Config:       engine.Config{DataShards: 3, ParityShards: 2},
		Shards: []storage.ShardInfo{
			{Node: "node-1", Filename: id + "_shard_000.cosm", Size: 412, ShardIndex: 0, Hash: "aa"},
			{Node: "node-2", Filename: id + "_shard_001.cosm", Size: 412, ShardIndex: 1, Hash: "bb"},
		},
		CostEstimate: 1.67,
		PolicyUsed:   "balanced",
		UploadedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestMetadataSaveAndGet(t *testing.T) {
	meta, cleanup := setupMetadataStore(t)
	defer cleanup()

	ctx := context.Background()
	record := sampleRecord("file-1")
	require.NoError(t, meta.Save(ctx, record))

	got, err := meta.Get(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, record.Filename, got.Filename)
	assert.Equal(t, record.Algorithm, got.Algorithm)
	assert.Equal(t, record.Config, got.Config)
	assert.Len(t, got.Shards, 2)
	assert.Equal(t, record.CostEstimate, got.CostEstimate)
}

func TestMetadataGetNotFound(t *testing.T) {
	meta, cleanup := setupMetadataStore(t)
	defer cleanup()

	_, err := meta.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)
}

func TestMetadataList(t *testing.T) {
	meta, cleanup := setupMetadataStore(t)
	defer cleanup()

	ctx := context.Background()
	for _, id := range []string{"file-a", "file-b", "file-c"} {
		require.NoError(t, meta.Save(ctx, sampleRecord(id)))
	}

	records, err := meta.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestMetadataDelete(t *testing.T) {
	meta, cleanup := setupMetadataStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, meta.Save(ctx, sampleRecord("file-1")))
	require.NoError(t, meta.Delete(ctx, "file-1"))

	_, err := meta.Get(ctx, "file-1")
	assert.ErrorIs(t, err, storage.ErrFileNotFound)

	// Deleting a missing record is not an error
	assert.NoError(t, meta.Delete(ctx, "file-1"))
}

func TestNormalizeRecordModernShape(t *testing.T) {
	raw := []byte(`{
		"id": "f1",
		"filename": "a.txt",
		"original_size": 42,
		"algorithm": "replication",
		"config": {"replication_factor": 3, "compress": true},
		"shards": [{"node": "node-2", "filename": "f1_shard_000.cosm", "size": 14, "shard_index": 0, "hash": "xyz"}],
		"cost_estimate": 2.1,
		"uploaded_at": "2024-03-01T10:00:00Z"
	}`)

	record, err := storage.NormalizeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "f1", record.ID)
	assert.Equal(t, "replication", record.Algorithm)
	assert.Equal(t, 3, record.Config.ReplicationFactor)
	assert.True(t, record.Config.Compress)
	require.Len(t, record.Shards, 1)
	assert.Equal(t, "node-2", record.Shards[0].Node)
	assert.Equal(t, 2024, record.UploadedAt.Year())
}

func TestNormalizeRecordLegacyShape(t *testing.T) {
	// Legacy rows used algorithm_used/algorithm_config, stored config and
	// shards as JSON strings, and named the placement key "bucket".
	raw := []byte(`{
		"id": "f2",
		"size": 99,
		"algorithm_used": "reed-solomon",
		"algorithm_config": "{\"k\": 3, \"m\": 2, \"compress\": false}",
		"shards": "[{\"bucket\": \"node-4\", \"filename\": \"f2_shard_001.cosm\", \"size\": 33, \"shard_index\": 1}, {\"bucket\": \"node-3\", \"filename\": \"f2_shard_000.cosm\", \"size\": 33, \"shard_index\": 0}]",
		"cost_estimate": 1.67,
		"created_at": "2023-11-20T08:30:00Z"
	}`)

	record, err := storage.NormalizeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "f2", record.Filename) // falls back to the id
	assert.Equal(t, int64(99), record.OriginalSize)
	assert.Equal(t, "reed-solomon", record.Algorithm)
	assert.Equal(t, 3, record.Config.DataShards)
	assert.Equal(t, 2, record.Config.ParityShards)

	// Shards come back sorted by index with the bucket key migrated
	require.Len(t, record.Shards, 2)
	assert.Equal(t, 0, record.Shards[0].ShardIndex)
	assert.Equal(t, "node-3", record.Shards[0].Node)
	assert.Equal(t, "node-4", record.Shards[1].Node)
	assert.Equal(t, 2023, record.UploadedAt.Year())
}

func TestNormalizeRecordMalformed(t *testing.T) {
	_, err := storage.NormalizeRecord([]byte("not json"))
	assert.Error(t, err)
}

func TestPlacementsOrderedByIndex(t *testing.T) {
	record := &storage.FileRecord{
		Shards: []storage.ShardInfo{
			{Node: "node-3", ShardIndex: 2, Hash: "c"},
			{Node: "node-1", ShardIndex: 0, Hash: "a"},
			{Node: "node-2", ShardIndex: 1, Hash: "b"},
		},
	}

	placements := record.Placements()
	require.Len(t, placements, 3)
	for i, pl := range placements {
		assert.Equal(t, i, pl.Index)
	}
	assert.Equal(t, "node-1", placements[0].NodeID)
}
