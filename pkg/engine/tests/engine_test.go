package engine_test

import (
	"testing"

	"github.com/cosmeon-io/cosmeon/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeExtensions(t *testing.T) {
	e := engine.New()

	meta := e.Analyze("report.JSON")
	assert.Equal(t, "json", meta.Extension)
	assert.True(t, meta.IsCompressible)
	assert.False(t, meta.IsCritical)
	assert.Equal(t, "random", meta.AccessPattern)

	meta = e.Analyze("backup.tar")
	assert.True(t, meta.IsCritical)
	assert.False(t, meta.IsCompressible)

	meta = e.Analyze("README")
	assert.Equal(t, "", meta.Extension)
	assert.False(t, meta.IsCompressible)
	assert.False(t, meta.IsCritical)
}

func TestSelectBalancedSmallFile(t *testing.T) {
	e := engine.New()
	meta := e.Analyze("photo.jpg")
	meta.Size = 1024

	decision := e.Select(meta, "balanced")
	assert.Equal(t, engine.AlgorithmReplication, decision.Algorithm)
	assert.Equal(t, 3, decision.Config.ReplicationFactor)
	assert.False(t, decision.Config.Compress)
	assert.Equal(t, 3.0, decision.CostEstimate)
}

func TestSelectBalancedLargeFile(t *testing.T) {
	// 12 MB balanced file lands on reed-solomon (3,2) without compression
	e := engine.New()
	meta := e.Analyze("video.mp4")
	meta.Size = 12_000_000

	decision := e.Select(meta, "balanced")
	assert.Equal(t, engine.AlgorithmReedSolomon, decision.Algorithm)
	assert.Equal(t, 3, decision.Config.DataShards)
	assert.Equal(t, 2, decision.Config.ParityShards)
	assert.False(t, decision.Config.Compress)
	assert.Equal(t, 1.67, decision.CostEstimate)
}

func TestSelectEcoSmallFile(t *testing.T) {
	// 1 KB eco file: replication factor 3 with compression, cost 3.0*0.7
	e := engine.New()
	meta := e.Analyze("notes.txt")
	meta.Size = 1024

	decision := e.Select(meta, "eco")
	assert.Equal(t, engine.AlgorithmReplication, decision.Algorithm)
	assert.Equal(t, 3, decision.Config.ReplicationFactor)
	assert.True(t, decision.Config.Compress)
	assert.Equal(t, 2.1, decision.CostEstimate)
}

func TestSelectEcoAliases(t *testing.T) {
	e := engine.New()
	meta := e.Analyze("notes.txt")
	meta.Size = 1024

	for _, policy := range []string{"eco", "cost", "economy", "ECO"} {
		decision := e.Select(meta, policy)
		assert.True(t, decision.Config.Compress, "policy %q", policy)
	}

	// Unknown policies fall back to balanced
	decision := e.Select(meta, "reliability")
	assert.False(t, decision.Config.Compress)
}

func TestSelectLargeFileDiscount(t *testing.T) {
	e := engine.New()
	meta := e.Analyze("archive.bin")
	meta.Size = 2_000_000_000

	decision := e.Select(meta, "balanced")
	assert.Equal(t, engine.AlgorithmReedSolomon, decision.Algorithm)
	assert.Equal(t, 1.5, decision.CostEstimate) // 1.67 * 0.9 rounded
}

func TestSelectDeterminism(t *testing.T) {
	e := engine.New()
	meta := e.Analyze("data.csv")
	meta.Size = 5_000_000

	first := e.Select(meta, "eco")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Select(meta, "eco"))
	}
}

func TestConfigureExplicitOverride(t *testing.T) {
	e := engine.New()

	critical := e.Analyze("snapshot.db")
	cfg, err := e.Configure(engine.AlgorithmReplication, critical)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ReplicationFactor)

	plain := e.Analyze("image.png")
	cfg, err = e.Configure(engine.AlgorithmReplication, plain)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ReplicationFactor)
	assert.False(t, cfg.Compress)

	compressible := e.Analyze("dump.sql")
	cfg, err = e.Configure(engine.AlgorithmReedSolomon, compressible)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DataShards)
	assert.Equal(t, 2, cfg.ParityShards)
	assert.True(t, cfg.Compress)
}

func TestConfigureUnknownAlgorithm(t *testing.T) {
	e := engine.New()
	_, err := e.Configure("fountain-code", e.Analyze("a.bin"))
	assert.Error(t, err)
}

func TestNormalizeAlgorithm(t *testing.T) {
	cases := []struct {
		raw      string
		name     string
		compress bool
	}{
		{"", "", false},
		{"auto", "", false},
		{"none", "", false},
		{"replication", "replication", false},
		{"replicate", "replication", false},
		{"reed-solomon", "reed-solomon", false},
		{"reedsolomon", "reed-solomon", false},
		{"reed-solo", "reed-solomon", false},
		{"replication+compress", "replication", true},
		{"reed-solomon+compress", "reed-solomon", true},
		{"auto+compress", "", true},
	}

	for _, tc := range cases {
		name, compress := engine.NormalizeAlgorithm(tc.raw)
		assert.Equal(t, tc.name, name, "raw %q", tc.raw)
		assert.Equal(t, tc.compress, compress, "raw %q", tc.raw)
	}
}
