package reconstruct

import (
	"fmt"

	"github.com/cosmeon-io/cosmeon/pkg/cluster"
	"github.com/cosmeon-io/cosmeon/pkg/codec"
	"github.com/cosmeon-io/cosmeon/pkg/engine"
)

// Health classifies how reconstructable a file currently is.
type Health string

const (
	HealthHealthy  Health = "healthy"  // enough shards to reconstruct
	HealthDegraded Health = "degraded" // some shards left, not enough
	HealthCritical Health = "critical" // nothing left
)

// Placement locates one shard of a file: its position in the encoding
// order, the node holding it and the integrity hash recorded at upload.
type Placement struct {
	Index       int    `json:"shard_index"`
	NodeID      string `json:"node_id"`
	Size        int64  `json:"size"`
	ContentHash string `json:"hash"`
}

// State is the derived availability picture for one file. It is computed
// on demand and never stored.
type State struct {
	AvailableCount int    `json:"available_count"`
	MissingIndices []int  `json:"missing_indices"`
	NeededCount    int    `json:"needed_count"`
	Health         Health `json:"health"`
}

// Reconstructable reports whether a decode attempt can currently succeed.
func (s State) Reconstructable() bool {
	return s.AvailableCount >= s.NeededCount
}

// Planner decides whether a file can be rebuilt from its surviving shards
// and drives the codec's decode path. It performs no I/O itself: shard
// bytes are fetched by the caller, and node liveness comes from the health
// registry handed in at construction.
type Planner struct {
	registry *cluster.Registry
}

func NewPlanner(registry *cluster.Registry) *Planner {
	return &Planner{registry: registry}
}

// NeededCount returns the minimum number of live shards required: one
// replica for replication, k data-equivalent shards for reed-solomon.
func NeededCount(algorithm string, cfg engine.Config) int {
	if algorithm == engine.AlgorithmReedSolomon {
		if cfg.DataShards > 0 {
			return cfg.DataShards
		}
		return codec.DataShards
	}
	return 1
}

// Assess computes the availability state for a file from its shard
// placements, consulting the health registry for node liveness. Shards on
// failed nodes count as missing.
func (p *Planner) Assess(placements []Placement, algorithm string, cfg engine.Config) State {
	missing := make([]int, 0, len(placements))
	for _, pl := range placements {
		if p.registry.IsFailed(pl.NodeID) {
			missing = append(missing, pl.Index)
		}
	}

	state := State{
		AvailableCount: len(placements) - len(missing),
		MissingIndices: missing,
		NeededCount:    NeededCount(algorithm, cfg),
	}
	state.Health = Classify(state.AvailableCount, state.NeededCount)
	return state
}

// AssessFetched recomputes the state from actual fetch results, where a
// nil entry marks a shard that was skipped or failed to download. Fetch
// failures and failed nodes are treated identically.
func AssessFetched(shards [][]byte, algorithm string, cfg engine.Config) State {
	missing := make([]int, 0, len(shards))
	for i, shard := range shards {
		if shard == nil {
			missing = append(missing, i)
		}
	}

	state := State{
		AvailableCount: len(shards) - len(missing),
		MissingIndices: missing,
		NeededCount:    NeededCount(algorithm, cfg),
	}
	state.Health = Classify(state.AvailableCount, state.NeededCount)
	return state
}

// Classify maps a live-shard count against the scheme's minimum
// requirement onto a health state.
func Classify(available, needed int) Health {
	switch {
	case available >= needed:
		return HealthHealthy
	case available > 0:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// Reconstruct rebuilds the original file bytes from fetched shards. The
// shards slice is ordered by shard index with nil entries for missing
// shards; placements supply the content hashes the erasure fallback path
// verifies against. When the scheme compressed the payload, the result is
// decompressed before returning.
func (p *Planner) Reconstruct(placements []Placement, shards [][]byte, algorithm string, cfg engine.Config, originalSize int) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch algorithm {
	case engine.AlgorithmReplication:
		data, err = codec.DecodeReplication(shards)
	case engine.AlgorithmReedSolomon:
		k, m := cfg.DataShards, cfg.ParityShards
		if k == 0 && m == 0 {
			k, m = codec.DataShards, codec.ParityShards
		}
		data, err = codec.DecodeErasureVerified(shards, k, m, originalSize, placementHashes(placements))
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", codec.ErrUnsupportedConfig, algorithm)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compress {
		data, err = codec.Decompress(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func placementHashes(placements []Placement) []string {
	hashes := make([]string, len(placements))
	for _, pl := range placements {
		if pl.Index >= 0 && pl.Index < len(hashes) {
			hashes[pl.Index] = pl.ContentHash
		}
	}
	return hashes
}
