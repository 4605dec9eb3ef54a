package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/cosmeon-io/cosmeon/pkg/codec"
)

// Supported storage algorithms.
const (
	AlgorithmReplication = "replication"
	AlgorithmReedSolomon = "reed-solomon"
)

// Selection policies. Policy names normalize to one of these two.
const (
	PolicyBalanced = "balanced"
	PolicyEco      = "eco"
)

const (
	smallFileLimit = 10_000_000    // below this, replication wins
	largeFileLimit = 1_000_000_000 // above this, economies of scale apply

	replicationBaseCost = 3.0
	reedSolomonBaseCost = 1.67
)

// FileMetadata describes a file for algorithm selection. Created once per
// upload and never mutated afterwards.
type FileMetadata struct {
	Filename       string `json:"filename"`
	Extension      string `json:"extension"`
	Size           int64  `json:"size"`
	IsCompressible bool   `json:"is_compressible"`
	IsCritical     bool   `json:"is_critical"`
	AccessPattern  string `json:"access_pattern"`
}

// Config carries the algorithm-specific parameters of a scheme decision.
// ReplicationFactor applies to replication; DataShards/ParityShards to
// reed-solomon.
type Config struct {
	ReplicationFactor int  `json:"replication_factor,omitempty"`
	DataShards        int  `json:"k,omitempty"`
	ParityShards      int  `json:"m,omitempty"`
	Compress          bool `json:"compress"`
}

// Decision is the immutable outcome of scheme selection, embedded verbatim
// into the persisted file record.
type Decision struct {
	Algorithm    string  `json:"algorithm"`
	Config       Config  `json:"config"`
	Reasoning    string  `json:"reasoning"`
	CostEstimate float64 `json:"cost_estimate"`
}

// Extensions that compress well enough to be worth the CPU.
var compressibleExtensions = map[string]bool{
	"txt": true, "json": true, "xml": true, "csv": true, "log": true,
	"sql": true, "html": true, "css": true, "js": true, "py": true,
	"java": true, "cpp": true, "c": true, "h": true, "pdf": true,
	"doc": true, "docx": true, "xlsx": true,
}

// Extensions that warrant extra redundancy.
var criticalExtensions = map[string]bool{
	"db": true, "sqlite": true, "iso": true, "tar": true, "zip": true,
	"7z": true, "rar": true, "vmdk": true, "vdi": true,
}

// Engine selects a storage scheme for a file based on its metadata and a
// named policy. Pure and safe for concurrent use.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Analyze derives selection-relevant metadata from a filename. Size is not
// known here and must be set by the caller.
func (e *Engine) Analyze(filename string) FileMetadata {
	extension := ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		extension = strings.ToLower(filename[idx+1:])
	}

	return FileMetadata{
		Filename:       filename,
		Extension:      extension,
		IsCompressible: compressibleExtensions[extension],
		IsCritical:     criticalExtensions[extension],
		AccessPattern:  "random",
	}
}

// Select picks a scheme for the file under the given policy. "cost" and
// "economy" are aliases for eco; anything else falls back to balanced.
func (e *Engine) Select(meta FileMetadata, policy string) Decision {
	switch strings.ToLower(policy) {
	case PolicyEco, "cost", "economy":
		return e.selectEco(meta)
	default:
		return e.selectBalanced(meta)
	}
}

// selectEco favors compression to reduce storage cost.
func (e *Engine) selectEco(meta FileMetadata) Decision {
	var algorithm string
	var cfg Config

	if meta.Size < smallFileLimit {
		algorithm = AlgorithmReplication
		cfg = Config{ReplicationFactor: 3, Compress: true}
	} else {
		algorithm = AlgorithmReedSolomon
		cfg = Config{DataShards: codec.DataShards, ParityShards: codec.ParityShards, Compress: true}
	}

	return Decision{
		Algorithm:    algorithm,
		Config:       cfg,
		Reasoning:    fmt.Sprintf("Eco policy: %s with compression for %s", algorithm, meta.Filename),
		CostEstimate: e.EstimateCost(algorithm, meta, cfg.Compress),
	}
}

// selectBalanced trades cost against reliability without compression.
func (e *Engine) selectBalanced(meta FileMetadata) Decision {
	var algorithm string
	var cfg Config

	if meta.Size < smallFileLimit {
		algorithm = AlgorithmReplication
		cfg = Config{ReplicationFactor: 3}
	} else {
		algorithm = AlgorithmReedSolomon
		cfg = Config{DataShards: codec.DataShards, ParityShards: codec.ParityShards}
	}

	return Decision{
		Algorithm:    algorithm,
		Config:       cfg,
		Reasoning:    fmt.Sprintf("Balanced: %s chosen for %s (%d bytes)", algorithm, meta.Filename, meta.Size),
		CostEstimate: e.EstimateCost(algorithm, meta, cfg.Compress),
	}
}

// Configure derives the parameters for an explicitly requested algorithm
// from the file metadata alone: critical files get a fourth replica, and
// compression mirrors compressibility.
func (e *Engine) Configure(algorithm string, meta FileMetadata) (Config, error) {
	switch algorithm {
	case AlgorithmReplication:
		factor := 3
		if meta.IsCritical {
			factor = 4
		}
		return Config{ReplicationFactor: factor, Compress: meta.IsCompressible}, nil
	case AlgorithmReedSolomon:
		return Config{
			DataShards:   codec.DataShards,
			ParityShards: codec.ParityShards,
			Compress:     meta.IsCompressible,
		}, nil
	default:
		return Config{}, fmt.Errorf("%w: unknown algorithm %q", codec.ErrUnsupportedConfig, algorithm)
	}
}

// EstimateCost returns the storage cost as a multiplier of the raw file
// size, rounded to two decimals. An estimate, not a billing figure.
func (e *Engine) EstimateCost(algorithm string, meta FileMetadata, compress bool) float64 {
	cost := 1.0
	switch algorithm {
	case AlgorithmReplication:
		cost = replicationBaseCost
	case AlgorithmReedSolomon:
		cost = reedSolomonBaseCost
	}

	if meta.Size > largeFileLimit {
		cost *= 0.9
	}
	if compress {
		cost *= 0.7
	}

	return math.Round(cost*100) / 100
}

// NormalizeAlgorithm parses a caller-supplied algorithm override. It
// strips a "+compress" suffix, maps loose spellings to canonical names and
// returns "" when the caller asked for automatic selection. The returned
// name is not validated; Configure rejects unknown algorithms.
func NormalizeAlgorithm(raw string) (name string, compress bool) {
	name = strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(name, "+compress") {
		compress = true
		name = strings.ReplaceAll(name, "+compress", "")
	}

	switch {
	case name == "" || name == "auto" || name == "none":
		return "", compress
	case strings.Contains(name, "reed") && (strings.Contains(name, "solomon") || strings.Contains(name, "solo")):
		return AlgorithmReedSolomon, compress
	case name == "replication" || name == "replicate":
		return AlgorithmReplication, compress
	}
	return name, compress
}
