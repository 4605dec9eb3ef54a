package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cosmeon-io/cosmeon/pkg/cluster"
	"github.com/cosmeon-io/cosmeon/pkg/codec"
	"github.com/cosmeon-io/cosmeon/pkg/engine"
	"github.com/cosmeon-io/cosmeon/pkg/reconstruct"
)

var ErrEmptyFile = errors.New("empty file uploaded")

// Simulated per-node capacities, varied for realism in status reports.
var nodeCapacitiesGB = []int64{45, 50, 55, 60, 48}

// Manager orchestrates the full file lifecycle: scheme selection,
// encoding, shard placement, availability assessment and reconstruction.
// The codec and engine stay pure; all I/O funnels through here.
type Manager struct {
	store    *Store
	meta     *MetadataStore
	engine   *engine.Engine
	registry *cluster.Registry
	planner  *reconstruct.Planner
	logger   *zap.Logger
}

func NewManager(store *Store, meta *MetadataStore, registry *cluster.Registry, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		meta:     meta,
		engine:   engine.New(),
		registry: registry,
		planner:  reconstruct.NewPlanner(registry),
		logger:   logger,
	}
}

// Registry exposes the health registry handle for callers that simulate
// node failures.
func (m *Manager) Registry() *cluster.Registry {
	return m.registry
}

// UploadResult summarizes a completed upload.
type UploadResult struct {
	FileID             string      `json:"file_id"`
	Algorithm          string      `json:"algorithm"`
	Shards             []ShardInfo `json:"shards"`
	StorageCost        float64     `json:"storage_cost"`
	CanSurviveFailures int         `json:"can_survive_failures"`
}

// Upload encodes a file under the selected scheme and distributes its
// shards across the storage nodes. algorithm may name an explicit override
// (optionally with a "+compress" suffix) or be empty for policy-driven
// selection.
func (m *Manager) Upload(ctx context.Context, filename string, data []byte, algorithm, policy string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	meta := m.engine.Analyze(filename)
	meta.Size = int64(len(data))

	decision, err := m.decide(meta, algorithm, policy)
	if err != nil {
		return nil, err
	}

	payload := data
	if decision.Config.Compress {
		payload, err = codec.Compress(data)
		if err != nil {
			return nil, err
		}
	}

	shards, err := m.encode(payload, decision)
	if err != nil {
		return nil, err
	}

	fileID := uuid.New().String()
	infos, err := m.distribute(ctx, fileID, shards)
	if err != nil {
		return nil, err
	}

	record := &FileRecord{
		ID:           fileID,
		Filename:     filename,
		OriginalSize: int64(len(payload)),
		Algorithm:    decision.Algorithm,
		Config:       decision.Config,
		Shards:       infos,
		CostEstimate: decision.CostEstimate,
		PolicyUsed:   policy,
		UploadedAt:   time.Now().UTC(),
	}
	if err := m.meta.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store file metadata: %w", err)
	}

	m.logger.Info("file stored",
		zap.String("file_id", fileID),
		zap.String("algorithm", decision.Algorithm),
		zap.Int("shards", len(infos)),
		zap.Float64("cost_estimate", decision.CostEstimate))

	return &UploadResult{
		FileID:             fileID,
		Algorithm:          decision.Algorithm,
		Shards:             infos,
		StorageCost:        decision.CostEstimate,
		CanSurviveFailures: failureTolerance(decision),
	}, nil
}

func (m *Manager) decide(meta engine.FileMetadata, algorithm, policy string) (engine.Decision, error) {
	name, compress := engine.NormalizeAlgorithm(algorithm)
	if name == "" {
		return m.engine.Select(meta, policy), nil
	}

	cfg, err := m.engine.Configure(name, meta)
	if err != nil {
		return engine.Decision{}, err
	}
	if compress {
		cfg.Compress = true
	}

	return engine.Decision{
		Algorithm:    name,
		Config:       cfg,
		Reasoning:    fmt.Sprintf("User specified %s", name),
		CostEstimate: m.engine.EstimateCost(name, meta, cfg.Compress),
	}, nil
}

func (m *Manager) encode(payload []byte, decision engine.Decision) ([][]byte, error) {
	switch decision.Algorithm {
	case engine.AlgorithmReplication:
		factor := decision.Config.ReplicationFactor
		if factor <= 0 {
			factor = 3
		}
		return codec.EncodeReplication(payload, factor), nil
	case engine.AlgorithmReedSolomon:
		return codec.EncodeErasure(payload, decision.Config.DataShards, decision.Config.ParityShards)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", codec.ErrUnsupportedConfig, decision.Algorithm)
	}
}

// distribute places one shard per node when the erasure layout and node
// count line up, falling back to round-robin otherwise.
func (m *Manager) distribute(ctx context.Context, fileID string, shards [][]byte) ([]ShardInfo, error) {
	nodes := m.store.Nodes()
	oneShardPerNode := len(shards) == codec.TotalShards && len(nodes) >= codec.TotalShards

	now := time.Now().UTC()
	infos := make([]ShardInfo, 0, len(shards))
	for i, shard := range shards {
		node := nodes[i%len(nodes)]
		if oneShardPerNode {
			node = nodes[i]
		}

		name, err := m.store.PutShard(ctx, node, fileID, i, shard)
		if err != nil {
			return nil, fmt.Errorf("failed to store shard %d on %s: %w", i, node, err)
		}

		infos = append(infos, ShardInfo{
			Node:       node,
			Filename:   name,
			Size:       int64(len(shard)),
			ShardIndex: i,
			Hash:       codec.ComputeHash(shard),
			UploadedAt: now,
		})
	}
	return infos, nil
}

func failureTolerance(decision engine.Decision) int {
	switch decision.Algorithm {
	case engine.AlgorithmReplication:
		factor := decision.Config.ReplicationFactor
		if factor <= 0 {
			factor = 3
		}
		return factor - 1
	case engine.AlgorithmReedSolomon:
		if decision.Config.ParityShards > 0 {
			return decision.Config.ParityShards
		}
		return codec.ParityShards
	}
	return 0
}

// ListFiles returns the normalized records of every stored file.
func (m *Manager) ListFiles(ctx context.Context) ([]FileRecord, error) {
	return m.meta.List(ctx)
}

// GetRecord returns one normalized file record.
func (m *Manager) GetRecord(ctx context.Context, fileID string) (*FileRecord, error) {
	return m.meta.Get(ctx, fileID)
}

// ShardStatus reports the availability of one placed shard.
type ShardStatus struct {
	ShardIndex       int    `json:"shard_index"`
	Node             string `json:"node"`
	Status           string `json:"status"`
	Size             int64  `json:"size"`
	SimulatedFailure bool   `json:"simulated_failure"`
}

// FileStatus is the health report for one file.
type FileStatus struct {
	FileID          string             `json:"file_id"`
	Filename        string             `json:"filename"`
	Algorithm       string             `json:"algorithm"`
	ShardStatus     []ShardStatus      `json:"shard_status"`
	OnlineShards    int                `json:"online_shards"`
	NeededShards    int                `json:"needed_shards"`
	Reconstructable bool               `json:"reconstructable"`
	Health          reconstruct.Health `json:"health"`
}

// FileStatus checks every shard of a file against the health registry and
// the shard store and classifies overall reconstructability.
func (m *Manager) FileStatus(ctx context.Context, fileID string) (*FileStatus, error) {
	record, err := m.meta.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	statuses := make([]ShardStatus, 0, len(record.Shards))
	online := 0
	for _, shard := range record.Shards {
		failed := m.registry.IsFailed(shard.Node)
		status := "offline"
		if !failed && m.store.HasShard(ctx, shard.Node, shard.Filename) {
			status = "online"
			online++
		}
		statuses = append(statuses, ShardStatus{
			ShardIndex:       shard.ShardIndex,
			Node:             shard.Node,
			Status:           status,
			Size:             shard.Size,
			SimulatedFailure: failed,
		})
	}

	needed := reconstruct.NeededCount(record.Algorithm, record.Config)
	return &FileStatus{
		FileID:          fileID,
		Filename:        record.Filename,
		Algorithm:       record.Algorithm,
		ShardStatus:     statuses,
		OnlineShards:    online,
		NeededShards:    needed,
		Reconstructable: online >= needed,
		Health:          reconstruct.Classify(online, needed),
	}, nil
}

// ReconstructInfo describes a reconstruction attempt without performing
// the decode.
type ReconstructInfo struct {
	FileID          string `json:"file_id"`
	Filename        string `json:"filename"`
	Algorithm       string `json:"algorithm"`
	TotalShards     int    `json:"total_shards"`
	AvailableShards int    `json:"available_shards"`
	MissingShards   []int  `json:"missing_shards"`
	NeededShards    int    `json:"needed_shards"`
	CanReconstruct  bool   `json:"can_reconstruct"`
	OriginalSize    int64  `json:"original_size"`
	DownloadURL     string `json:"download_url"`
}

// ReconstructInfo assesses shard availability for a file.
func (m *Manager) ReconstructInfo(ctx context.Context, fileID string) (*ReconstructInfo, error) {
	record, err := m.meta.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	missing := make([]int, 0, len(record.Shards))
	available := 0
	for _, shard := range record.Shards {
		if m.registry.IsFailed(shard.Node) || !m.store.HasShard(ctx, shard.Node, shard.Filename) {
			missing = append(missing, shard.ShardIndex)
			continue
		}
		available++
	}

	needed := reconstruct.NeededCount(record.Algorithm, record.Config)
	return &ReconstructInfo{
		FileID:          fileID,
		Filename:        record.Filename,
		Algorithm:       record.Algorithm,
		TotalShards:     len(record.Shards),
		AvailableShards: available,
		MissingShards:   missing,
		NeededShards:    needed,
		CanReconstruct:  available >= needed,
		OriginalSize:    record.OriginalSize,
		DownloadURL:     fmt.Sprintf("/file/%s/reconstruct", fileID),
	}, nil
}

// Reconstruct fetches the surviving shards of a file and rebuilds the
// original bytes. Shards on failed nodes are skipped; the rest are fetched
// concurrently, one goroutine per shard, and the complete result set is
// handed to the planner. Returns the bytes and the original filename.
func (m *Manager) Reconstruct(ctx context.Context, fileID string) ([]byte, string, error) {
	record, err := m.meta.Get(ctx, fileID)
	if err != nil {
		return nil, "", err
	}

	results := make([][]byte, len(record.Shards))
	var wg sync.WaitGroup
	for _, shard := range record.Shards {
		if shard.ShardIndex < 0 || shard.ShardIndex >= len(results) {
			continue
		}
		if m.registry.IsFailed(shard.Node) {
			m.logger.Warn("skipping shard on failed node",
				zap.String("file_id", fileID),
				zap.Int("shard_index", shard.ShardIndex),
				zap.String("node", shard.Node))
			continue
		}

		wg.Add(1)
		go func(shard ShardInfo) {
			defer wg.Done()
			data, err := m.store.GetShard(ctx, shard.Node, shard.Filename)
			if err != nil {
				m.logger.Warn("shard fetch failed",
					zap.String("file_id", fileID),
					zap.Int("shard_index", shard.ShardIndex),
					zap.Error(err))
				return
			}
			if shard.Hash != "" && !codec.VerifyHash(data, shard.Hash) {
				m.logger.Warn("shard failed integrity verification",
					zap.String("file_id", fileID),
					zap.Int("shard_index", shard.ShardIndex),
					zap.String("node", shard.Node))
				return
			}
			results[shard.ShardIndex] = data
		}(shard)
	}
	wg.Wait()

	data, err := m.planner.Reconstruct(record.Placements(), results, record.Algorithm, record.Config, int(record.OriginalSize))
	if err != nil {
		return nil, "", err
	}
	return data, record.Filename, nil
}

// DeleteFile removes a file's shards and metadata, returning the number of
// shard objects deleted.
func (m *Manager) DeleteFile(ctx context.Context, fileID string) (int, error) {
	record, err := m.meta.Get(ctx, fileID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, shard := range record.Shards {
		if err := m.store.DeleteShard(ctx, shard.Node, shard.Filename); err == nil {
			deleted++
		}
	}

	// Sweep up anything the record did not list.
	extra, _ := m.store.DeleteShardsByFileID(ctx, fileID)
	deleted += extra

	if err := m.meta.Delete(ctx, fileID); err != nil {
		return deleted, err
	}

	m.logger.Info("file deleted", zap.String("file_id", fileID), zap.Int("shards_deleted", deleted))
	return deleted, nil
}

// DeleteReport summarizes a cluster-wide purge.
type DeleteReport struct {
	TotalFiles    int      `json:"total_files"`
	DeletedFiles  int      `json:"deleted_files"`
	ShardsDeleted int      `json:"shards_deleted"`
	Errors        []string `json:"errors,omitempty"`
}

// DeleteAll removes every file and shard from the cluster.
func (m *Manager) DeleteAll(ctx context.Context) (*DeleteReport, error) {
	records, err := m.meta.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &DeleteReport{TotalFiles: len(records)}
	for _, record := range records {
		deleted, err := m.DeleteFile(ctx, record.ID)
		report.ShardsDeleted += deleted
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", record.ID, err))
			continue
		}
		report.DeletedFiles++
	}
	return report, nil
}

// NodeStatus describes one storage node for status reporting.
type NodeStatus struct {
	NodeID             string    `json:"node_id"`
	Status             string    `json:"status"`
	FilesCount         int       `json:"files_count"`
	CapacityGB         int64     `json:"capacity_gb"`
	CapacityBytes      int64     `json:"capacity_bytes"`
	UsedBytes          int64     `json:"used_bytes"`
	UtilizationPercent float64   `json:"utilization_percent"`
	AvailableBytes     int64     `json:"available_bytes"`
	LastChecked        time.Time `json:"last_checked"`
	SimulatedFailure   bool      `json:"simulated_failure"`
}

// ClusterStatus aggregates all node statuses.
type ClusterStatus struct {
	TotalNodes  int          `json:"total_nodes"`
	OnlineNodes int          `json:"online_nodes"`
	Nodes       []NodeStatus `json:"nodes"`
}

// NodesStatus reports capacity and utilization per node, derived from the
// persisted file records. Failed nodes report as offline and empty.
func (m *Manager) NodesStatus(ctx context.Context) (*ClusterStatus, error) {
	records, err := m.meta.List(ctx)
	if err != nil {
		return nil, err
	}

	usedByNode := make(map[string]int64)
	filesByNode := make(map[string]map[string]bool)
	for _, record := range records {
		for _, shard := range record.Shards {
			usedByNode[shard.Node] += shard.Size
			if filesByNode[shard.Node] == nil {
				filesByNode[shard.Node] = make(map[string]bool)
			}
			filesByNode[shard.Node][record.ID] = true
		}
	}

	now := time.Now().UTC()
	status := &ClusterStatus{}
	for i, node := range m.store.Nodes() {
		capacityGB := nodeCapacitiesGB[i%len(nodeCapacitiesGB)]
		capacityBytes := capacityGB * 1024 * 1024 * 1024
		failed := m.registry.IsFailed(node)

		ns := NodeStatus{
			NodeID:           node,
			Status:           "online",
			CapacityGB:       capacityGB,
			CapacityBytes:    capacityBytes,
			AvailableBytes:   capacityBytes,
			LastChecked:      now,
			SimulatedFailure: failed,
		}
		if failed {
			ns.Status = "offline"
		} else {
			used := usedByNode[node]
			ns.FilesCount = len(filesByNode[node])
			ns.UsedBytes = used
			ns.UtilizationPercent = utilization(used, capacityBytes)
			ns.AvailableBytes = capacityBytes - used
			status.OnlineNodes++
		}

		status.Nodes = append(status.Nodes, ns)
	}
	status.TotalNodes = len(status.Nodes)
	return status, nil
}

// utilization rounds small percentages with more precision so near-empty
// nodes do not all display as zero.
func utilization(used, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	pct := float64(used) / float64(capacity) * 100
	switch {
	case pct < 0.1:
		return roundTo(pct, 3)
	case pct < 1.0:
		return roundTo(pct, 2)
	default:
		return roundTo(pct, 1)
	}
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
