package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrShardNotFound = errors.New("shard not found")
	ErrFileNotFound  = errors.New("file not found")
	ErrUnknownNode   = errors.New("unknown storage node")
)

// Store persists shards on disk, one directory per storage node. Each node
// directory mirrors a bucket: shard objects live under <node>/shards/ and
// are named <fileID>_shard_NNN.cosm.
type Store struct {
	basePath string
	nodes    []string
	mu       sync.RWMutex
}

// NewStore creates the node directories and returns a store over them.
func NewStore(basePath string, nodes []string) (*Store, error) {
	if len(nodes) == 0 {
		return nil, errors.New("at least one storage node is required")
	}
	for _, node := range nodes {
		if err := os.MkdirAll(filepath.Join(basePath, node, "shards"), 0755); err != nil {
			return nil, err
		}
	}

	return &Store{
		basePath: basePath,
		nodes:    append([]string(nil), nodes...),
	}, nil
}

// Nodes returns the configured node ids in placement order.
func (s *Store) Nodes() []string {
	return append([]string(nil), s.nodes...)
}

// ShardObjectName builds the canonical object name for a shard.
func ShardObjectName(fileID string, index int) string {
	return fmt.Sprintf("%s_shard_%03d.cosm", fileID, index)
}

// PutShard writes a shard object to a node and returns the object name.
func (s *Store) PutShard(ctx context.Context, nodeID, fileID string, index int, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knownNode(nodeID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}

	name := ShardObjectName(fileID, index)
	if err := os.WriteFile(s.shardPath(nodeID, name), data, 0644); err != nil {
		return "", err
	}
	return name, nil
}

// GetShard reads a shard object from a node.
func (s *Store) GetShard(ctx context.Context, nodeID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.shardPath(nodeID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s on %s", ErrShardNotFound, name, nodeID)
		}
		return nil, err
	}
	return data, nil
}

// HasShard reports whether a shard object exists on a node.
func (s *Store) HasShard(ctx context.Context, nodeID, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.shardPath(nodeID, name))
	return err == nil
}

// DeleteShard removes a shard object from a node. Missing objects are not
// an error.
func (s *Store) DeleteShard(ctx context.Context, nodeID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.shardPath(nodeID, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteShardsByFileID removes every shard object of a file across all
// nodes and returns how many were deleted.
func (s *Store) DeleteShardsByFileID(ctx context.Context, fileID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	prefix := fileID + "_shard_"
	for _, node := range s.nodes {
		entries, err := os.ReadDir(filepath.Join(s.basePath, node, "shards"))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), prefix) {
				continue
			}
			if err := os.Remove(s.shardPath(node, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// NodeUsage returns the shard object count and total bytes held by a node.
func (s *Store) NodeUsage(ctx context.Context, nodeID string) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.knownNode(nodeID) {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}

	entries, err := os.ReadDir(filepath.Join(s.basePath, nodeID, "shards"))
	if err != nil {
		return 0, 0, err
	}

	count := 0
	var used int64
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		used += info.Size()
	}
	return count, used, nil
}

func (s *Store) shardPath(nodeID, name string) string {
	return filepath.Join(s.basePath, nodeID, "shards", name)
}

func (s *Store) knownNode(nodeID string) bool {
	for _, node := range s.nodes {
		if node == nodeID {
			return true
		}
	}
	return false
}
