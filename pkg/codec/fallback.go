package codec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// DecodeErasureVerified decodes with the direct XOR rules and, when those
// cannot solve the erasure pattern, retries with a general systematic
// Reed-Solomon codec over the five shard slots with explicit erasure
// positions.
//
// The library solves a Vandermonde parity system while the shards on disk
// carry XOR parity, so the library's output for a missing block is not
// trustworthy on its own. Fallback output is therefore accepted only when
// every reconstructed shard matches its recorded content hash; anything
// else surfaces as ErrInsufficientShards rather than silently corrupted
// bytes. hashes lists the expected hex digest per shard index and may be
// empty, which disables the fallback.
func DecodeErasureVerified(shards [][]byte, k, m int, originalSize int, hashes []string) ([]byte, error) {
	data, err := DecodeErasure(shards, k, m, originalSize)
	if err == nil {
		return data, nil
	}
	fallbackData, fallbackErr := decodeWithLibrary(shards, originalSize, hashes)
	if fallbackErr != nil {
		return nil, err
	}
	return fallbackData, nil
}

func decodeWithLibrary(shards [][]byte, originalSize int, hashes []string) ([]byte, error) {
	if len(shards) != TotalShards || len(hashes) < TotalShards {
		return nil, fmt.Errorf("%w: shard hashes unavailable for fallback verification", ErrInsufficientShards)
	}

	available := 0
	work := make([][]byte, TotalShards)
	for i, shard := range shards {
		if shard == nil {
			continue
		}
		available++
		// Reconstruct mutates its input, keep the caller's shards intact.
		work[i] = append([]byte(nil), shard...)
	}
	if available < DataShards {
		return nil, fmt.Errorf("%w: have %d shards, need %d", ErrInsufficientShards, available, DataShards)
	}

	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}
	if err := enc.Reconstruct(work); err != nil {
		return nil, fmt.Errorf("%w: library reconstruction failed: %v", ErrInsufficientShards, err)
	}

	for i, shard := range shards {
		if shard != nil {
			continue
		}
		if !VerifyHash(work[i], hashes[i]) {
			return nil, fmt.Errorf("%w: reconstructed shard %d failed integrity verification",
				ErrInsufficientShards, i)
		}
	}

	return joinBlocks(work[:DataShards], originalSize), nil
}
