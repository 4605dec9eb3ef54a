package codec

import "fmt"

// Erasure coding layout. Only the (3,2) configuration is supported: three
// contiguous data blocks followed by two XOR parity blocks.
const (
	DataShards   = 3
	ParityShards = 2
	TotalShards  = DataShards + ParityShards
)

// EncodeErasure splits data into DataShards contiguous blocks of
// ceil(len(data)/k) bytes, zero-padding the final block, and appends two
// parity blocks:
//
//	parity0 = block0 XOR block1
//	parity1 = block0 XOR block2
//
// The result is exactly [block0, block1, block2, parity0, parity1].
func EncodeErasure(data []byte, k, m int) ([][]byte, error) {
	if k != DataShards || m != ParityShards {
		return nil, fmt.Errorf("%w: only (%d,%d) erasure coding is supported, got k=%d m=%d",
			ErrUnsupportedConfig, DataShards, ParityShards, k, m)
	}

	blockSize := (len(data) + k - 1) / k

	blocks := make([][]byte, TotalShards)
	for i := 0; i < DataShards; i++ {
		block := make([]byte, blockSize)
		start := i * blockSize
		if start < len(data) {
			copy(block, data[start:])
		}
		blocks[i] = block
	}

	blocks[DataShards] = xorBlocks(blocks[0], blocks[1])
	blocks[DataShards+1] = xorBlocks(blocks[0], blocks[2])

	return blocks, nil
}

// DecodeErasure reconstructs the original data from available shards. The
// shards slice holds all TotalShards positions in order; a nil entry marks a
// missing shard. The result is truncated to originalSize bytes.
//
// Recovery uses only shards that were actually supplied. A data block
// recovered from one parity equation is never fed into another, so the
// missing pairs {0,1} and {0,2} are unrecoverable here even though they are
// linearly solvable. Callers that hold shard content hashes can attempt the
// library fallback via DecodeErasureVerified for those patterns.
func DecodeErasure(shards [][]byte, k, m int, originalSize int) ([]byte, error) {
	if k != DataShards || m != ParityShards {
		return nil, fmt.Errorf("%w: only (%d,%d) erasure coding is supported, got k=%d m=%d",
			ErrUnsupportedConfig, DataShards, ParityShards, k, m)
	}
	if len(shards) != TotalShards {
		return nil, fmt.Errorf("%w: expected %d shard positions, got %d",
			ErrUnsupportedConfig, TotalShards, len(shards))
	}

	available := 0
	blockSize := 0
	for _, shard := range shards {
		if shard != nil {
			available++
			blockSize = len(shard)
		}
	}
	if available < k {
		return nil, fmt.Errorf("%w: have %d shards, need %d", ErrInsufficientShards, available, k)
	}
	if blockSize == 0 {
		return []byte{}, nil
	}

	recovered := make([][]byte, DataShards)
	for i := 0; i < DataShards; i++ {
		recovered[i] = shards[i]
	}

	for i := 0; i < DataShards; i++ {
		if recovered[i] != nil {
			continue
		}
		block, err := recoverDataBlock(i, shards)
		if err != nil {
			return nil, err
		}
		recovered[i] = block
	}

	return joinBlocks(recovered, originalSize), nil
}

// recoverDataBlock applies the XOR recovery equations for one missing data
// block, consulting only originally supplied shards.
func recoverDataBlock(index int, shards [][]byte) ([]byte, error) {
	parity0 := shards[DataShards]
	parity1 := shards[DataShards+1]

	switch index {
	case 0:
		// parity0 = block0 XOR block1, parity1 = block0 XOR block2
		if shards[1] != nil && parity0 != nil {
			return xorBlocks(shards[1], parity0), nil
		}
		if shards[2] != nil && parity1 != nil {
			return xorBlocks(shards[2], parity1), nil
		}
	case 1:
		if shards[0] != nil && parity0 != nil {
			return xorBlocks(shards[0], parity0), nil
		}
	case 2:
		if shards[0] != nil && parity1 != nil {
			return xorBlocks(shards[0], parity1), nil
		}
	}
	return nil, fmt.Errorf("%w: data block %d is unrecoverable from the available shards",
		ErrInsufficientShards, index)
}

func xorBlocks(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func joinBlocks(blocks [][]byte, originalSize int) []byte {
	out := make([]byte, 0, len(blocks)*len(blocks[0]))
	for _, block := range blocks {
		out = append(out, block...)
	}
	if originalSize >= 0 && originalSize < len(out) {
		out = out[:originalSize]
	}
	return out
}
