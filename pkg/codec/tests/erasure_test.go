package codec_test

import (
	"testing"

	"github.com/cosmeon-io/cosmeon/pkg/codec"
	"github.com/cosmeon-io/cosmeon/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFixture(t *testing.T, data []byte) [][]byte {
	shards, err := codec.EncodeErasure(data, 3, 2)
	require.NoError(t, err)
	require.Len(t, shards, codec.TotalShards)
	return shards
}

func withhold(shards [][]byte, indices ...int) [][]byte {
	out := make([][]byte, len(shards))
	copy(out, shards)
	for _, idx := range indices {
		out[idx] = nil
	}
	return out
}

func TestEncodeErasureLayout(t *testing.T) {
	// 15 bytes with k=3 gives a block size of exactly 5
	data := []byte("123456789012345")
	shards := encodeFixture(t, data)

	for i, shard := range shards {
		assert.Len(t, shard, 5, "shard %d", i)
	}
	assert.Equal(t, []byte("12345"), shards[0])
	assert.Equal(t, []byte("67890"), shards[1])
	assert.Equal(t, []byte("12345"), shards[2])

	for i := 0; i < 5; i++ {
		assert.Equal(t, shards[0][i]^shards[1][i], shards[3][i])
		assert.Equal(t, shards[0][i]^shards[2][i], shards[4][i])
	}
}

func TestEncodeErasurePadsFinalBlock(t *testing.T) {
	data := []byte("1234567") // block size 3, last block padded with two zeros
	shards := encodeFixture(t, data)

	assert.Equal(t, []byte{'7', 0, 0}, shards[2])

	decoded, err := codec.DecodeErasure(shards, 3, 2, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestEncodeErasureRejectsOtherConfigs(t *testing.T) {
	for _, pair := range [][2]int{{2, 2}, {3, 1}, {4, 2}, {0, 0}} {
		_, err := codec.EncodeErasure([]byte("data"), pair[0], pair[1])
		assert.ErrorIs(t, err, codec.ErrUnsupportedConfig, "k=%d m=%d", pair[0], pair[1])
	}

	_, err := codec.DecodeErasure(make([][]byte, 5), 3, 1, 4)
	assert.ErrorIs(t, err, codec.ErrUnsupportedConfig)
}

func TestDecodeErasureRoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 14, 15, 16, 1024, 100_000} {
		data := testutil.RandomBytes(t, size)
		shards := encodeFixture(t, data)

		decoded, err := codec.DecodeErasure(shards, 3, 2, size)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, data, decoded, "size %d", size)
	}
}

func TestDecodeErasureAnySingleShardMissing(t *testing.T) {
	data := testutil.RandomBytes(t, 1000)
	shards := encodeFixture(t, data)

	for missing := 0; missing < codec.TotalShards; missing++ {
		decoded, err := codec.DecodeErasure(withhold(shards, missing), 3, 2, len(data))
		require.NoError(t, err, "missing shard %d", missing)
		assert.Equal(t, data, decoded, "missing shard %d", missing)
	}
}

func TestDecodeErasureRecoverableDoubleErasures(t *testing.T) {
	data := testutil.RandomBytes(t, 500)
	shards := encodeFixture(t, data)

	recoverable := [][]int{{3, 4}, {0, 3}, {0, 4}, {1, 4}, {2, 3}, {1, 2}}
	for _, missing := range recoverable {
		decoded, err := codec.DecodeErasure(withhold(shards, missing...), 3, 2, len(data))
		require.NoError(t, err, "missing %v", missing)
		assert.Equal(t, data, decoded, "missing %v", missing)
	}
}

func TestDecodeErasureUnrecoverableDoubleErasures(t *testing.T) {
	data := testutil.RandomBytes(t, 500)
	shards := encodeFixture(t, data)

	// Each of these patterns leaves three shards but breaks the recovery
	// equations: the decoder must fail, never zero-fill.
	unrecoverable := [][]int{{0, 1}, {0, 2}, {1, 3}, {2, 4}}
	for _, missing := range unrecoverable {
		_, err := codec.DecodeErasure(withhold(shards, missing...), 3, 2, len(data))
		assert.ErrorIs(t, err, codec.ErrInsufficientShards, "missing %v", missing)
	}
}

func TestDecodeErasureBelowThreshold(t *testing.T) {
	data := testutil.RandomBytes(t, 300)
	shards := encodeFixture(t, data)

	_, err := codec.DecodeErasure(withhold(shards, 0, 1, 2), 3, 2, len(data))
	assert.ErrorIs(t, err, codec.ErrInsufficientShards)

	_, err = codec.DecodeErasure(make([][]byte, codec.TotalShards), 3, 2, len(data))
	assert.ErrorIs(t, err, codec.ErrInsufficientShards)
}

func TestDecodeErasureWorkedExample(t *testing.T) {
	// 15-byte payload, shards 1 and 4 withheld, must reconstruct exactly
	data := []byte("abcdefghijklmno")
	shards := encodeFixture(t, data)

	decoded, err := codec.DecodeErasure(withhold(shards, 1, 4), 3, 2, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeErasureEmptyPayload(t *testing.T) {
	shards := encodeFixture(t, nil)
	for _, shard := range shards {
		assert.Empty(t, shard)
	}

	decoded, err := codec.DecodeErasure(shards, 3, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestFallbackRejectsUnverifiableOutput(t *testing.T) {
	// The library fallback solves a different parity system than the XOR
	// encoder; its output must be rejected when it does not match the
	// recorded shard hashes.
	data := testutil.RandomBytes(t, 600)
	shards := encodeFixture(t, data)

	hashes := make([]string, codec.TotalShards)
	for i, shard := range shards {
		hashes[i] = codec.ComputeHash(shard)
	}

	for _, missing := range [][]int{{0, 1}, {0, 2}} {
		_, err := codec.DecodeErasureVerified(withhold(shards, missing...), 3, 2, len(data), hashes)
		assert.ErrorIs(t, err, codec.ErrInsufficientShards, "missing %v", missing)
	}
}

func TestFallbackMatchesDirectPath(t *testing.T) {
	data := testutil.RandomBytes(t, 600)
	shards := encodeFixture(t, data)

	hashes := make([]string, codec.TotalShards)
	for i, shard := range shards {
		hashes[i] = codec.ComputeHash(shard)
	}

	// Whenever the direct rules apply, the verified entry point must return
	// exactly what the direct path returns.
	for _, missing := range [][]int{{}, {0}, {1}, {2}, {3}, {4}, {1, 4}, {2, 3}, {1, 2}} {
		direct, directErr := codec.DecodeErasure(withhold(shards, missing...), 3, 2, len(data))
		require.NoError(t, directErr, "missing %v", missing)

		verified, err := codec.DecodeErasureVerified(withhold(shards, missing...), 3, 2, len(data), hashes)
		require.NoError(t, err, "missing %v", missing)
		assert.Equal(t, direct, verified, "missing %v", missing)
	}
}

func TestFallbackDisabledWithoutHashes(t *testing.T) {
	data := testutil.RandomBytes(t, 200)
	shards := encodeFixture(t, data)

	_, err := codec.DecodeErasureVerified(withhold(shards, 0, 1), 3, 2, len(data), nil)
	assert.ErrorIs(t, err, codec.ErrInsufficientShards)
}
