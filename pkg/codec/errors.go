package codec

import "errors"

var (
	// ErrUnsupportedConfig indicates an algorithm or (k,m) pair the codec
	// does not implement. Retrying with the same parameters cannot succeed.
	ErrUnsupportedConfig = errors.New("unsupported codec configuration")

	// ErrInsufficientShards indicates the available shards cannot satisfy
	// the recovery equations. The caller may retry once more nodes recover.
	ErrInsufficientShards = errors.New("not enough shards to reconstruct")

	// ErrNoAvailableReplica is the replication-specific case of the above.
	ErrNoAvailableReplica = errors.New("no available replicas to reconstruct")

	// ErrCorruptData indicates decompression or integrity verification
	// failed after a structurally successful decode.
	ErrCorruptData = errors.New("corrupt data")
)
