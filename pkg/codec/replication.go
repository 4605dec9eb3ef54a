package codec

// EncodeReplication produces factor identical copies of data. Each copy is
// an independent buffer so shards can be handed to concurrent uploaders.
func EncodeReplication(data []byte, factor int) [][]byte {
	shards := make([][]byte, factor)
	for i := range shards {
		shard := make([]byte, len(data))
		copy(shard, data)
		shards[i] = shard
	}
	return shards
}

// DecodeReplication returns the first present replica. A nil entry marks a
// shard that could not be fetched.
func DecodeReplication(shards [][]byte) ([]byte, error) {
	for _, shard := range shards {
		if shard != nil {
			return shard, nil
		}
	}
	return nil, ErrNoAvailableReplica
}
