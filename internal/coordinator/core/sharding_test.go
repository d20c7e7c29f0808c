package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShard_ReproducesInputByteForByte(t *testing.T) {
	input := []byte("delta\nalpha\ncharlie\nbravo\necho\n")

	shards := Shard(input, 4)
	require.Len(t, shards, 4)

	var rebuilt []byte
	for _, s := range shards {
		rebuilt = append(rebuilt, s...)
	}
	assert.Equal(t, input, rebuilt)
}

func TestShard_NeverSplitsALine(t *testing.T) {
	input := []byte("one\ntwo\nthree\nfour\nfive\nsix\nseven\n")
	shards := Shard(input, 3)

	for i, s := range shards {
		if len(s) == 0 {
			continue
		}
		assert.Equal(t, byte('\n'), s[len(s)-1], "shard %d does not end on a line boundary", i)
	}
}

func TestShard_SurplusShardsAreEmpty(t *testing.T) {
	input := []byte("only one line\n")
	shards := Shard(input, 4)

	require.Len(t, shards, 4)
	nonEmpty := 0
	for _, s := range shards {
		if len(s) > 0 {
			nonEmpty++
		}
	}
	assert.Equal(t, 1, nonEmpty)

	var rebuilt []byte
	for _, s := range shards {
		rebuilt = append(rebuilt, s...)
	}
	assert.Equal(t, input, rebuilt)
}

func TestShard_EmptyInputProducesEmptyShards(t *testing.T) {
	shards := Shard([]byte{}, 3)
	require.Len(t, shards, 3)
	for _, s := range shards {
		assert.Empty(t, s)
	}
}

func TestShard_Deterministic(t *testing.T) {
	input := []byte("a\nb\nc\nd\ne\nf\ng\nh\n")
	first := Shard(input, 3)
	second := Shard(input, 3)
	for i := range first {
		assert.True(t, bytes.Equal(first[i], second[i]))
	}
}

func TestShardName_ZeroPadded(t *testing.T) {
	assert.Equal(t, "shard-0000", ShardName(0))
	assert.Equal(t, "shard-0041", ShardName(41))
}
