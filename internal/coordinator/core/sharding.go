package core

import "fmt"

// ShardName returns the deterministic artifact name for shard index i of n,
// zero-padded so lexicographic and numeric order agree up to 10000 shards.
func ShardName(index int) string {
	return fmt.Sprintf("shard-%04d", index)
}

// Shard splits input into n byte ranges widened forward to the next line
// boundary (spec §4.3): every byte belongs to exactly one shard, no line is
// split across shards, and concatenating the returned slices reproduces
// input byte-for-byte. If n exceeds the number of lines, the surplus
// shards are empty.
func Shard(input []byte, n int) [][]byte {
	if n <= 0 {
		n = 1
	}
	shards := make([][]byte, n)
	if len(input) == 0 {
		for i := range shards {
			shards[i] = []byte{}
		}
		return shards
	}

	total := len(input)
	start := 0
	for i := 0; i < n; i++ {
		if i == n-1 {
			shards[i] = input[start:total]
			start = total
			continue
		}

		target := start + total/n
		if target > total {
			target = total
		}
		// Widen forward to the next line boundary, unless we're already at
		// or past the end of the input.
		end := target
		for end < total && end != 0 && input[end-1] != '\n' {
			end++
		}
		shards[i] = input[start:end]
		start = end
	}
	return shards
}
