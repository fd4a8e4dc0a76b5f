package wire

import "github.com/cespare/xxhash/v2"

// Checksum computes the xxhash64 digest carried by FetchResponse.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}
