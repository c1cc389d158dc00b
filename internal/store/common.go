package store

import "encoding/binary"

const (
	ErrFailedBatchCommit = "failed to commit batch: %v"
)

// Prefix constants for all ledger tables
const (
	prefixCounter byte = iota + 1
	prefixRequest
	prefixRound
	prefixQuestion
	prefixDispute
	prefixRefund
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixCounter:
		return "counter"
	case prefixRequest:
		return "request"
	case prefixRound:
		return "round"
	case prefixQuestion:
		return "question"
	case prefixDispute:
		return "dispute"
	case prefixRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and the parts that follow it
func makeKey(prefix byte, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 1, size)
	key[0] = prefix
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// be64 encodes v big-endian so that keys sort numerically.
func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
