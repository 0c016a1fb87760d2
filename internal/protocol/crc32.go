package protocol

import "hash/crc32"

// Checksum computes the CRC32 (IEEE polynomial) over plaintext payload
// bytes, per spec.md §4.7: object and file payloads carry a CRC32 over
// the plaintext, and receivers must reject on mismatch.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyChecksum reports whether data's CRC32 matches want.
func VerifyChecksum(data []byte, want uint32) bool {
	return Checksum(data) == want
}
