package wire

import "hash/crc32"

// Checksum computes the IEEE 802.3 CRC32 of data, continuing from a prior
// seed value. Callers compute the frame checksum in two steps per the
// wire format: Checksum(0, header[:12]) then Checksum(that, payload).
func Checksum(seed uint32, data []byte) uint32 {
	return crc32.Update(seed, crc32.IEEETable, data)
}
