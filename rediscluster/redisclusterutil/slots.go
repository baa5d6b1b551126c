package redisclusterutil

import (
	"github.com/howeyc/crc16"
)

// NumSlots is the number of hash slots in redis cluster.
const NumSlots = 1 << 14

// CRC16 calculates CRC16-CCITT (XMODEM variant: polynomial 0x1021, zero init, no reflection)
// the way redis cluster does.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crc16.CCITTFalseTable)
}

// Slot returns slot of a key.
// Key is hashed as is: hash tags ("{...}") are not extracted.
func Slot(key string) uint16 {
	return CRC16([]byte(key)) % NumSlots
}
