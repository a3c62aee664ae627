package video

import "encoding/binary"

// NAL unit types this package cares about (H.264 table 7-1).
const (
	NALTypeIDR = 5
	NALTypeSPS = 7
	NALTypePPS = 8
)

// HasStartCode reports whether b begins with an Annex-B start code,
// either 00 00 01 or 00 00 00 01.
func HasStartCode(b []byte) bool {
	if len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return true
	}
	return len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1
}

// ConvertToAnnexB normalizes one video chunk to Annex-B framing. Chunks
// already carrying a start code pass through untouched, which makes the
// conversion idempotent. Length-prefixed chunks (4-byte big-endian record
// lengths) have every record rewritten behind a 4-byte start code. Chunks
// matching neither layout pass through unchanged.
func ConvertToAnnexB(b []byte) []byte {
	if len(b) < 4 || HasStartCode(b) {
		return b
	}
	// The whole chunk has to parse as length-prefixed records before any
	// rewriting happens, otherwise it is not ours to touch.
	off := 0
	records := 0
	for off+4 <= len(b) {
		n := int(binary.BigEndian.Uint32(b[off : off+4]))
		if n <= 0 || off+4+n > len(b) {
			return b
		}
		off += 4 + n
		records++
	}
	if off != len(b) || records == 0 {
		return b
	}

	out := make([]byte, 0, len(b))
	for off := 0; off+4 <= len(b); {
		n := int(binary.BigEndian.Uint32(b[off : off+4]))
		out = append(out, 0, 0, 0, 1)
		out = append(out, b[off+4:off+4+n]...)
		off += 4 + n
	}
	return out
}

// NALType returns the type of the first NAL unit in b, or -1 when no start
// code leads the buffer.
func NALType(b []byte) int {
	if len(b) >= 4 && b[0] == 0 && b[1] == 0 {
		if b[2] == 1 {
			return int(b[3] & 0x1F)
		}
		if b[2] == 0 && b[3] == 1 && len(b) > 4 {
			return int(b[4] & 0x1F)
		}
	}
	return -1
}

// SplitNALUnits splits an Annex-B buffer into its individual NAL units.
// Devices occasionally pack SPS and PPS into a single config chunk.
func SplitNALUnits(b []byte) [][]byte {
	var units [][]byte
	start := findStartCode(b, 0)
	for start >= 0 {
		next := findStartCode(b, start+3)
		if next < 0 {
			units = append(units, b[start:])
			break
		}
		units = append(units, b[start:next])
		start = next
	}
	return units
}

// findStartCode returns the index of the next start code at or after from.
func findStartCode(b []byte, from int) int {
	for i := from; i+2 < len(b); i++ {
		if b[i] != 0 || b[i+1] != 0 {
			continue
		}
		if b[i+2] == 1 {
			return i
		}
		if b[i+2] == 0 && i+3 < len(b) && b[i+3] == 1 {
			return i
		}
	}
	return -1
}
