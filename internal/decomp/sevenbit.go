package decomp

// SevenBit unpacks a GSM-style 7-bit-packed byte stream (used by some
// journald/BITS string fields) back into one byte per character, each
// byte masked to its low 7 bits.
func SevenBit(data []byte, count int) []byte {
	out := make([]byte, 0, count)
	bitPos := 0
	for len(out) < count {
		byteIdx := bitPos / 8
		bitOff := bitPos % 8
		if byteIdx >= len(data) {
			break
		}

		var value int
		if bitOff <= 1 {
			value = int(data[byteIdx]>>uint(bitOff)) & 0x7f
		} else {
			lo := int(data[byteIdx]) >> uint(bitOff)
			hi := 0
			if byteIdx+1 < len(data) {
				hi = int(data[byteIdx+1]) << uint(8-bitOff)
			}
			value = (lo | hi) & 0x7f
		}

		out = append(out, byte(value))
		bitPos += 7
	}
	return out
}
