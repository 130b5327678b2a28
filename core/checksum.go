package core

// Checksum computes the internet checksum (RFC 1071) of b. Words are read in
// network byte order and an odd trailing byte is padded with a zero low byte.
func Checksum(b []byte) uint16 {
	sum := wordSum(b)

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}

// ValidChecksum reports whether b, checksum field included, folds to 0xffff.
func ValidChecksum(b []byte) bool {
	return Checksum(b) == 0
}

func wordSum(b []byte) uint32 {
	var sum uint32

	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}

	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}

	return sum
}
