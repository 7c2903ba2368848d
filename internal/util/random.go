package util

import "math/rand/v2"

// DisplayIDPrefix is the prefix used for generated user display identifiers.
const DisplayIDPrefix = "askely_"

// GenerateRandomID generates a random ID in the form "{prefix}{hex}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random lowercase hex string of the given
// length. Uses math/rand/v2; the IDs are opaque handles, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = hexChars[rand.IntN(len(hexChars))]
	}
	return string(buf)
}

// GenerateDisplayID generates a public user handle with the "askely_" prefix.
func GenerateDisplayID() string {
	return GenerateRandomID(DisplayIDPrefix, 8)
}
