// Package roomcode generates room codes and guest display names.
package roomcode

import (
	"fmt"
	"math/rand"
)

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodeLength is the fixed length of a room code.
const CodeLength = 4

// Generate returns a random 4-letter uppercase room code. Codes are not
// reserved; uniqueness is whoever commits the room first.
func Generate() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = letters[rand.Intn(len(letters))]
	}
	return string(buf)
}

// GuestName returns a display name for an anonymous player, Guest1000
// through Guest9999.
func GuestName() string {
	return fmt.Sprintf("Guest%d", 1000+rand.Intn(9000))
}
