package joint

import "crypto/rand"

// roomIDAlphabet excludes visually ambiguous characters (0/O, 1/I/l) since
// room ids double as join codes a person might read aloud or type by hand.
const roomIDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// roomIDLength of 6 over a 32-symbol alphabet gives 32^6 (≈1.07 billion)
// possible ids, negligible collision odds for any plausible concurrent
// room count; roomRegistry.has is still consulted so a collision is
// simply regenerated rather than relied upon never to happen.
const roomIDLength = 6

// generateRoomID draws a random room id from crypto/rand rather than
// math/rand: ids are handed to clients as join codes, and a predictable
// PRNG seed would make them guessable.
func generateRoomID() (string, error) {
	buf := make([]byte, roomIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := make([]byte, roomIDLength)
	for i, b := range buf {
		id[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(id), nil
}
