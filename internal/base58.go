package internal

// Base58 (Bitcoin alphabet): no 0, O, I or l, so codes survive being read aloud.
const (
	alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	base     = uint64(len(alphabet))
)

// EncodeID turns a numeric ID into its short code.
func EncodeID(id uint64) string {
	if id == 0 {
		return alphabet[:1]
	}

	// 11 digits hold any uint64 in base58.
	var buf [11]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = alphabet[id%base]
		id /= base
	}

	return string(buf[i:])
}
