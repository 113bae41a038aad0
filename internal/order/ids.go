package order

import (
	"crypto/rand"
)

const UniqueIDPrefix = "ORD-"

// IDGenerator produces candidate unique ids. Collisions are handled by the
// caller.
type IDGenerator interface {
	NewUniqueID() string
}

type IDGeneratorFunc func() string

func (f IDGeneratorFunc) NewUniqueID() string { return f() }

// idByteLimit 是 256 以下最大的 36 的倍数，超出的字节丢弃以保持均匀分布
const (
	idAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength    = 8
	idByteLimit = 252
)

// RandomIDs is ORD- followed by 8 characters drawn uniformly from A-Z0-9.
var RandomIDs IDGenerator = IDGeneratorFunc(func() string {
	out := make([]byte, 0, len(UniqueIDPrefix)+idLength)
	out = append(out, UniqueIDPrefix...)
	buf := make([]byte, 2*idLength)
	for len(out) < cap(out) {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if b >= idByteLimit {
				continue
			}
			out = append(out, idAlphabet[int(b)%len(idAlphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out)
})
