package password

import (
	"encoding/base64"
	"strconv"
	"strings"
)

const (
	phcAlgorithm = "argon2id"
	phcVersion   = 19
)

var phcEncoding = base64.RawStdEncoding

// phcHash is the parsed form of
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
type phcHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h phcHash) String() string {
	var b strings.Builder
	b.Grow(64 + phcEncoding.EncodedLen(len(h.salt)) + phcEncoding.EncodedLen(len(h.key)))
	b.WriteString("$" + phcAlgorithm + "$v=")
	b.WriteString(strconv.Itoa(phcVersion))
	b.WriteString("$m=")
	b.WriteString(strconv.FormatUint(uint64(h.memory), 10))
	b.WriteString(",t=")
	b.WriteString(strconv.FormatUint(uint64(h.time), 10))
	b.WriteString(",p=")
	b.WriteString(strconv.FormatUint(uint64(h.threads), 10))
	b.WriteByte('$')
	b.WriteString(phcEncoding.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(phcEncoding.EncodeToString(h.key))
	return b.String()
}

// params reports the cost the hash was produced with.
func (h phcHash) params() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   h.memory,
		Iterations:  h.time,
		Parallelism: h.threads,
		SaltLength:  uint32(len(h.salt)), // #nosec G115 -- bounded by parsePHC.
		KeyLength:   uint32(len(h.key)),  // #nosec G115 -- bounded by parsePHC.
	}
}

func parsePHC(s string) (phcHash, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcAlgorithm {
		return phcHash{}, ErrInvalidHash
	}
	if fields[2] != "v="+strconv.Itoa(phcVersion) {
		return phcHash{}, ErrInvalidHash
	}

	var h phcHash
	seen := 0
	for _, kv := range strings.Split(fields[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return phcHash{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			return phcHash{}, ErrInvalidHash
		}
		switch name {
		case "m":
			h.memory = uint32(n)
		case "t":
			h.time = uint32(n)
		case "p":
			if n > 255 {
				return phcHash{}, ErrInvalidHash
			}
			h.threads = uint8(n)
		default:
			return phcHash{}, ErrInvalidHash
		}
		seen++
	}
	if seen != 3 || h.memory == 0 || h.time == 0 || h.threads == 0 {
		return phcHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = phcEncoding.DecodeString(fields[4]); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	if h.key, err = phcEncoding.DecodeString(fields[5]); err != nil {
		return phcHash{}, ErrInvalidHash
	}
	if len(h.salt) < 8 || len(h.salt) > 64 || len(h.key) < 16 || len(h.key) > 128 {
		return phcHash{}, ErrInvalidHash
	}
	return h, nil
}
