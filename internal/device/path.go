package device

import (
	"fmt"
	"strconv"
	"strings"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// HardenedBit marks a hardened BIP-32 path element.
const HardenedBit uint32 = 0x80000000

// Hardened returns n with the hardened bit set.
func Hardened(n uint32) uint32 {
	return n | HardenedBit
}

// IsHardened reports whether n has the hardened bit set.
func IsHardened(n uint32) bool {
	return n&HardenedBit != 0
}

// ParsePath parses a BIP-32 path such as "m/84'/0'/0'/0/1". Both ' and h
// mark hardened elements.
func ParsePath(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) == 0 || (parts[0] != "m" && parts[0] != "M") {
		return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"path": s})
	}

	path := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := false
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H") {
			hardened = true
			p = p[:len(p)-1]
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil || uint32(n)&HardenedBit != 0 {
			return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"path": s, "element": p})
		}
		v := uint32(n)
		if hardened {
			v = Hardened(v)
		}
		path = append(path, v)
	}
	return path, nil
}

// FormatPath renders a path in m/44'/0'/0' notation.
func FormatPath(path []uint32) string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, n := range path {
		if IsHardened(n) {
			fmt.Fprintf(&sb, "/%d'", n&^HardenedBit)
			continue
		}
		fmt.Fprintf(&sb, "/%d", n)
	}
	return sb.String()
}
