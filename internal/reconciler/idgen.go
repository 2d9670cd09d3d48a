package reconciler

import "strings"

// base36Chars mirrors utils.int_to_alphanumeric's alphabet: 0-9 then
// A-Z, giving a 36-symbol alphanumeric encoding.
const base36Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Base36 ports utils.int_to_alphanumeric: encodes n in base 36 using
// base36Chars, left-pads with '0' to width, then truncates to width
// from the left if the encoding overflowed it. That truncate-from-left
// behavior looks like a bug in the original (it silently drops the
// most significant digits once a counter exceeds 36^width), but it is
// preserved here verbatim since xmatch_id uniqueness in practice never
// approaches that many matches in a single year.
func Base36(n uint64, width int) string {
	if width <= 0 {
		width = 1
	}
	if n == 0 {
		return strings.Repeat("0", width-1) + string(base36Chars[0])
	}

	var buf []byte
	for n > 0 {
		buf = append(buf, base36Chars[n%36])
		n /= 36
	}
	// buf is least-significant-digit-first; reverse for normal order.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}

	s := string(buf)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	if len(s) > width {
		s = s[len(s)-width:]
	}
	return s
}

// ParseBase36 is Base36's inverse, used only by tests to round-trip
// small identifiers (spec.md §8 property 6) — it assumes no
// truncation occurred, i.e. the encoded value never overflowed width.
func ParseBase36(s string) uint64 {
	var n uint64
	for _, c := range s {
		idx := strings.IndexRune(base36Chars, c)
		if idx < 0 {
			continue
		}
		n = n*36 + uint64(idx)
	}
	return n
}
