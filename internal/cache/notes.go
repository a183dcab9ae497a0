package cache

import (
	"runtime"

	"golang.org/x/text/transform"
)

// lineSeparator is the platform line separator notes are normalized to.
var lineSeparator = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// newlineNormalizer rewrites "\r\n" and lone "\r" to sep.
// Hosts such as PowerPoint separate paragraphs with a bare carriage return.
type newlineNormalizer struct {
	transform.NopResetter
	sep []byte
}

// Transform implements transform.Transformer.
func (n newlineNormalizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c != '\r' {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		consumed := 1
		if nSrc+1 < len(src) {
			if src[nSrc+1] == '\n' {
				consumed = 2
			}
		} else if !atEOF {
			// A trailing '\r' may be the first half of "\r\n".
			return nDst, nSrc, transform.ErrShortSrc
		}

		if nDst+len(n.sep) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], n.sep)
		nSrc += consumed
	}
	return nDst, nSrc, nil
}

// normalizeNewlines converts every carriage return sequence in s to sep.
func normalizeNewlines(s, sep string) string {
	out, _, err := transform.String(newlineNormalizer{sep: []byte(sep)}, s)
	if err != nil {
		// The transformer never reports errors on complete input.
		return s
	}
	return out
}
