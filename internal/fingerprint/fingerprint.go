// Package fingerprint derives content hashes for slides and presentations.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/smorand/slides-mirror/internal/host"
)

// Slide is the content hash of a single slide.
type Slide string

// Presentation selects the cache directory of one presentation version.
type Presentation string

// Shape flags in the encoded stream.
const (
	tagNotesPage byte = 'N'
	tagSlide     byte = 'S'
	tagText      byte = 'T'
	tagNoText    byte = '-'
)

// ForSlide hashes the slide's notes-page shapes followed by its own shapes.
// Each shape contributes its geometry and, when it bears text, the text.
// Variable-length fields are length-prefixed so distinct shape sets never
// encode to the same byte string.
func ForSlide(content host.SlideContent) Slide {
	h := sha256.New()
	var buf [8]byte

	writeFloat := func(f float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeShapes := func(section byte, shapes []host.Shape) {
		h.Write([]byte{section})
		binary.BigEndian.PutUint64(buf[:], uint64(len(shapes)))
		h.Write(buf[:])
		for _, s := range shapes {
			writeFloat(s.Left)
			writeFloat(s.Top)
			writeFloat(s.Width)
			writeFloat(s.Height)
			if !s.HasText {
				h.Write([]byte{tagNoText})
				continue
			}
			h.Write([]byte{tagText})
			binary.BigEndian.PutUint64(buf[:], uint64(len(s.Text)))
			h.Write(buf[:])
			h.Write([]byte(s.Text))
		}
	}

	writeShapes(tagNotesPage, content.NotesPage)
	writeShapes(tagSlide, content.Slide)

	return Slide(hex.EncodeToString(h.Sum(nil)))
}

// ForPresentation hashes the presentation's resolved path and, when known,
// its last-modified marker.
func ForPresentation(id host.Identity) Presentation {
	h := sha256.New()
	h.Write([]byte(id.Path))
	if id.Version != "" {
		h.Write([]byte{0})
		h.Write([]byte(id.Version))
	}
	return Presentation(hex.EncodeToString(h.Sum(nil)))
}

// Short returns a prefix suitable for log output.
func (p Presentation) Short() string {
	if len(p) > 12 {
		return string(p[:12])
	}
	return string(p)
}
