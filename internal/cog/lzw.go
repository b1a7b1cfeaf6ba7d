package cog

// TIFF LZW differs from the GIF variant in Go's compress/lzw: the code width
// grows one code early ("early change"), so the standard package rejects TIFF
// streams with invalid-code errors.

import (
	"errors"
)

const (
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstCode = 258
	lzwMaxCodes  = 4096
	lzwMaxWidth  = 12
)

var errLZWCode = errors.New("lzw: invalid code")

// lzwBits reads MSB-first variable width codes.
type lzwBits struct {
	src   []byte
	pos   int
	acc   uint32
	nbits uint
}

// next returns the next code of the given width, or ok=false at end of input.
func (b *lzwBits) next(width uint) (code int, ok bool) {
	for b.nbits < width {
		if b.pos >= len(b.src) {
			return 0, false
		}
		b.acc = b.acc<<8 | uint32(b.src[b.pos])
		b.pos++
		b.nbits += 8
	}
	b.nbits -= width
	return int(b.acc>>b.nbits) & (1<<width - 1), true
}

// decompressTIFFLZW decodes a TIFF LZW stream. sizeHint preallocates the
// output and may be 0.
func decompressTIFFLZW(data []byte, sizeHint int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// Each code is stored as (prefix code, last byte, string length).
	var (
		prefix [lzwMaxCodes]int16
		suffix [lzwMaxCodes]byte
		length [lzwMaxCodes]uint16
	)
	for i := 0; i < 256; i++ {
		prefix[i] = -1
		suffix[i] = byte(i)
		length[i] = 1
	}

	// appendCode appends the string for code to out.
	appendCode := func(out []byte, code int) []byte {
		n := int(length[code])
		start := len(out)
		out = append(out, make([]byte, n)...)
		for i := start + n - 1; i >= start; i-- {
			out[i] = suffix[code]
			code = int(prefix[code])
		}
		return out
	}

	out := make([]byte, 0, sizeHint)
	bits := &lzwBits{src: data}
	width := uint(9)
	next := lzwFirstCode
	prev := -1

	for {
		code, ok := bits.next(width)
		if !ok || code == lzwEOICode {
			return out, nil
		}
		if code == lzwClearCode {
			width, next, prev = 9, lzwFirstCode, -1
			continue
		}

		if prev < 0 {
			if code > 255 {
				return nil, errLZWCode
			}
			out = append(out, byte(code))
			prev = code
			continue
		}

		var first byte
		switch {
		case code < next:
			start := len(out)
			out = appendCode(out, code)
			first = out[start]
		case code == next:
			// The code being defined right now: prev's string plus its own first byte.
			start := len(out)
			out = appendCode(out, prev)
			first = out[start]
			out = append(out, first)
		default:
			return nil, errLZWCode
		}

		if next < lzwMaxCodes {
			prefix[next] = int16(prev)
			suffix[next] = first
			length[next] = length[prev] + 1
			next++
		}
		if next+1 >= 1<<width && width < lzwMaxWidth {
			width++
		}
		prev = code
	}
}
