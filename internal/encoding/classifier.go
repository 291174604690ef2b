package encoding

import (
	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
	"golang.org/x/text/encoding/charmap"
)

// sampleLimit bounds how much of the payload the classifier inspects.
const sampleLimit = 1000

// Classify inspects a byte sample and reports whether it looks like ASCII
// or EBCDIC. It is a heuristic hint for the external decoder: EBCDIC wins
// only when its indicators clearly dominate, and anything ambiguous
// defaults to ASCII. Never fails.
func Classify(sample []byte) models.Encoding {
	if len(sample) == 0 {
		return models.EncodingASCII
	}
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}

	var asciiScore, ebcdicScore float64
	for _, b := range sample {
		switch {
		case b >= 0x20 && b <= 0x7E:
			asciiScore++
		case b >= 0xF0 && b <= 0xF9:
			// EBCDIC digits
			ebcdicScore++
		case (b >= 0xC1 && b <= 0xC9) || (b >= 0xD1 && b <= 0xD9) || (b >= 0xE2 && b <= 0xE9):
			// EBCDIC letter ranges
			ebcdicScore++
		case b >= 0x80:
			// High bytes are common in EBCDIC, rare in ASCII
			ebcdicScore += 0.5
		}
	}

	if ebcdicScore > asciiScore*2 {
		return models.EncodingEBCDIC
	}
	return models.EncodingASCII
}

// DecodeField decodes a field slice according to the classified encoding.
// EBCDIC payloads go through code page 037; ASCII passes through with
// non-printable bytes replaced by spaces so downstream trimming behaves.
func DecodeField(raw []byte, enc models.Encoding) string {
	if enc == models.EncodingEBCDIC {
		decoded, err := charmap.CodePage037.NewDecoder().Bytes(raw)
		if err == nil {
			return string(decoded)
		}
		// fall through to the ASCII path on decode failure
	}

	out := make([]byte, len(raw))
	for i, b := range raw {
		if b >= 0x20 && b <= 0x7E {
			out[i] = b
		} else {
			out[i] = ' '
		}
	}
	return string(out)
}
