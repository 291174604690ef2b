package alignment

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

// Config carries the scoring thresholds of the resolver. The defaults are
// the empirically tuned values the engine has always shipped with; they
// are exposed here so deployments can validate their own corpus against
// different numbers instead of editing code.
type Config struct {
	// MaxScanWindow caps how far Stage C/D heuristics look into the payload.
	MaxScanWindow int
	// HeaderCheckWindow is how many leading bytes Stage D inspects for
	// leftover header vocabulary.
	HeaderCheckWindow int

	HeaderHashScore      int
	HeaderMarkerScore    int
	HeaderPrintableScore int
	HeaderPrintableRatio float64

	TrailerPadScore       int
	TrailerPadRatio       float64
	TrailerBinaryScore    int
	TrailerPrintableRatio float64

	// Stage D fallback: a record-aligned window counts as data when its
	// printable ratio falls inside this open interval.
	DataWindowMinPrintable float64
	DataWindowMaxPrintable float64
}

// DefaultConfig returns the legacy-compatible thresholds.
func DefaultConfig() Config {
	return Config{
		MaxScanWindow:          3000,
		HeaderCheckWindow:      200,
		HeaderHashScore:        3,
		HeaderMarkerScore:      1,
		HeaderPrintableScore:   2,
		HeaderPrintableRatio:   0.8,
		TrailerPadScore:        3,
		TrailerPadRatio:        0.7,
		TrailerBinaryScore:     1,
		TrailerPrintableRatio:  0.3,
		DataWindowMinPrintable: 0.5,
		DataWindowMaxPrintable: 0.95,
	}
}

// tieTrimsTail is the resolver's policy when header and trailer scores
// tie, including the zero-zero case. Trimming the tail loses at most one
// partial record; trimming the head could lose a full good one. This is a
// compatibility policy, not a derived property.
const tieTrimsTail = true

// digitRunPattern is the last-resort data-start signature: fixed-width
// records very often open with a long numeric key.
var digitRunPattern = regexp.MustCompile(`[0-9]{20,}`)

// headerVocabulary marks descriptive text that only ever appears in
// embedded headers, never in data records.
var headerVocabulary = [][]byte{
	[]byte("record"), []byte("format"), []byte("length"),
	[]byte("characters"), []byte("contains"), []byte("header"),
	[]byte("total"), []byte("description"), []byte("comment"),
}

// Resolver aligns raw payloads to an exact multiple of the record length.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve trims non-data regions from a raw payload until its length is an
// exact multiple of recordLength. It never fails: when the heuristics
// cannot explain the misalignment, the remainder is hard-trimmed from the
// tail and flagged via IncompleteTrim. The postcondition
// len(result.Data) % recordLength == 0 always holds.
func (r *Resolver) Resolve(raw []byte, recordLength int, firstFieldPattern string) (*models.AlignedExtract, []models.Warning) {
	var warnings []models.Warning
	meta := models.NormalizationMetadata{OriginalSize: len(raw)}

	if recordLength <= 0 {
		warnings = append(warnings, models.Warning{
			Stage:   "alignment",
			Message: fmt.Sprintf("invalid record length %d; payload passed through", recordLength),
		})
		meta.NormalizedSize = len(raw)
		return &models.AlignedExtract{Data: raw, RecordLength: recordLength, Metadata: meta}, warnings
	}

	// Stage A: fixed-width records are not newline-delimited; any CR/LF
	// bytes are text-format artifacts.
	content := stripNewlines(raw)
	meta.NewlinesRemoved = len(raw) - len(content)
	content = trimTrailingPadding(content, recordLength)

	// Stage B: aligned payloads pass through untouched.
	if len(content)%recordLength == 0 {
		return r.finish(content, recordLength, meta, warnings)
	}

	// Stage C: score both ends of the payload for the misaligned remainder
	// and trim the likelier culprit.
	remainder := len(content) % recordLength
	headerScore := r.scoreHeader(content[:remainder])
	trailerScore := r.scoreTrailer(content[len(content)-remainder:])

	if headerScore > trailerScore {
		content = content[remainder:]
		meta.HeaderBytesRemoved += remainder
	} else if trailerScore > headerScore || tieTrimsTail {
		content = content[:len(content)-remainder]
	}

	// Stage D: a remainder-sized front trim cannot remove a header longer
	// than one record; when the payload still opens with header-looking
	// text, hunt for the true data start.
	if r.looksHeaderLike(content) {
		offset, strategy := r.findDataStart(content, recordLength, firstFieldPattern)
		if offset > 0 {
			warnings = append(warnings, models.Warning{
				Stage:   "alignment",
				Message: fmt.Sprintf("residual header detected; %s strategy moved data start to offset %d", strategy, offset),
			})
			content = content[offset:]
			meta.HeaderBytesRemoved += offset
		}
		if tail := len(content) % recordLength; tail > 0 {
			content = content[:len(content)-tail]
		}
	}

	// Stage E: whatever is left unexplained comes off the tail so the
	// postcondition holds unconditionally.
	if tail := len(content) % recordLength; tail > 0 {
		content = content[:len(content)-tail]
		meta.IncompleteTrim = true
		warnings = append(warnings, models.Warning{
			Stage:   "alignment",
			Message: fmt.Sprintf("heuristics could not reach exact divisibility; hard-trimmed %d trailing bytes", tail),
		})
	}

	return r.finish(content, recordLength, meta, warnings)
}

func (r *Resolver) finish(content []byte, recordLength int, meta models.NormalizationMetadata, warnings []models.Warning) (*models.AlignedExtract, []models.Warning) {
	meta.NormalizedSize = len(content)
	if recordLength > 0 {
		meta.RecordCount = len(content) / recordLength
	}
	return &models.AlignedExtract{Data: content, RecordLength: recordLength, Metadata: meta}, warnings
}

func stripNewlines(raw []byte) []byte {
	if !bytes.ContainsAny(raw, "\n\r") {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b != '\n' && b != '\r' {
			out = append(out, b)
		}
	}
	return out
}

// trimTrailingPadding drops null/space padding past the last full record
// boundary. Padding inside complete records is left alone.
func trimTrailingPadding(content []byte, recordLength int) []byte {
	lastBoundary := (len(content) / recordLength) * recordLength
	if lastBoundary == len(content) {
		return content
	}
	for _, b := range content[lastBoundary:] {
		if b != 0x00 && b != ' ' {
			return content
		}
	}
	return content[:lastBoundary]
}

func (r *Resolver) scoreHeader(region []byte) int {
	if len(region) == 0 {
		return 0
	}
	score := 0
	if bytes.IndexByte(region, '#') >= 0 {
		score += r.cfg.HeaderHashScore
	}
	if bytes.ContainsAny(region, "#*/\n\r") {
		score += r.cfg.HeaderMarkerScore
	}
	if printableRatio(region) > r.cfg.HeaderPrintableRatio {
		score += r.cfg.HeaderPrintableScore
	}
	return score
}

func (r *Resolver) scoreTrailer(region []byte) int {
	if len(region) == 0 {
		return 0
	}
	score := 0
	if padRatio(region) > r.cfg.TrailerPadRatio {
		score += r.cfg.TrailerPadScore
	}
	if printableRatio(region) < r.cfg.TrailerPrintableRatio {
		score += r.cfg.TrailerBinaryScore
	}
	return score
}

// looksHeaderLike reports whether the payload still opens with comment
// markers or descriptive vocabulary instead of record data.
func (r *Resolver) looksHeaderLike(content []byte) bool {
	window := content
	if len(window) > r.cfg.HeaderCheckWindow {
		window = window[:r.cfg.HeaderCheckWindow]
	}
	if len(window) == 0 {
		return false
	}
	if bytes.ContainsAny(window, "#*/") {
		return true
	}
	lower := bytes.ToLower(window)
	for _, word := range headerVocabulary {
		if bytes.Contains(lower, word) {
			return true
		}
	}
	return false
}

// offsetStrategy is one attempt at locating the true data start. The
// chain runs in priority order and the first success wins.
type offsetStrategy struct {
	name string
	find func(content []byte) (int, bool)
}

// findDataStart runs the Stage D strategy chain: the caller-supplied
// first-field pattern, then a long digit run, then a printable-ratio
// window sweep. Pattern hits snap down to the record boundary below them.
func (r *Resolver) findDataStart(content []byte, recordLength int, firstFieldPattern string) (int, string) {
	window := content
	if len(window) > r.cfg.MaxScanWindow {
		window = window[:r.cfg.MaxScanWindow]
	}

	var chain []offsetStrategy
	if firstFieldPattern != "" {
		re, err := regexp.Compile(firstFieldPattern)
		if err == nil {
			chain = append(chain, offsetStrategy{
				name: "first-field-pattern",
				find: func(c []byte) (int, bool) {
					loc := re.FindIndex(c)
					if loc == nil {
						return 0, false
					}
					return (loc[0] / recordLength) * recordLength, true
				},
			})
		}
	}
	chain = append(chain,
		offsetStrategy{
			name: "digit-run",
			find: func(c []byte) (int, bool) {
				loc := digitRunPattern.FindIndex(c)
				if loc == nil {
					return 0, false
				}
				return (loc[0] / recordLength) * recordLength, true
			},
		},
		offsetStrategy{
			name: "printable-window",
			find: func(c []byte) (int, bool) {
				for off := 0; off+recordLength <= len(c); off += recordLength {
					ratio := printableRatio(c[off : off+recordLength])
					if ratio > r.cfg.DataWindowMinPrintable && ratio < r.cfg.DataWindowMaxPrintable {
						return off, true
					}
				}
				return 0, false
			},
		},
	)

	for _, s := range chain {
		if off, ok := s.find(window); ok {
			// A hit at offset zero means the data already starts the
			// payload; weaker strategies must not override that.
			if off == 0 {
				return 0, ""
			}
			return off, s.name
		}
	}
	return 0, ""
}

func printableRatio(region []byte) float64 {
	if len(region) == 0 {
		return 0
	}
	n := 0
	for _, b := range region {
		if b >= 0x20 && b <= 0x7E {
			n++
		}
	}
	return float64(n) / float64(len(region))
}

func padRatio(region []byte) float64 {
	if len(region) == 0 {
		return 0
	}
	n := 0
	for _, b := range region {
		if b == 0x00 || b == ' ' {
			n++
		}
	}
	return float64(n) / float64(len(region))
}
