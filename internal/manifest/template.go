package manifest

import (
	"regexp"
	"strconv"
	"strings"
)

// The keys a segment URL template may carry, with the padded-width pattern
// for each ($Number%05d$ and friends).
var paddedPatterns = map[string]*regexp.Regexp{
	"RepresentationID": regexp.MustCompile(`\$RepresentationID%0(\d)d\$`),
	"Number":           regexp.MustCompile(`\$Number%0(\d)d\$`),
	"Time":             regexp.MustCompile(`\$Time%0(\d)d\$`),
	"Bandwidth":        regexp.MustCompile(`\$Bandwidth%0(\d)d\$`),
}

// ChunkTemplate is a URL pattern with placeholders. Each resolution step
// returns a new template value; the receiver is never mutated. Identifier
// substitution should be applied before number substitution since both
// operate on the same path string.
type ChunkTemplate struct {
	raw string
}

// NewChunkTemplate wraps a raw template string.
func NewChunkTemplate(raw string) ChunkTemplate {
	return ChunkTemplate{raw: raw}
}

// WithRepresentationID resolves $RepresentationID$ placeholders.
func (c ChunkTemplate) WithRepresentationID(id string) ChunkTemplate {
	return ChunkTemplate{raw: resolve(c.raw, "RepresentationID", id)}
}

// WithNumber resolves $Number$ placeholders.
func (c ChunkTemplate) WithNumber(number int) ChunkTemplate {
	return ChunkTemplate{raw: resolve(c.raw, "Number", strconv.Itoa(number))}
}

// WithTime resolves $Time$ placeholders.
func (c ChunkTemplate) WithTime(t uint64) ChunkTemplate {
	return ChunkTemplate{raw: resolve(c.raw, "Time", strconv.FormatUint(t, 10))}
}

// WithBandwidth resolves $Bandwidth$ placeholders.
func (c ChunkTemplate) WithBandwidth(bandwidth int) ChunkTemplate {
	return ChunkTemplate{raw: resolve(c.raw, "Bandwidth", strconv.Itoa(bandwidth))}
}

// String returns the template with all resolutions applied so far.
func (c ChunkTemplate) String() string {
	return c.raw
}

// resolve substitutes one placeholder key in template. The bare $Key$ form is
// replaced first, then a padded $Key%0Nd$ occurrence; a template should not
// carry both forms for one key, but if it does both substitutions fire.
func resolve(template, key, value string) string {
	ident := "$" + key + "$"
	if strings.Contains(template, ident) {
		template = strings.ReplaceAll(template, ident, value)
	}

	rx, ok := paddedPatterns[key]
	if !ok {
		return template
	}

	if m := rx.FindStringSubmatchIndex(template); m != nil {
		width, _ := strconv.Atoi(template[m[2]:m[3]])
		template = template[:m[0]] + pad(value, width) + template[m[1]:]
	}

	return template
}

// pad left-pads value with zeroes to the requested width.
func pad(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat("0", width-len(value)) + value
}
