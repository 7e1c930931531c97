package manifest

import (
	"encoding/xml"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	Periods                   []Period `xml:"Period"`
}

// Period represents a media content period.
type Period struct {
	ID      string          `xml:"id,attr"`
	Start   string          `xml:"start,attr"`
	BaseURL string          `xml:"BaseURL"`
	Sets    []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID               string           `xml:"id,attr"`
	ContentType      string           `xml:"contentType,attr"`
	Lang             string           `xml:"lang,attr,omitempty"`
	MimeType         string           `xml:"mimeType,attr"`
	Codecs           string           `xml:"codecs,attr"`
	SegmentAlignment bool             `xml:"segmentAlignment,attr"`
	MaxWidth         int              `xml:"maxWidth,attr,omitempty"`
	MaxHeight        int              `xml:"maxHeight,attr,omitempty"`
	Representations  []Representation `xml:"Representation"`
	SegmentTemplate  *SegmentTemplate `xml:"SegmentTemplate"`
}

// Representation represents a specific media stream.
type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int              `xml:"bandwidth,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	ContentType     string           `xml:"contentType,attr"`
	Width           int              `xml:"width,attr,omitempty"`
	Height          int              `xml:"height,attr,omitempty"`
	FrameRate       string           `xml:"frameRate,attr,omitempty"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
}

// SegmentTemplate defines the URL structure and timing of segments.
type SegmentTemplate struct {
	Timescale      uint64  `xml:"timescale,attr"`
	Duration       float64 `xml:"duration,attr"`
	StartNumber    int     `xml:"startNumber,attr"`
	Initialization string  `xml:"initialization,attr"`
	Media          string  `xml:"media,attr"`
}

// SegmentDuration returns the segment duration in seconds. The timescale
// defaults to 1 when the manifest does not declare one.
func (st *SegmentTemplate) SegmentDuration() (float64, bool) {
	if st == nil || st.Duration == 0 {
		return 0, false
	}
	timescale := st.Timescale
	if timescale == 0 {
		timescale = 1
	}
	return st.Duration / float64(timescale), true
}

// parseDuration parses an ISO 8601 duration string like "PT1H30M5S".
func parseDuration(duration string) (time.Duration, error) {
	if !strings.HasPrefix(duration, "PT") {
		// Fallback for simple duration strings like "5s"
		return time.ParseDuration(duration)
	}

	duration = strings.TrimPrefix(duration, "PT")
	if duration == "" {
		return 0, nil
	}

	var totalDuration time.Duration
	re := regexp.MustCompile(`(\d+\.?\d*)(\w)`)
	matches := re.FindAllStringSubmatch(duration, -1)

	if len(matches) == 0 {
		return 0, errors.New("invalid ISO 8601 duration format")
	}

	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}

		switch match[2] {
		case "H":
			totalDuration += time.Duration(value * float64(time.Hour))
		case "M":
			totalDuration += time.Duration(value * float64(time.Minute))
		case "S":
			totalDuration += time.Duration(value * float64(time.Second))
		default:
			return 0, errors.New("unsupported duration unit: " + match[2])
		}
	}

	return totalDuration, nil
}
