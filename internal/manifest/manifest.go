// Package manifest wraps a decoded DASH Media Presentation Description and
// exposes the per-representation track view the player schedules from.
package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfiguration marks a manifest that cannot be played as declared.
// Configuration errors are fatal and surface before any segment fetch begins.
var ErrConfiguration = errors.New("manifest configuration error")

// Manifest is an immutable view over a parsed MPD.
type Manifest struct {
	mpd MPD
}

// Parse decodes manifest XML into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MPD XML: %w", err)
	}
	return &Manifest{mpd: mpd}, nil
}

// Duration returns the declared presentation duration, if any.
func (m *Manifest) Duration() (time.Duration, bool) {
	if m.mpd.MediaPresentationDuration == "" {
		return 0, false
	}
	d, err := parseDuration(m.mpd.MediaPresentationDuration)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Tracks returns every representation across every adaptation set of every
// period, each paired with its adaptation set so template and metadata
// fallbacks can be resolved per track.
func (m *Manifest) Tracks() []Track {
	var tracks []Track

	for i := range m.mpd.Periods {
		period := &m.mpd.Periods[i]
		for j := range period.Sets {
			as := &period.Sets[j]
			for k := range as.Representations {
				tracks = append(tracks, Track{
					rep:        &as.Representations[k],
					adaptation: as,
				})
			}
		}
	}

	return tracks
}

// Track is one adaptation/representation pairing.
type Track struct {
	rep        *Representation
	adaptation *AdaptationSet
}

// ID returns the stable representation identifier.
func (t Track) ID() string {
	return t.rep.ID
}

// MIME returns the representation's MIME type, falling back to the
// adaptation set's. Empty when neither declares one.
func (t Track) MIME() string {
	if t.rep.MimeType != "" {
		return t.rep.MimeType
	}
	return t.adaptation.MimeType
}

// Codecs returns the representation's codec string, falling back to the
// adaptation set's.
func (t Track) Codecs() string {
	if t.rep.Codecs != "" {
		return t.rep.Codecs
	}
	return t.adaptation.Codecs
}

// ContentType returns the representation's content type, falling back to the
// adaptation set's.
func (t Track) ContentType() string {
	if t.rep.ContentType != "" {
		return t.rep.ContentType
	}
	return t.adaptation.ContentType
}

// IsVideo reports whether the track carries video content.
func (t Track) IsVideo() bool {
	return strings.Contains(t.MIME(), "video") || strings.Contains(t.ContentType(), "video")
}

// IsAudio reports whether the track carries audio content.
func (t Track) IsAudio() bool {
	return strings.Contains(t.MIME(), "audio") || strings.Contains(t.ContentType(), "audio")
}

// Bandwidth returns the declared bandwidth in bits per second, zero if unset.
func (t Track) Bandwidth() int { return t.rep.Bandwidth }

// Width returns the declared frame width, zero if unset.
func (t Track) Width() int { return t.rep.Width }

// Height returns the declared frame height, zero if unset.
func (t Track) Height() int { return t.rep.Height }

// Template returns the effective segment template: the representation's own,
// or the adaptation set's when the representation has none.
func (t Track) Template() *SegmentTemplate {
	if t.rep.SegmentTemplate != nil {
		return t.rep.SegmentTemplate
	}
	return t.adaptation.SegmentTemplate
}

// SegmentDuration returns the nominal segment duration in seconds derived
// from the effective template.
func (t Track) SegmentDuration() (float64, bool) {
	return t.Template().SegmentDuration()
}

// StartNumber returns the template's declared first segment number,
// defaulting to 1.
func (t Track) StartNumber() int {
	tpl := t.Template()
	if tpl == nil || tpl.StartNumber == 0 {
		return 1
	}
	return tpl.StartNumber
}

// Validate reports whether the track is usable at all. A track lacking both a
// MIME type and a representation-level segment template cannot be played and
// must fail before any fetch begins.
func (t Track) Validate() error {
	if t.MIME() == "" && t.rep.SegmentTemplate == nil {
		return fmt.Errorf("%w: representation %q has neither a MIME type nor a segment template", ErrConfiguration, t.rep.ID)
	}
	if t.Template() == nil {
		return fmt.Errorf("%w: representation %q has no segment template at any level", ErrConfiguration, t.rep.ID)
	}
	return nil
}

// Initialization returns the chunk template for the track's initialization
// segment. A missing sub-template is a hard configuration error.
func (t Track) Initialization() (ChunkTemplate, error) {
	tpl := t.Template()
	if tpl == nil || tpl.Initialization == "" {
		return ChunkTemplate{}, fmt.Errorf("%w: representation %q declares no initialization template", ErrConfiguration, t.rep.ID)
	}
	return ChunkTemplate{raw: tpl.Initialization}, nil
}

// Media returns the chunk template for the track's media segments. A missing
// sub-template is a hard configuration error.
func (t Track) Media() (ChunkTemplate, error) {
	tpl := t.Template()
	if tpl == nil || tpl.Media == "" {
		return ChunkTemplate{}, fmt.Errorf("%w: representation %q declares no media template", ErrConfiguration, t.rep.ID)
	}
	return ChunkTemplate{raw: tpl.Media}, nil
}
