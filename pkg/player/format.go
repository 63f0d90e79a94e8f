package player

// DefaultQualityOrder prefers medium quality audio, then low, then high
var DefaultQualityOrder = []string{
	"AUDIO_QUALITY_MEDIUM",
	"AUDIO_QUALITY_LOW",
	"AUDIO_QUALITY_HIGH",
}

// FormatSelector picks the stream variant to play
type FormatSelector struct {
	order []string
}

// NewFormatSelector creates a selector with the given tier priority.
// An empty order uses DefaultQualityOrder.
func NewFormatSelector(order ...string) FormatSelector {
	if len(order) == 0 {
		order = DefaultQualityOrder
	}

	return FormatSelector{order: append([]string(nil), order...)}
}

// smaller reports whether a is a smaller download than b. An unknown size
// never beats a known one.
func smaller(a, b FormatInfo) bool {
	if a.ContentLength <= 0 {
		return false
	}
	return b.ContentLength <= 0 || a.ContentLength < b.ContentLength
}

// Select returns the smallest audio-only variant of the first quality tier
// that has any match. Variants of unknown size are only picked when the
// tier has nothing else. When no tier matches, the first audio-only variant is
// returned. ok is false when there are no audio-only variants at all.
func (s FormatSelector) Select(variants []FormatInfo) (selected FormatInfo, ok bool) {
	var audio []FormatInfo
	for _, v := range variants {
		if v.AudioOnly() {
			audio = append(audio, v)
		}
	}

	if len(audio) == 0 {
		return FormatInfo{}, false
	}

	for _, tier := range s.order {
		found := false

		for _, v := range audio {
			if v.AudioQuality != tier {
				continue
			}
			if !found || smaller(v, selected) {
				selected = v
				found = true
			}
		}

		if found {
			return selected, true
		}
	}

	return audio[0], true
}
