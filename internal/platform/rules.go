package platform

import "time"

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Rules is the capability profile of a platform kind.
type Rules struct {
	MaxLength          int           `json:"max_length"`
	SupportsImages     bool          `json:"supports_images"`
	SupportsVideos     bool          `json:"supports_videos"`
	MaxImages          int           `json:"max_images"`
	RequiredMediaKinds []MediaKind   `json:"required_media_kinds"`
	MaxVideoDuration   time.Duration `json:"max_video_duration,omitempty"`
	SupportsScheduling bool          `json:"supports_scheduling"`
}

// Requires reports whether at least one attachment of kind m is mandatory.
func (r Rules) Requires(m MediaKind) bool {
	for _, k := range r.RequiredMediaKinds {
		if k == m {
			return true
		}
	}
	return false
}

// RestrictiveRules is returned for identifiers that do not map to a known kind.
var RestrictiveRules = Rules{
	MaxLength: 280,
}

var table = map[Kind]Rules{
	FacebookPage: {
		MaxLength:          63206,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          10,
		SupportsScheduling: true,
	},
	InstagramFeed: {
		MaxLength:          2200,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          10,
		RequiredMediaKinds: []MediaKind{MediaImage},
		SupportsScheduling: true,
	},
	InstagramStory: {
		MaxLength:          2200,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          1,
		RequiredMediaKinds: []MediaKind{MediaImage},
		SupportsScheduling: true,
	},
	Twitter: {
		MaxLength:          280,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          4,
		SupportsScheduling: true,
	},
	LinkedInPersonal: {
		MaxLength:          3000,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          9,
		SupportsScheduling: true,
	},
	Tiktok: {
		MaxLength:          2200,
		SupportsImages:     true,
		SupportsVideos:     true,
		MaxImages:          35,
		RequiredMediaKinds: []MediaKind{MediaVideo},
		MaxVideoDuration:   10 * time.Minute,
		SupportsScheduling: true,
	},
	Youtube: {
		MaxLength:          5000,
		SupportsVideos:     true,
		RequiredMediaKinds: []MediaKind{MediaVideo},
		SupportsScheduling: true,
	},
}

// RulesFor never fails: kinds outside the table get RestrictiveRules.
func RulesFor(k Kind) Rules {
	r, ok := table[k]
	if !ok {
		return RestrictiveRules
	}
	return clone(r)
}

// RulesForName resolves an external identifier, falling back to the
// restrictive profile when it is not recognised.
func RulesForName(name string) Rules {
	k, ok := ParseKind(name)
	if !ok {
		return RestrictiveRules
	}
	return RulesFor(k)
}

func clone(r Rules) Rules {
	if r.RequiredMediaKinds != nil {
		req := make([]MediaKind, len(r.RequiredMediaKinds))
		copy(req, r.RequiredMediaKinds)
		r.RequiredMediaKinds = req
	}
	return r
}
