package platform

import "strings"

// Kind identifies a publishing target type. The set is closed: every Kind
// declared here has an entry in the rules table.
type Kind string

const (
	FacebookPage     Kind = "facebook_page"
	InstagramFeed    Kind = "instagram_feed"
	InstagramStory   Kind = "instagram_story"
	Twitter          Kind = "twitter"
	LinkedInPersonal Kind = "linkedin_personal"
	Tiktok           Kind = "tiktok"
	Youtube          Kind = "youtube"
)

// Family groups kinds that share one OAuth application and API.
type Family string

const (
	FamilyMeta     Family = "meta"
	FamilyTwitter  Family = "twitter"
	FamilyLinkedIn Family = "linkedin"
	FamilyTiktok   Family = "tiktok"
	FamilyGoogle   Family = "google"
	FamilyNone     Family = "none"
)

var kinds = []Kind{
	FacebookPage,
	InstagramFeed,
	InstagramStory,
	Twitter,
	LinkedInPersonal,
	Tiktok,
	Youtube,
}

// Kinds returns every supported platform kind in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind converts an external identifier into a Kind. Legacy short names
// ("facebook", "instagram", "linkedin") map to their default target.
func ParseKind(s string) (Kind, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "facebook":
		return FacebookPage, true
	case "instagram":
		return InstagramFeed, true
	case "linkedin":
		return LinkedInPersonal, true
	}
	for _, k := range kinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

func (k Kind) Valid() bool {
	_, ok := table[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

func (k Kind) DisplayName() string {
	switch k {
	case FacebookPage:
		return "Facebook Page"
	case InstagramFeed:
		return "Instagram Feed"
	case InstagramStory:
		return "Instagram Story"
	case Twitter:
		return "Twitter"
	case LinkedInPersonal:
		return "LinkedIn"
	case Tiktok:
		return "TikTok"
	case Youtube:
		return "YouTube"
	default:
		return "Unknown platform"
	}
}

func (k Kind) Family() Family {
	switch k {
	case FacebookPage, InstagramFeed, InstagramStory:
		return FamilyMeta
	case Twitter:
		return FamilyTwitter
	case LinkedInPersonal:
		return FamilyLinkedIn
	case Tiktok:
		return FamilyTiktok
	case Youtube:
		return FamilyGoogle
	default:
		return FamilyNone
	}
}
