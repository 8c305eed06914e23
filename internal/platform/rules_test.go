package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRulesFor_KnownKinds(t *testing.T) {
	for _, k := range Kinds() {
		t.Run(string(k), func(t *testing.T) {
			r := RulesFor(k)
			assert.Greater(t, r.MaxLength, 0)
			assert.True(t, k.Valid())
			assert.NotEqual(t, FamilyNone, k.Family())
		})
	}

	assert.Equal(t, 280, RulesFor(Twitter).MaxLength)
	assert.True(t, RulesFor(InstagramFeed).Requires(MediaImage))
	assert.False(t, RulesFor(FacebookPage).Requires(MediaImage))
	assert.True(t, RulesFor(Youtube).Requires(MediaVideo))
	assert.False(t, RulesFor(Youtube).SupportsImages)
}

func TestRulesFor_UnknownIsRestrictive(t *testing.T) {
	for _, name := range []string{"", "myspace", "FACEBOOK_GROUP", "instagram_reel"} {
		r := RulesFor(Kind(name))
		assert.Equal(t, RestrictiveRules, r, name)
		assert.False(t, r.SupportsImages)
		assert.False(t, r.SupportsVideos)
		assert.False(t, r.SupportsScheduling)
		assert.Equal(t, RestrictiveRules, RulesForName(name), name)
	}
}

func TestRulesFor_ReturnsCopy(t *testing.T) {
	r := RulesFor(InstagramFeed)
	r.RequiredMediaKinds[0] = MediaVideo

	assert.True(t, RulesFor(InstagramFeed).Requires(MediaImage))
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"facebook_page", FacebookPage, true},
		{" Instagram_Story ", InstagramStory, true},
		{"facebook", FacebookPage, true},
		{"instagram", InstagramFeed, true},
		{"linkedin", LinkedInPersonal, true},
		{"youtube", Youtube, true},
		{"friendster", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
