package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		kind ItemKind
		want string
	}{
		{in: " Com.Instagram.Android ", kind: KindApp, want: "com.instagram.android"},
		{in: "https://www.Reddit.com/", kind: KindWebsite, want: "reddit.com"},
		{in: "http://news.ycombinator.com//", kind: KindWebsite, want: "news.ycombinator.com"},
		{in: "www.youtube.com", kind: KindWebsite, want: "youtube.com"},
		{in: "www.example", kind: KindApp, want: "www.example"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIdentifier(tt.in, tt.kind))
		})
	}
}

func TestHostFromURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "https://www.reddit.com/r/golang?sort=new", want: "reddit.com"},
		{in: "m.youtube.com/watch?v=1", want: "m.youtube.com"},
		{in: "HTTP://Example.COM:8080/path", want: "example.com"},
		{in: "   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, HostFromURL(tt.in))
		})
	}
}

func TestIdentifiersOverlap(t *testing.T) {
	assert.True(t, IdentifiersOverlap("old.reddit.com", "reddit.com"))
	assert.True(t, IdentifiersOverlap("reddit.com", "old.reddit.com"))
	assert.False(t, IdentifiersOverlap("twitter.com", "reddit.com"))
	assert.False(t, IdentifiersOverlap("", "reddit.com"))
	assert.False(t, IdentifiersOverlap("reddit.com", ""))
}
