package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePair(t *testing.T) {
	low, high := NormalizePair("bbb", "aaa")
	assert.Equal(t, "aaa", low)
	assert.Equal(t, "bbb", high)

	low, high = NormalizePair("aaa", "bbb")
	assert.Equal(t, "aaa", low)
	assert.Equal(t, "bbb", high)
}

func TestChatMembership(t *testing.T) {
	c := Chat{MemberLow: "aaa", MemberHigh: "bbb"}

	assert.Equal(t, []string{"aaa", "bbb"}, c.Members())
	assert.True(t, c.HasMember("aaa"))
	assert.False(t, c.HasMember("ccc"))
	assert.Equal(t, "bbb", c.Peer("aaa"))
	assert.Equal(t, "aaa", c.Peer("bbb"))
}

func TestMessageReadByUser(t *testing.T) {
	m := Message{ReadBy: []string{"u1", "u2"}}
	assert.True(t, m.ReadByUser("u2"))
	assert.False(t, m.ReadByUser("u3"))
}
