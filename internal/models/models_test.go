package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "11111111-1111-4111-8111-111111111111"
	bob   = "22222222-2222-4222-8222-222222222222"
)

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	a1, b1 := CanonicalPair(alice, bob)
	a2, b2 := CanonicalPair(bob, alice)

	assert.Equal(t, alice, a1)
	assert.Equal(t, bob, b1)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestChatParticipants(t *testing.T) {
	chat := Chat{ID: "c", UserAID: alice, UserBID: bob}

	assert.True(t, chat.HasParticipant(alice))
	assert.True(t, chat.HasParticipant(bob))
	assert.False(t, chat.HasParticipant("33333333-3333-4333-8333-333333333333"))
	assert.False(t, chat.HasParticipant(""))

	assert.Equal(t, bob, chat.PeerOf(alice))
	assert.Equal(t, alice, chat.PeerOf(bob))
	assert.Empty(t, chat.PeerOf("someone-else"))
}

func TestParseIDNormalizes(t *testing.T) {
	id, ok := ParseID(" AAAAAAAA-AAAA-4AAA-8AAA-AAAAAAAAAAAA ")
	require.True(t, ok)
	assert.Equal(t, "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", id)

	_, ok = ParseID("not-a-uuid")
	assert.False(t, ok)
}

func TestMessageDTOHidesDeletedContent(t *testing.T) {
	now := time.Now()
	msg := Message{ID: "m", ChatID: "c", SenderID: alice, Content: "secret", CreatedAt: now}

	dto := msg.DTO()
	require.NotNil(t, dto.Content)
	assert.Equal(t, "secret", *dto.Content)

	msg.DeletedAt = &now
	dto = msg.DTO()
	assert.Nil(t, dto.Content)
	assert.Equal(t, &now, dto.DeletedAt)
}
