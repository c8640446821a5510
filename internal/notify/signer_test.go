package notify

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var startParam = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func TestSignerRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "id")
		id, err := uuid.FromBytes(raw)
		if err != nil {
			t.Fatal(err)
		}
		s := NewSigner("link-secret")
		token := s.Sign(id)
		if !startParam.MatchString(token) {
			t.Fatalf("token %q is not a valid start parameter", token)
		}
		got, err := s.Verify(token)
		if err != nil || got != id {
			t.Fatalf("Verify(%q) = %v, %v", token, got, err)
		}
	})
}

func TestSignerRejectsTampering(t *testing.T) {
	s := NewSigner("link-secret")
	id := uuid.New()
	token := s.Sign(id)

	other := NewSigner("another-secret")
	_, err := other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidLinkToken)

	swapped := s.Sign(uuid.New())
	forged := swapped[:idHexLen] + token[idHexLen:]
	_, err = s.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidLinkToken)

	_, err = s.Verify(token[:len(token)-1])
	assert.ErrorIs(t, err, ErrInvalidLinkToken)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
