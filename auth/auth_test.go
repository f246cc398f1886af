package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rental-chat/domain"
	"rental-chat/errors"
)

var secret = []byte("unit_test_secret_key_which_is_long_enough")

func TestParseIdentity_RoundTrip(t *testing.T) {
	req := require.New(t)
	profile := domain.ProfileRef{ID: "tenant-1", Name: "Alice", Type: domain.ProfileTenant}

	token, err := GenerateIdentityToken(profile, secret, time.Hour)
	req.NoError(err)

	parsed, err := ParseIdentity(token, secret)
	req.NoError(err)
	req.Equal(profile, parsed)
}

func TestParseIdentity_WrongSecret(t *testing.T) {
	req := require.New(t)
	profile := domain.ProfileRef{ID: "tenant-1", Type: domain.ProfileTenant}

	token, err := GenerateIdentityToken(profile, secret, time.Hour)
	req.NoError(err)

	_, err = ParseIdentity(token, []byte("another_secret_entirely_for_testing"))
	req.ErrorIs(err, errors.ErrInvalidIdentity)
}

func TestParseIdentity_Expired(t *testing.T) {
	req := require.New(t)
	profile := domain.ProfileRef{ID: "tenant-1", Type: domain.ProfileTenant}

	token, err := GenerateIdentityToken(profile, secret, -time.Minute)
	req.NoError(err)

	_, err = ParseIdentity(token, secret)
	req.ErrorIs(err, errors.ErrInvalidIdentity)
}

func TestParseIdentity_RejectsUnknownProfileType(t *testing.T) {
	req := require.New(t)
	profile := domain.ProfileRef{ID: "x-1", Type: domain.ProfileType("agency")}

	token, err := GenerateIdentityToken(profile, secret, time.Hour)
	req.NoError(err)

	_, err = ParseIdentity(token, secret)
	req.ErrorIs(err, errors.ErrInvalidIdentity)
}
