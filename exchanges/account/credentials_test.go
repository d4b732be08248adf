package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestIsEmpty(t *testing.T) {
	t.Parallel()
	var c *Credentials
	assert.True(t, c.IsEmpty(), "IsEmpty should return true for nil credentials")
	c = new(Credentials)
	assert.True(t, c.IsEmpty(), "IsEmpty should return true for empty credentials")
	c.VerificationTier = "pro"
	assert.False(t, c.IsEmpty(), "IsEmpty should return false when tier set")
}

func TestString(t *testing.T) {
	t.Parallel()
	c := &Credentials{Key: "k", Secret: "verysecret", VerificationTier: "starter"}
	assert.NotContains(t, c.String(), "verysecret", "String must never expose the secret")
	assert.Contains(t, c.String(), "starter", "String should include the tier")
}

func TestParseCredentialsMetadata(t *testing.T) {
	t.Parallel()
	_, err := ParseCredentialsMetadata(context.Background(), nil)
	require.ErrorIs(t, err, errMetaDataIsNil)

	ctx, err := ParseCredentialsMetadata(context.Background(), metadata.MD{})
	require.NoError(t, err)
	assert.Nil(t, CredentialsFromContext(ctx, nil), "no metadata should deploy nothing")

	out := metadata.AppendToOutgoingContext(context.Background(),
		string(ContextCredentialsFlag), "wow", string(ContextCredentialsFlag), "wow2")
	doubled, _ := metadata.FromOutgoingContext(out)
	_, err = ParseCredentialsMetadata(context.Background(), doubled)
	require.ErrorIs(t, err, errInvalidCredentialMetaDataLength)

	out = metadata.AppendToOutgoingContext(context.Background(), string(ContextCredentialsFlag), "brokenstring")
	broken, _ := metadata.FromOutgoingContext(out)
	_, err = ParseCredentialsMetadata(context.Background(), broken)
	require.ErrorIs(t, err, errMissingInfo)

	before := Credentials{
		Key:              "superkey",
		Secret:           "supersecret",
		VerificationTier: "intermediate",
		OTPSecret:        "JBSWY3DPEHPK3PXP",
	}
	flag, outgoing := before.GetMetaData()
	out = metadata.AppendToOutgoingContext(context.Background(), flag, outgoing)
	md, _ := metadata.FromOutgoingContext(out)

	ctx, err = ParseCredentialsMetadata(context.Background(), md)
	require.NoError(t, err)

	after := CredentialsFromContext(ctx, nil)
	require.NotNil(t, after, "ParseCredentialsMetadata must deploy credentials")
	assert.Equal(t, before, *after, "credentials should round-trip through metadata")
}

func TestCredentialsFromContext(t *testing.T) {
	t.Parallel()
	fallback := &Credentials{Key: "configured"}
	assert.Same(t, fallback, CredentialsFromContext(context.Background(), fallback), "bare context should fall back")

	override := &Credentials{Key: "override"}
	ctx := DeployCredentialsToContext(context.Background(), override)
	assert.Same(t, override, CredentialsFromContext(ctx, fallback), "deployed credentials should win")
}
