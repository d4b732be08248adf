// Package account holds API credentials and open-position reporting types.
package account

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"
)

type contextCredential string

// ContextCredentialsFlag keys credentials stored on a context, allowing RPC
// callers to override the configured account per request.
const ContextCredentialsFlag contextCredential = "apicredentials"

// Metadata sub-keys
const (
	keyField    = "key"
	secretField = "secret"
	tierField   = "tier"
	otpField    = "otpsecret"
)

var (
	errMetaDataIsNil                   = errors.New("metadata is nil")
	errInvalidCredentialMetaDataLength = errors.New("invalid credential metadata length")
	errMissingInfo                     = errors.New("missing credential information")
)

// Credentials are the API authentication details for one account
type Credentials struct {
	Key              string
	Secret           string
	VerificationTier string
	OTPSecret        string
}

// IsEmpty returns whether any credential field is populated
func (c *Credentials) IsEmpty() bool {
	return c == nil || *c == (Credentials{})
}

// String implements stringer without exposing the secret
func (c *Credentials) String() string {
	if c.IsEmpty() {
		return "Credentials[empty]"
	}
	return "Credentials[key:" + c.Key + ",tier:" + c.VerificationTier + "]"
}

// GetMetaData encodes the credentials for outgoing gRPC metadata
func (c *Credentials) GetMetaData() (flag, values string) {
	fields := make([]string, 0, 4)
	if c.Key != "" {
		fields = append(fields, keyField+":"+c.Key)
	}
	if c.Secret != "" {
		fields = append(fields, secretField+":"+c.Secret)
	}
	if c.VerificationTier != "" {
		fields = append(fields, tierField+":"+c.VerificationTier)
	}
	if c.OTPSecret != "" {
		fields = append(fields, otpField+":"+c.OTPSecret)
	}
	return string(ContextCredentialsFlag), strings.Join(fields, ",")
}

// DeployCredentialsToContext attaches credentials to a context for
// per-request override of the configured account
func DeployCredentialsToContext(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, ContextCredentialsFlag, creds)
}

// ParseCredentialsMetadata extracts credentials from incoming gRPC metadata
// and deploys them to the returned context
func ParseCredentialsMetadata(ctx context.Context, md metadata.MD) (context.Context, error) {
	if md == nil {
		return ctx, errMetaDataIsNil
	}

	values := md.Get(string(ContextCredentialsFlag))
	if len(values) == 0 {
		return ctx, nil
	}
	if len(values) != 1 {
		return ctx, errInvalidCredentialMetaDataLength
	}

	var creds Credentials
	for _, segment := range strings.Split(values[0], ",") {
		k, v, ok := strings.Cut(segment, ":")
		if !ok {
			return ctx, errMissingInfo
		}
		switch k {
		case keyField:
			creds.Key = v
		case secretField:
			creds.Secret = v
		case tierField:
			creds.VerificationTier = v
		case otpField:
			creds.OTPSecret = v
		}
	}
	return DeployCredentialsToContext(ctx, &creds), nil
}

// CredentialsFromContext returns context-deployed credentials, falling back
// to the supplied defaults
func CredentialsFromContext(ctx context.Context, fallback *Credentials) *Credentials {
	if creds, ok := ctx.Value(ContextCredentialsFlag).(*Credentials); ok && !creds.IsEmpty() {
		return creds
	}
	return fallback
}
