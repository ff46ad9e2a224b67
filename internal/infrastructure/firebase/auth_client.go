package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// AuthClient wraps the Firebase auth client for token minting. Verification on
// the request path goes through the auth middleware directly.
type AuthClient struct {
	client *auth.Client
}

func NewAuthClient(client *auth.Client) *AuthClient {
	return &AuthClient{
		client: client,
	}
}

// GenerateToken mints a custom token for uid. Used by the development token
// endpoint; a client exchanges it for an ID token via the Firebase SDK.
func (f *AuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	token, err := f.client.CustomToken(ctx, uid)
	if err != nil {
		return "", err
	}

	return token, nil
}
