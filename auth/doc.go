// Package auth attaches credentials to outgoing request descriptors.
//
// The client runs its Authenticator over every descriptor whose Auth flag
// is set, just before submission. Authenticators return a new descriptor;
// the input is never modified.
//
// Implementations:
//   - TokenSourceAuthenticator: OAuth2 access tokens from an oauth2.TokenSource.
//   - APIKeyAuthenticator: a static or secretref-resolved key in a header.
//   - JWTSigner: self-minted HS256 tokens, cached until near expiry.
//   - CompositeAuthenticator: applies several in order.
package auth
