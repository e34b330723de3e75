// Package auth provides pluggable bearer authentication for the HTTP stream
// transport. An Authenticator validates an incoming bearer token string and
// returns a UserInfo (or an error); the transport extracts the token from the
// request and maps sentinel errors into WWW-Authenticate challenges.
//
// Three constructors cover the common deployments:
//
//	auth.NewHMAC(secret)                     // shared-secret HS256 tokens
//	auth.NewFromJWKS(ctx, jwksURL, ...)      // asymmetric keys, static JWKS
//	auth.NewFromDiscovery(ctx, issuer, ...)  // OIDC discovery of the JWKS
//
// Validation knobs (issuer, audiences, scopes, algorithms, leeway) are
// functional options.
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but missing
// required scope(s). ChallengeFor turns either into the matching challenge.
package auth
