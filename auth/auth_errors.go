package auth

import "errors"

// Failure taxonomy of the authentication core. The HTTP layer collapses all
// of these except InternalErr into one generic unauthorized response; the
// distinctions exist for server-side telemetry and tests.
var (
	InvalidCredentialErr   = errors.New("invalid credential")
	InvalidRefreshTokenErr = errors.New("invalid refresh token")
	RefreshTokenExpiredErr = errors.New("refresh token expired")
	RefreshTokenRevokedErr = errors.New("refresh token revoked")
	InternalErr            = errors.New("internal failure")
)
