package common

// Cookie names used to carry the token pair between the server and
// browser clients. The core only produces and consumes the token strings;
// these names belong to the transport convention.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)
