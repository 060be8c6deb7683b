package server

const (
	RouteLogin  = "/v1/auth/login"
	RouteToken  = "/v1/auth/refresh"
	RouteLogout = "/v1/auth/logout"
	RouteMe     = "/v1/auth/me"

	RouteWellKnownJWKS = "/.well-known/jwks.json"
	RouteHealthz       = "/healthz"
)
