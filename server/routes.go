package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteToken, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Bearer token required.
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), append(s.APIMiddleware(), s.RequireAccessToken())...))

	s.RegisterRouteFunc("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}
