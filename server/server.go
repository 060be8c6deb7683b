// Package server exposes the authentication core over HTTP: login, refresh,
// logout, plus the JWKS document for downstream verifiers.
package server

import (
	"net/http"

	"github.com/jwillz7667/verbio-auth/auth"
	"github.com/jwillz7667/verbio-auth/internal/config"
	"github.com/jwillz7667/verbio-auth/token"
)

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.Service
	issuer *token.Issuer
	signer *token.KeyPairSigner
}

func New(cfg config.Config, authService *auth.Service, issuer *token.Issuer, signer *token.KeyPairSigner) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		auth:   authService,
		issuer: issuer,
		signer: signer,
	}
	s.env = cfg.GetEnv()
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}
