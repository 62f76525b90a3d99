package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/viridial/authcore"
	promexport "github.com/viridial/authcore/metrics/export/prometheus"
	"github.com/viridial/authcore/middleware"
)

func newRouter(engine *authcore.Engine, logger *zap.Logger, cfg serverConfig) (http.Handler, error) {
	resolver, err := middleware.NewIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	h := &handlers{engine: engine}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM, resolver)
	guard := middleware.Guard(engine)

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsHandler(cfg.CORSOrigins))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promexport.NewCollector(engine).Handler())

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(resolver.ClientContext)

		auth.Group(func(public chi.Router) {
			public.Use(limiter.Handler)
			public.Post("/signup", h.signUp)
			public.Post("/signin", h.signIn)
			public.Post("/refresh", h.refresh)
			public.Post("/logout", h.logout)
			public.Post("/verify-email", h.verifyEmail)
			public.Post("/resend-verification", h.resendVerification)
		})

		auth.With(guard).Get("/me", h.me)

		auth.Route("/accounts/{identifier}", func(admin chi.Router) {
			admin.Use(guard, middleware.RequireRole("admin"))
			admin.Get("/attempts", h.loginAttempts)
			admin.Post("/unlock", h.unlock)
		})
	})

	return r, nil
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	})
	return c.Handler
}
