package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger zerolog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Campfire API", "/openapi.json", "/docs"))
	r.Handle("/metrics", promhttp.Handler())
	if d.Mount != nil {
		d.Mount(r)
	}

	tick := handleTick(d.Engine, d.CronSecret, logger)
	r.Get("/api/cron/tick", tick)
	r.Post("/api/cron/tick", tick)

	r.Post("/api/auth/login", handleLogin(d.Auth, logger))
	r.With(requireUser(d.Auth)).Post("/api/auth/access", handleAccessCode(d.Auth, logger))

	r.Route("/api/game", func(r chi.Router) {
		r.Get("/state", handleGameState(d.Campaign, logger))
		r.Get("/echoes", handleEchoes(d.Campaign, logger))
		r.Get("/tally", handleTally(d.Campaign, logger))

		r.Group(func(r chi.Router) {
			r.Use(requireUser(d.Auth))
			r.Use(requireAccess(d.Auth, logger))
			r.Post("/submissions", handleSubmit(d.Campaign, logger))
			r.Post("/submissions/{id}/boost", handleBoost(d.Campaign, logger))
			r.Post("/votes", handleVote(d.Campaign, logger))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireUser(d.Auth))
		r.Get("/status", handleAdminStatus(d.Auth, logger))

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(d.Auth, logger))
			r.Patch("/game-state", handleSetPhase(d.Campaign, logger))
			r.Post("/voting", handleOpenVoting(d.Campaign, logger))
			r.Post("/synthesize", handleSynthesize(d.Campaign, logger))
			r.Post("/episodes", handlePublishEpisode(d.Campaign, logger))
			r.Post("/campaign/ignite", handleIgnite(d.Campaign, logger))
			r.Post("/campaign/reset", handleReset(d.Campaign, logger))
			r.Post("/simulate", handleSimulate(d.Campaign, logger))
			r.Get("/episodes/{id}/submissions", handleSubmissionStats(d.Campaign, logger))
			r.Get("/episodes/{id}/options", handleOptionStats(d.Campaign, logger))

			r.Post("/oracle", handleOracle(d.Campaign, logger))
			r.Post("/campaign/genesis", handleGenesis(d.Campaign, logger))
			r.Get("/series-bible", handleActiveBible(d.Campaign, logger))
			r.Post("/continuity", handleContinuity(d.Campaign, logger))
			r.Post("/director/beats", handleBeatSheet(d.Campaign, logger))
			r.Post("/director/script", handleScript(d.Campaign, logger))
			r.Post("/director/audio", handlePolish(d.Campaign, logger))
		})
	})
}
