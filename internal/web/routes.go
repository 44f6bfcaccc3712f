package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facegate/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	studentsHandler := handlers.NewStudentsHandler(s.config, s.store, s.vision, s.cache)
	attendanceHandler := handlers.NewAttendanceHandler(s.coordinator, s.store)
	livenessHandler := handlers.NewLivenessHandler(s.coordinator)
	streamHandler := handlers.NewStreamHandler(s.coordinator)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Register)
		r.Get("/students/{id}", studentsHandler.Get)
		r.Put("/students/{id}/active", studentsHandler.SetActive)
		r.Delete("/students/{id}", studentsHandler.Delete)

		// Attendance
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/history", attendanceHandler.History)

		// Liveness
		r.Post("/liveness/check", livenessHandler.Check)
	})

	// Realtime recognition stream
	s.router.Get("/ws", streamHandler.Serve)
}
