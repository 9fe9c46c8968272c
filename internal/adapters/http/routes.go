package web

import (
	"net/http"

	"slotmanager/internal/adapters/http/middleware"
)

func registerRoutes(mux *http.ServeMux) {
	member := func(h http.HandlerFunc) http.Handler { return middleware.RequireUser(h) }
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	mux.HandleFunc("GET /health", handleHealth)

	mux.Handle("GET /api/slots/next", member(handleGetNextSlot))
	mux.Handle("GET /api/slots", member(handleListSlots))
	mux.Handle("GET /api/slots/{id}", member(handleGetSlot))
	mux.Handle("POST /api/slots/{id}/register", member(handleRegister))
	mux.Handle("PUT /api/slots/{id}/register", member(handleUpdateRegistration))
	mux.Handle("DELETE /api/slots/{id}/register", member(handleCancelRegistration))
	mux.Handle("PUT /api/slots/{id}/details", admin(handleRecordDetails))

	mux.Handle("GET /api/stats", member(handleGetStats))
	mux.Handle("GET /api/stats/user/{id}", member(handleGetUserStats))

	mux.Handle("GET /api/me", member(handleGetMe))
	mux.Handle("GET /api/users", member(handleListUsers))
	mux.Handle("POST /api/users", member(handleCreateUser))
	mux.Handle("GET /api/users/{id}", member(handleGetUser))
	mux.Handle("PUT /api/users/{id}", member(handleUpdateUser))

	mux.Handle("GET /api/admin/perf", admin(handleAdminPerf))
}
