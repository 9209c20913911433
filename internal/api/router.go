package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/store"
)

// Deps are what the router's handlers need.
type Deps struct {
	DB        *sql.DB
	JWTSecret string
	Store     store.ItemStore
	Sessions  *Sessions
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	queueHandler := &QueueHandler{Sessions: d.Sessions}
	itemsHandler := &ItemsHandler{Store: d.Store, Sessions: d.Sessions}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireOperator := RequireRole(model.RoleOperator)

	// operator wraps workflow endpoints: authenticated and bound to a session.
	operator := func(h http.HandlerFunc) http.Handler {
		return authMW(requireOperator(SessionMiddleware(h)))
	}

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Operator accounts (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Queue and workflow.
	mux.Handle("GET /api/keymap", authMW(http.HandlerFunc(Keymap)))
	mux.Handle("GET /api/queue", operator(queueHandler.Get))
	mux.Handle("POST /api/items/{kind}/{id}/claim", operator(itemsHandler.Claim))
	mux.Handle("GET /api/items/{kind}/{id}/workflow", operator(itemsHandler.Workflow))
	mux.Handle("POST /api/items/{kind}/{id}/steps/{action}", operator(itemsHandler.Step))
	mux.Handle("PUT /api/items/{kind}/{id}/reference", operator(itemsHandler.Reference))
	mux.Handle("POST /api/items/{kind}/{id}/draft", operator(itemsHandler.Draft))
	mux.Handle("POST /api/items/{kind}/{id}/publish", operator(itemsHandler.Publish))
	mux.Handle("POST /api/items/{kind}/{id}/error", operator(itemsHandler.Error))
	mux.Handle("GET /api/items/{kind}/{id}/audit", authMW(http.HandlerFunc(itemsHandler.Audit)))

	return mux
}
