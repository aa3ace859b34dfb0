package router

import (
	"net/http"

	"github.com/webxv/backend/internal/handlers"
	"github.com/webxv/backend/internal/middleware"
	"github.com/webxv/backend/internal/models"
)

// New returns an http.Handler serving the API under /v1.
// Middleware chain: JWTAuth -> (RequireRole(admin) on /v1/admin) -> handler.
func New(
	authHandler *handlers.AuthHandler,
	walletHandler *handlers.WalletHandler,
	engagementHandler *handlers.EngagementHandler,
	adminHandler *handlers.AdminHandler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.JWTAuth(validator)
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleAdmin)(h))
	}

	// Public.
	mux.HandleFunc("POST /v1/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Account.
	mux.Handle("GET /v1/auth/me", authed(http.HandlerFunc(authHandler.Me)))
	mux.Handle("GET /v1/auth/referral", authed(http.HandlerFunc(authHandler.ReferralLink)))

	// Wallet.
	mux.Handle("POST /v1/wallet/points/transfer", authed(http.HandlerFunc(walletHandler.TransferPoints)))
	mux.Handle("POST /v1/wallet/tokens/transfer", authed(http.HandlerFunc(walletHandler.TransferTokens)))
	mux.Handle("GET /v1/wallet/points/transactions", authed(http.HandlerFunc(walletHandler.ListPointsTransactions)))
	mux.Handle("GET /v1/wallet/tokens/transactions", authed(http.HandlerFunc(walletHandler.ListTokenTransactions)))

	// Engagement.
	mux.Handle("POST /v1/activities/communities/join", authed(http.HandlerFunc(engagementHandler.JoinCommunity)))
	mux.Handle("GET /v1/activities/communities", authed(http.HandlerFunc(engagementHandler.ListCommunityJoins)))
	mux.Handle("POST /v1/activities/games", authed(http.HandlerFunc(engagementHandler.PlayGame)))
	mux.Handle("POST /v1/activities/daily-login", authed(http.HandlerFunc(engagementHandler.ClaimDailyLogin)))
	mux.Handle("GET /v1/activities/history", authed(http.HandlerFunc(engagementHandler.ListHistory)))

	// Admin.
	mux.Handle("POST /v1/admin/activity-configs", admin(adminHandler.CreateConfig))
	mux.Handle("GET /v1/admin/activity-configs", admin(adminHandler.ListConfigs))
	mux.Handle("GET /v1/admin/activity-configs/{id}", admin(adminHandler.GetConfig))
	mux.Handle("PUT /v1/admin/activity-configs/{id}", admin(adminHandler.UpdateConfig))
	mux.Handle("DELETE /v1/admin/activity-configs/{id}", admin(adminHandler.DeleteConfig))

	return mux
}
