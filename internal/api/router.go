package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/predictru/backend/internal/api/handler"
	"github.com/predictru/backend/internal/api/middleware"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/service"
	"github.com/predictru/backend/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc        *service.AuthService
	UserSvc        *service.UserService
	MarketSvc      *service.MarketService
	TradeSvc       *service.TradeService
	OrderBookSvc   *service.OrderBookService
	ResolutionSvc  *service.ResolutionService
	BetSvc         *service.PrivateBetService
	LeaderboardSvc *service.LeaderboardService
	Hub            *ws.Hub
	Cfg            *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(deps.AuthSvc, deps.Cfg)
	userH := handler.NewUserHandler(deps.UserSvc, deps.LeaderboardSvc)
	marketH := handler.NewMarketHandler(deps.MarketSvc)
	tradeH := handler.NewTradeHandler(deps.TradeSvc)
	bookH := handler.NewOrderBookHandler(deps.OrderBookSvc)
	betH := handler.NewBetHandler(deps.BetSvc)
	proposalH := handler.NewProposalHandler(deps.MarketSvc)
	adminH := handler.NewAdminHandler(deps.MarketSvc, deps.ResolutionSvc)

	// ── Shared middleware ────────────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)
	adminMW := middleware.AdminMiddleware(deps.Cfg)

	// ── Rate limiters ────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(5, 10) // strict for login endpoints
	tradeRL := middleware.RateLimitMiddleware(deps.Cfg.RateLimit.RPS, deps.Cfg.RateLimit.Burst)

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/telegram", authH.TelegramLogin)
			auth.POST("/widget", authH.WidgetLogin)
			auth.POST("/bot-login/init", authH.BotLoginInit)
			auth.GET("/bot-login/status", authH.BotLoginStatus)
		}

		// ── Markets (public reads, authed comments) ──────────────────────────
		markets := api.Group("/markets")
		{
			markets.GET("", marketH.List)
			markets.GET("/:id", marketH.GetByID)
			markets.GET("/:id/history", marketH.GetHistory)
			markets.GET("/:id/comments", marketH.ListComments)
			markets.POST("/:id/comments", jwtMW, marketH.AddComment)
		}

		// ── Analytics ────────────────────────────────────────────────────────
		analytics := api.Group("/analytics")
		{
			analytics.GET("/market/:id/stats", marketH.MarketStats)
			analytics.GET("/me/stats", jwtMW, userH.MyStats)
		}

		// ── Order book (public views) ────────────────────────────────────────
		book := api.Group("/orderbook/markets")
		{
			book.GET("/:id/book", bookH.GetBook)
			book.GET("/:id/trades", bookH.GetTrades)
		}

		// ── Users (public views) ─────────────────────────────────────────────
		users := api.Group("/users")
		{
			users.GET("/leaderboard", userH.Leaderboard)
			users.GET("/:user_id/profile", userH.Profile)
		}

		// ── Bet preview (public, opened from invite links) ───────────────────
		api.GET("/bets/preview/:code", betH.Preview)

		// ── Authenticated routes ─────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Account
			me := authed.Group("/users/me")
			{
				me.GET("", userH.Me)
				me.GET("/positions", userH.Positions)
				me.GET("/transactions", userH.Transactions)
				me.POST("/deposit", userH.Deposit)
				me.POST("/withdraw", userH.Withdraw)
				me.POST("/daily-bonus", userH.DailyBonus)
				me.POST("/referral/:code", userH.ApplyReferral)
			}

			// Market-maker trades
			trades := authed.Group("/trades")
			trades.Use(tradeRL)
			{
				trades.POST("/buy", tradeH.Buy)
				trades.POST("/sell", tradeH.Sell)
			}

			// Limit orders
			orders := authed.Group("/orderbook/orders")
			orders.Use(tradeRL)
			{
				orders.POST("", bookH.PlaceOrder)
				orders.GET("/my", bookH.MyOrders)
				orders.DELETE("/:id", bookH.CancelOrder)
			}

			// Private bets
			bets := authed.Group("/bets")
			{
				bets.POST("", betH.Create)
				bets.GET("/my", betH.GetMyBets)
				bets.GET("/lookup/:code", betH.Lookup)
				bets.POST("/join", betH.Join)
				bets.GET("/:bet_id", betH.GetByID)
				bets.POST("/:bet_id/start-voting", betH.StartVoting)
				bets.POST("/:bet_id/vote", betH.Vote)
			}

			// Market proposals
			ugc := authed.Group("/ugc/proposals")
			{
				ugc.POST("", proposalH.Propose)
				ugc.GET("/my", proposalH.MyProposals)
				ugc.GET("/pending", adminMW, proposalH.Pending)
				ugc.POST("/:id/approve", adminMW, proposalH.Approve)
				ugc.POST("/:id/reject", adminMW, proposalH.Reject)
			}

			// Admin
			admin := authed.Group("/admin")
			admin.Use(adminMW)
			{
				admin.POST("/markets", adminH.CreateMarket)
				admin.PUT("/markets/:id", adminH.UpdateMarket)
				admin.POST("/markets/:id/resolve", adminH.ResolveMarket)
				admin.POST("/markets/:id/cancel", adminH.CancelMarket)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only the site and the
// Mini App host.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://predict.ru":     true,
				"https://www.predict.ru": true,
				"https://app.predict.ru": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
