package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/opsledger/internal/accesscode"
	accesscodedomain "github.com/smallbiznis/opsledger/internal/accesscode/domain"
	"github.com/smallbiznis/opsledger/internal/account"
	accountdomain "github.com/smallbiznis/opsledger/internal/account/domain"
	"github.com/smallbiznis/opsledger/internal/audit"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/auth"
	"github.com/smallbiznis/opsledger/internal/auth/cookie"
	authdomain "github.com/smallbiznis/opsledger/internal/auth/domain"
	"github.com/smallbiznis/opsledger/internal/authorization"
	"github.com/smallbiznis/opsledger/internal/balance"
	balancedomain "github.com/smallbiznis/opsledger/internal/balance/domain"
	"github.com/smallbiznis/opsledger/internal/cache"
	"github.com/smallbiznis/opsledger/internal/company"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/opsledger/internal/dashboard/domain"
	"github.com/smallbiznis/opsledger/internal/events"
	"github.com/smallbiznis/opsledger/internal/expense"
	expensedomain "github.com/smallbiznis/opsledger/internal/expense/domain"
	"github.com/smallbiznis/opsledger/internal/mission"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
	"github.com/smallbiznis/opsledger/internal/observability"
	obslogger "github.com/smallbiznis/opsledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opsledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/opsledger/internal/observability/tracing"
	"github.com/smallbiznis/opsledger/internal/payment"
	paymentdomain "github.com/smallbiznis/opsledger/internal/payment/domain"
	"github.com/smallbiznis/opsledger/internal/profile"
	profiledomain "github.com/smallbiznis/opsledger/internal/profile/domain"
	"github.com/smallbiznis/opsledger/internal/provider"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
	"github.com/smallbiznis/opsledger/internal/ratelimit"
	"github.com/smallbiznis/opsledger/internal/realtime"
	"github.com/smallbiznis/opsledger/internal/revenue"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"github.com/smallbiznis/opsledger/internal/tenant"
	"github.com/smallbiznis/opsledger/internal/transaction"
	transactiondomain "github.com/smallbiznis/opsledger/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	session.Module,
	tenant.Module,
	ratelimit.Module,
	authorization.Module,
	audit.Module,
	events.Module,
	realtime.Module,
	auth.Module,
	company.Module,
	profile.Module,
	accesscode.Module,
	provider.Module,
	mission.Module,
	account.Module,
	transaction.Module,
	payment.Module,
	revenue.Module,
	balance.Module,
	expense.Module,
	dashboard.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		Quiet:           obslogger.DefaultQuietRoutes,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	authsvc    authdomain.Service
	cookies    *cookie.Manager
	guard      *tenant.Guard
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	companySvc companydomain.Service
	profileSvc profiledomain.Service

	accessCodeSvc  accesscodedomain.Service
	providerSvc    providerdomain.Service
	missionSvc     missiondomain.Service
	accountSvc     accountdomain.Service
	transactionSvc transactiondomain.Service
	paymentSvc     paymentdomain.Service
	revenueSvc     revenuedomain.Service
	balanceSvc     balancedomain.Service
	expenseSvc     expensedomain.Service
	dashboardSvc   dashboarddomain.Service

	events *realtime.Hub
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	Authsvc        authdomain.Service
	Cookies        *cookie.Manager
	Guard          *tenant.Guard
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	CompanySvc     companydomain.Service
	ProfileSvc     profiledomain.Service
	AccessCodeSvc  accesscodedomain.Service
	ProviderSvc    providerdomain.Service
	MissionSvc     missiondomain.Service
	AccountSvc     accountdomain.Service
	TransactionSvc transactiondomain.Service
	PaymentSvc     paymentdomain.Service
	RevenueSvc     revenuedomain.Service
	BalanceSvc     balancedomain.Service
	ExpenseSvc     expensedomain.Service
	DashboardSvc   dashboarddomain.Service
	Events         *realtime.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		authsvc:        p.Authsvc,
		cookies:        p.Cookies,
		guard:          p.Guard,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		companySvc:     p.CompanySvc,
		profileSvc:     p.ProfileSvc,
		accessCodeSvc:  p.AccessCodeSvc,
		providerSvc:    p.ProviderSvc,
		missionSvc:     p.MissionSvc,
		accountSvc:     p.AccountSvc,
		transactionSvc: p.TransactionSvc,
		paymentSvc:     p.PaymentSvc,
		revenueSvc:     p.RevenueSvc,
		balanceSvc:     p.BalanceSvc,
		expenseSvc:     p.ExpenseSvc,
		dashboardSvc:   p.DashboardSvc,
		events:         p.Events,
	}

	svc.registerAuthRoutes()
	svc.registerRPCRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.SessionRequired(), s.Me)
}

func (s *Server) registerRPCRoutes() {
	rpc := s.engine.Group("/api/rpc", s.SessionRequired())

	// Redemption runs before the caller has a company, so it is gated by the
	// session and the per-user limiter only.
	rpc.POST("/redeem_access_code", s.RedeemAccessCode)
	rpc.POST("/convert_pending_to_confirmed_revenue", s.authorize(authorization.ObjectRevenue, authorization.ActionConfirm), s.ConvertPendingRevenue)
	rpc.POST("/recalculate_provider_balance", s.authorize(authorization.ObjectBalance, authorization.ActionRecalculate), s.RecalculateProviderBalance)
	rpc.POST("/manually_settle_pending_payments", s.authorize(authorization.ObjectBalance, authorization.ActionSettle), s.SettlePendingPayments)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.SessionRequired())

	// -------- Company --------
	api.POST("/companies", s.CreateCompany)
	api.GET("/companies/current", s.GetCurrentCompany)

	// -------- Employees --------
	api.GET("/employees", s.authorize(authorization.ObjectEmployee, authorization.ActionView), s.ListEmployees)
	api.POST("/employees/:id/deactivate", s.authorize(authorization.ObjectEmployee, authorization.ActionManage), s.DeactivateEmployee)

	// -------- Access codes --------
	api.GET("/access-codes", s.authorize(authorization.ObjectAccessCode, authorization.ActionList), s.ListAccessCodes)
	api.POST("/access-codes", s.authorize(authorization.ObjectAccessCode, authorization.ActionIssue), s.IssueAccessCode)
	api.DELETE("/access-codes/:id", s.authorize(authorization.ObjectAccessCode, authorization.ActionRevoke), s.RevokeAccessCode)

	// -------- Providers --------
	api.GET("/providers", s.authorize(authorization.ObjectProvider, authorization.ActionView), s.ListProviders)
	api.POST("/providers", s.authorize(authorization.ObjectProvider, authorization.ActionManage), s.CreateProvider)
	api.GET("/providers/:id", s.authorize(authorization.ObjectProvider, authorization.ActionView), s.GetProvider)
	api.PATCH("/providers/:id", s.authorize(authorization.ObjectProvider, authorization.ActionManage), s.UpdateProvider)
	api.POST("/providers/:id/deactivate", s.authorize(authorization.ObjectProvider, authorization.ActionManage), s.DeactivateProvider)
	api.GET("/providers/:id/balance", s.authorize(authorization.ObjectBalance, authorization.ActionView), s.GetProviderBalance)
	api.POST("/providers/:id/recalculate", s.authorize(authorization.ObjectBalance, authorization.ActionRecalculate), s.RecalculateProvider)
	api.POST("/providers/:id/settle", s.authorize(authorization.ObjectBalance, authorization.ActionSettle), s.SettleProvider)

	// -------- Missions --------
	api.GET("/missions", s.authorize(authorization.ObjectMission, authorization.ActionView), s.ListMissions)
	api.POST("/missions", s.authorize(authorization.ObjectMission, authorization.ActionManage), s.CreateMission)
	api.GET("/missions/:id", s.authorize(authorization.ObjectMission, authorization.ActionView), s.GetMission)
	api.POST("/missions/:id/status", s.authorize(authorization.ObjectMission, authorization.ActionManage), s.UpdateMissionStatus)
	api.POST("/missions/:id/approve", s.authorize(authorization.ObjectMission, authorization.ActionManage), s.ApproveMission)
	api.PUT("/missions/:id/providers", s.authorize(authorization.ObjectMission, authorization.ActionManage), s.AssignMissionProviders)

	// -------- Revenue --------
	api.GET("/pending-revenues", s.authorize(authorization.ObjectRevenue, authorization.ActionView), s.ListPendingRevenues)
	api.POST("/pending-revenues", s.authorize(authorization.ObjectRevenue, authorization.ActionCreate), s.CreatePendingRevenue)
	api.GET("/pending-revenues/:id", s.authorize(authorization.ObjectRevenue, authorization.ActionView), s.GetPendingRevenue)
	api.POST("/pending-revenues/:id/confirm", s.authorize(authorization.ObjectRevenue, authorization.ActionConfirm), s.ConfirmPendingRevenue)
	api.POST("/pending-revenues/:id/cancel", s.authorize(authorization.ObjectRevenue, authorization.ActionCancel), s.CancelPendingRevenue)
	api.GET("/confirmed-revenues", s.authorize(authorization.ObjectRevenue, authorization.ActionView), s.ListConfirmedRevenues)
	api.GET("/confirmed-revenues/:id", s.authorize(authorization.ObjectRevenue, authorization.ActionView), s.GetConfirmedRevenue)

	// -------- Payments --------
	api.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.ListPayments)
	api.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionManage), s.CreateAdvancePayment)
	api.GET("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.GetPayment)
	api.POST("/payments/:id/status", s.authorize(authorization.ObjectPayment, authorization.ActionManage), s.UpdatePaymentStatus)

	// -------- Accounts --------
	api.GET("/accounts", s.authorize(authorization.ObjectAccount, authorization.ActionView), s.ListAccounts)
	api.POST("/accounts", s.authorize(authorization.ObjectAccount, authorization.ActionManage), s.CreateAccount)
	api.GET("/accounts/:id", s.authorize(authorization.ObjectAccount, authorization.ActionView), s.GetAccount)

	// -------- Expenses --------
	api.GET("/expenses", s.authorize(authorization.ObjectExpense, authorization.ActionView), s.ListExpenses)
	api.POST("/expenses", s.authorize(authorization.ObjectExpense, authorization.ActionCreate), s.RecordExpense)
	api.GET("/expenses/:id", s.authorize(authorization.ObjectExpense, authorization.ActionView), s.GetExpense)
	api.POST("/expenses/:id/approve", s.authorize(authorization.ObjectExpense, authorization.ActionReview), s.ApproveExpense)
	api.POST("/expenses/:id/reject", s.authorize(authorization.ObjectExpense, authorization.ActionReview), s.RejectExpense)
	api.POST("/expenses/:id/reimburse", s.authorize(authorization.ObjectExpense, authorization.ActionReview), s.ReimburseExpense)

	// -------- Transactions --------
	api.GET("/transactions", s.authorize(authorization.ObjectTransaction, authorization.ActionView), s.ListTransactions)
	api.POST("/transactions", s.authorize(authorization.ObjectTransaction, authorization.ActionManage), s.RecordTransaction)
	api.GET("/transactions/:id", s.authorize(authorization.ObjectTransaction, authorization.ActionView), s.GetTransaction)
	api.POST("/transactions/:id/complete", s.authorize(authorization.ObjectTransaction, authorization.ActionManage), s.CompleteTransaction)
	api.POST("/transactions/:id/cancel", s.authorize(authorization.ObjectTransaction, authorization.ActionManage), s.CancelTransaction)

	// -------- Dashboard --------
	api.GET("/dashboard/summary", s.authorize(authorization.ObjectDashboard, authorization.ActionView), s.GetDashboardSummary)

	// -------- Live events --------
	if s.events != nil {
		api.GET("/events/ws", s.events.Handler)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.SessionRequired())

	admin.GET("/isolation-audit", s.authorize(authorization.ObjectIsolation, authorization.ActionAudit), s.AuditIsolation)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}
