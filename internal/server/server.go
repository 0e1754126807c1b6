package server

import (
	"docforge-backend/internal/handler"
	appmiddleware "docforge-backend/internal/middleware"
	"docforge-backend/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo              *echo.Echo
	paymentHandler    *handler.PaymentHandler
	membershipHandler *handler.MembershipHandler
	promoHandler      *handler.PromoHandler
	adminJWTSecret    string
}

func NewServer(paymentService service.PaymentService, membershipService service.MembershipService, promoService service.PromoService, adminJWTSecret string) *Server {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:              e,
		paymentHandler:    handler.NewPaymentHandler(paymentService),
		membershipHandler: handler.NewMembershipHandler(membershipService),
		promoHandler:      handler.NewPromoHandler(promoService),
		adminJWTSecret:    adminJWTSecret,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- payment --------
	payment := api.Group("/payment")
	payment.GET("/plans", s.paymentHandler.GetPlans)
	payment.POST("/create-order", s.paymentHandler.CreateOrder)
	payment.GET("/orders", s.paymentHandler.ListOrders)

	// -------- gateway-facing --------
	payment.POST("/alipay/create", s.paymentHandler.AlipayCreate)
	payment.POST("/alipay/notify", s.paymentHandler.AlipayNotify)
	payment.GET("/alipay/query", s.paymentHandler.AlipayQuery)

	// -------- membership --------
	api.GET("/membership", s.membershipHandler.Get)

	// -------- promo --------
	promo := api.Group("/promo")
	promo.POST("/redeem", s.promoHandler.Redeem)

	admin := promo.Group("", appmiddleware.AdminAuth(s.adminJWTSecret))
	admin.POST("/generate", s.promoHandler.Generate)
	admin.GET("/list", s.promoHandler.List)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
