package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/youquan/minishop/internal/app"
	"github.com/youquan/minishop/internal/app/handlers"
	"github.com/youquan/minishop/internal/config"
	"github.com/youquan/minishop/internal/jwt-new/jwtmiddleware"
	"github.com/youquan/minishop/internal/lib/logger"
	"github.com/youquan/minishop/internal/lib/logger/handlers/urllog"
	"github.com/youquan/minishop/internal/service"
	"github.com/youquan/minishop/internal/storage"
	"github.com/youquan/minishop/internal/wechat"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения: конфиг, подключение к БД и redis
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()
	defer application.Redis.Close()

	// ключи платёжного шлюза читаются один раз при старте
	privateKeyPEM, err := os.ReadFile(cfg.Pay.PrivateKeyPath)
	if err != nil {
		log.Error("failed to read pay private key", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to read pay private key"))
	}
	platformCertPEM, err := os.ReadFile(cfg.Pay.PlatformCert)
	if err != nil {
		log.Error("failed to read pay platform cert", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to read pay platform cert"))
	}

	credCache := wechat.NewCredentialCache(application.Redis)
	oauthClient := wechat.NewOAuthClient(log, credCache, cfg.WeChat.AppID, cfg.WeChat.AppSecret)
	payClient, err := wechat.NewPayClient(log, cfg.WeChat.AppID, cfg.Pay.MchID, cfg.Pay.SerialNo,
		cfg.Pay.APIv3Key, privateKeyPEM, platformCertPEM, cfg.BaseURL+"/v1/pay/callback")
	if err != nil {
		log.Error("failed to initialize pay client", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize pay client"))
	}

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	addressRepo := storage.NewAddressRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)

	authService := service.NewAuthService(application.Logger, userRepo, oauthClient, time.Duration(cfg.JWT.TokenTTL)*time.Minute)
	catalogService := service.NewCatalogService(application.Logger, productRepo)
	cartService := service.NewCartService(application.Logger, cartRepo, productRepo)
	addressService := service.NewAddressService(application.Logger, addressRepo)
	orderService := service.NewOrderService(application.Logger, application.DB, productRepo, orderRepo, addressRepo, cfg.ClientURL)
	paymentService := service.NewPaymentService(application.Logger, orderRepo, payClient)

	router.Route("/v1", func(v1 chi.Router) {
		// открытые эндпоинты
		v1.Post("/user/login", handlers.LoginHandler(application.Logger, authService))
		v1.Post("/user/test-login", handlers.TestLoginHandler(application.Logger, authService))
		v1.Get("/shop/products", handlers.ListProductsHandler(application.Logger, catalogService))
		v1.Get("/shop/products/{id}", handlers.ProductDetailHandler(application.Logger, catalogService))
		v1.Get("/shop/products/{id}/specs", handlers.ProductSpecsHandler(application.Logger, catalogService))
		v1.Get("/shop/categories", handlers.ListCategoriesHandler(application.Logger, catalogService))
		v1.Get("/shop/share/{shareCode}", handlers.ShareDetailHandler(application.Logger, orderService))
		// служебные эндпоинты для сервера WeChat
		v1.Get("/wechat/verify", handlers.WechatEchoHandler(application.Logger, cfg.WeChat.Token))
		v1.Get("/wechat/js-config", handlers.JSConfigHandler(application.Logger, oauthClient))
		// вебхук шлюза: аутентификация — подпись платформы, не JWT
		v1.Post("/pay/callback", handlers.PayCallbackHandler(application.Logger, paymentService))

		v1.Group(func(r chi.Router) {
			jwtMW := jwtmiddleware.NewJWTMiddleware()
			r.Use(jwtMW)

			r.Get("/user/profile", handlers.ProfileHandler(application.Logger, authService))
			r.Post("/user/logout", handlers.LogoutHandler(application.Logger, authService))

			r.Get("/shop/cart", handlers.ListCartHandler(application.Logger, cartService))
			r.Post("/shop/cart", handlers.AddToCartHandler(application.Logger, cartService))
			r.Delete("/shop/cart", handlers.ClearCartHandler(application.Logger, cartService))
			r.Put("/shop/cart/{id}", handlers.UpdateCartItemHandler(application.Logger, cartService))
			r.Delete("/shop/cart/{id}", handlers.RemoveCartItemHandler(application.Logger, cartService))

			r.Get("/shop/addresses", handlers.ListAddressesHandler(application.Logger, addressService))
			r.Post("/shop/addresses", handlers.CreateAddressHandler(application.Logger, addressService))
			r.Put("/shop/addresses/{id}", handlers.UpdateAddressHandler(application.Logger, addressService))
			r.Delete("/shop/addresses/{id}", handlers.DeleteAddressHandler(application.Logger, addressService))
			r.Put("/shop/addresses/{id}/default", handlers.SetDefaultAddressHandler(application.Logger, addressService))

			r.Post("/shop/orders/preview", handlers.PreviewOrderHandler(application.Logger, orderService))
			r.Post("/shop/orders", handlers.CreateOrderHandler(application.Logger, orderService))
			r.Get("/shop/orders", handlers.ListOrdersHandler(application.Logger, orderService))
			r.Delete("/shop/orders", handlers.ClearOrdersHandler(application.Logger, orderService))
			r.Get("/shop/orders/{orderNo}", handlers.OrderDetailHandler(application.Logger, orderService))
			r.Put("/shop/orders/{orderNo}/address", handlers.UpdateOrderAddressHandler(application.Logger, orderService))
			r.Put("/shop/orders/{orderNo}/status", handlers.UpdateOrderStatusHandler(application.Logger, orderService))
			r.Delete("/shop/orders/{orderNo}", handlers.DeleteOrderHandler(application.Logger, orderService))
			r.Post("/shop/orders/{orderNo}/share", handlers.ShareOrderHandler(application.Logger, orderService))

			r.Post("/pay/params", handlers.PayParamsHandler(application.Logger, paymentService))
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
