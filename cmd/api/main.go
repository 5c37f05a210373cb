package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/course-api/internal/config"
	"github.com/yourusername/course-api/internal/handler"
	"github.com/yourusername/course-api/internal/middleware"
	pgRepo "github.com/yourusername/course-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/course-api/internal/repository/redis"
	"github.com/yourusername/course-api/internal/service"
	"github.com/yourusername/course-api/pkg/auth"
	"github.com/yourusername/course-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	courseRepo := pgRepo.NewCourseRepo(db)
	entitlementRepo := pgRepo.NewEntitlementRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Инициализируем JWT сервис
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Выбираем доставку почты: Resend в проде, noop при выключенной отправке
	var emailService service.EmailService
	if cfg.Email.Enabled {
		emailService, err = service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.FromAddress, cfg.Email.BaseURL)
		if err != nil {
			log.Printf("Failed to initialize ResendEmailService: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("Отправка почты отключена, используется noop-доставка")
		emailService = &service.NoopEmailService{}
	}

	// Инициализируем сервисы
	authService, err := service.NewAuthService(userRepo, jwtService, emailService)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	fulfillmentService, err := service.NewFulfillmentService(userRepo, courseRepo, entitlementRepo, cacheRepo)
	if err != nil {
		log.Printf("Failed to initialize FulfillmentService: %v", err)
		os.Exit(1)
	}

	progressService, err := service.NewProgressService(entitlementRepo, courseRepo)
	if err != nil {
		log.Printf("Failed to initialize ProgressService: %v", err)
		os.Exit(1)
	}

	certificateService, err := service.NewCertificateService(entitlementRepo, courseRepo)
	if err != nil {
		log.Printf("Failed to initialize CertificateService: %v", err)
		os.Exit(1)
	}

	// Инициализируем обработчики
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(progressService)
	// Внешний рендерер сертификатов не настроен: сертификат отдается как JSON-данные
	courseHandler := handler.NewCourseHandler(progressService, certificateService, courseRepo, userRepo, nil, "")
	webhookHandler := handler.NewWebhookHandler(fulfillmentService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api/v1")
	{
		// Пользователи и аутентификация
		users := api.Group("/users")
		{
			users.POST("/signup", authHandler.Signup)
			users.POST("/login", authHandler.Login)
			users.GET("/verify/:token", authHandler.VerifyAccount)
			users.POST("/forgot-password", authHandler.ForgotPassword)
			users.PATCH("/reset-password/:token", authHandler.ResetPassword)

			// Маршруты, требующие аутентификации
			authedUsers := users.Group("")
			authedUsers.Use(authMiddleware.RequireAuth())
			{
				authedUsers.GET("/me", userHandler.Me)
				authedUsers.GET("/my-courses", authMiddleware.Authorize(middleware.OpCoursesOverview), userHandler.MyCourses)
				authedUsers.PATCH("/update-my-password", authHandler.UpdateMyPassword)
				authedUsers.DELETE("/deactivate-me", authHandler.DeactivateMe)
				authedUsers.PATCH("/:id/reactivate", authMiddleware.Authorize(middleware.OpUserReactivate), authHandler.ReactivateUser)
			}
		}

		// Прогресс и сертификаты по курсам
		courses := api.Group("/courses")
		courses.Use(authMiddleware.RequireAuth())
		{
			courses.POST("/:id/watch-time", authMiddleware.Authorize(middleware.OpProgressUpdate), courseHandler.UpdateWatchTime)
			courses.POST("/:id/quiz-score", authMiddleware.Authorize(middleware.OpProgressUpdate), courseHandler.SubmitQuizScore)
			courses.GET("/:id/certificate", authMiddleware.Authorize(middleware.OpCertificate), courseHandler.GenerateCertificate)
			courses.GET("/:id/progress-export", authMiddleware.Authorize(middleware.OpProgressExport), courseHandler.ExportProgress)
		}

		// Вебхук платежного провайдера: аутентифицируется провайдером, не пользователем
		api.POST("/webhooks/checkout-completed", webhookHandler.CheckoutCompleted)
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown с таймаутом
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
