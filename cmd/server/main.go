// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"daily-grocer-go/internal/config"
	"daily-grocer-go/internal/handler"
	"daily-grocer-go/internal/middleware"
	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/pipeline"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/internal/service"
	"daily-grocer-go/pkg/database"
	"daily-grocer-go/pkg/es"
	"daily-grocer-go/pkg/kafka"
	"daily-grocer-go/pkg/llm"
	"daily-grocer-go/pkg/log"
	"daily-grocer-go/pkg/storage"
	"daily-grocer-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 迁移数据表
	err := database.DB.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Product{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.AiChatMessage{},
		&model.AiRecommendation{},
		&model.AiDailyAnalytics{},
	)
	if err != nil {
		log.Fatalf("数据表迁移失败: %v", err)
	}

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	categoryRepo := repository.NewCategoryRepository(database.DB)
	productRepo := repository.NewProductRepository(database.DB)
	cartRepo := repository.NewCartRepository(database.DB)
	orderRepo := repository.NewOrderRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.Gemini)
	userService := service.NewUserService(userRepo, jwtManager)
	categoryService := service.NewCategoryService(categoryRepo)
	productService := service.NewProductService(productRepo)
	cartService := service.NewCartService(cartRepo, productRepo)
	orderService := service.NewOrderService(orderRepo, cartRepo)
	chatService := service.NewChatService(chatRepo, sessionRepo, orderRepo, cartRepo, productRepo, llmClient)
	adminService := service.NewAdminService(userRepo, orderRepo, productRepo, chatRepo, llmClient)

	// 7. 启动后台 Kafka 消费者，聚合聊天统计
	aggregator := pipeline.NewAnalyticsAggregator(chatRepo)
	go kafka.StartConsumer(cfg.Kafka, aggregator)

	// 8. 两个独立的滑动窗口限流器：顾客聊天按 IP，管理端测试按管理员 ID
	chatLimiter := middleware.NewRateLimiter(
		time.Duration(cfg.RateLimit.Chat.WindowMinutes)*time.Minute, cfg.RateLimit.Chat.MaxRequests)
	adminChatLimiter := middleware.NewRateLimiter(
		time.Duration(cfg.RateLimit.AdminChat.WindowMinutes)*time.Minute, cfg.RateLimit.AdminChat.MaxRequests)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	authHandler := handler.NewAuthHandler(userService)
	categoryHandler := handler.NewCategoryHandler(categoryService)
	productHandler := handler.NewProductHandler(productService)
	cartHandler := handler.NewCartHandler(cartService)
	orderHandler := handler.NewOrderHandler(orderService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)
	adminHandler := handler.NewAdminHandler(adminService, productService, categoryService, orderService)

	authed := middleware.AuthMiddleware(jwtManager, userService)

	// 10. 注册路由
	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/profile", authed, authHandler.Profile)
			auth.PUT("/profile", authed, authHandler.UpdateProfile)
		}

		products := api.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/search", productHandler.Search)
			products.GET("/:id", productHandler.Get)
		}

		categories := api.Group("/categories")
		{
			categories.GET("", categoryHandler.List)
			categories.GET("/:id", categoryHandler.Get)
		}

		cart := api.Group("/cart")
		cart.Use(authed)
		{
			cart.GET("", cartHandler.Get)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items/:id", cartHandler.UpdateItem)
			cart.DELETE("/items/:id", cartHandler.RemoveItem)
			cart.DELETE("", cartHandler.Clear)
		}

		orders := api.Group("/orders")
		orders.Use(authed)
		{
			orders.POST("", orderHandler.Checkout)
			orders.GET("", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
			orders.POST("/:id/cancel", orderHandler.Cancel)
		}

		ai := api.Group("/ai")
		{
			ai.GET("/health", chatHandler.Health)

			aiAuthed := ai.Group("")
			aiAuthed.Use(authed)
			{
				aiAuthed.POST("/chat", chatLimiter.Middleware(middleware.ByClientIP,
					"Too many AI chat requests, please try again later."), chatHandler.Chat)
				aiAuthed.GET("/history", chatHandler.History)
				aiAuthed.GET("/sessions", chatHandler.Sessions)
				aiAuthed.DELETE("/history", chatHandler.ClearHistory)
				aiAuthed.GET("/recommendations", chatHandler.Recommendations)
				aiAuthed.GET("/websocket-token", chatHandler.GetWebsocketStopToken)
			}
		}

		admin := api.Group("/admin")
		admin.Use(authed, middleware.AdminAuthMiddleware())
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/users", adminHandler.ListUsers)
			admin.PUT("/users/:id", adminHandler.UpdateUser)

			admin.GET("/products", adminHandler.ListProducts)
			admin.POST("/products", adminHandler.CreateProduct)
			admin.PUT("/products/:id", adminHandler.UpdateProduct)
			admin.DELETE("/products/:id", adminHandler.DeleteProduct)
			admin.POST("/products/image", adminHandler.UploadProductImage)

			admin.POST("/categories", adminHandler.CreateCategory)
			admin.PUT("/categories/:id", adminHandler.UpdateCategory)

			admin.GET("/orders", adminHandler.ListOrders)
			admin.PUT("/orders/:id", adminHandler.UpdateOrder)

			admin.GET("/reports", adminHandler.Reports)

			admin.POST("/ai/chat", adminChatLimiter.Middleware(middleware.ByUserID,
				"Too many admin AI requests, please try again later."), adminHandler.AiTestChat)
			admin.GET("/ai/analytics", adminHandler.AiAnalytics)
			admin.POST("/ai/clear-history", adminHandler.AiClearHistory)
		}
	}

	// WebSocket 流式聊天，token 走路径参数
	r.GET("/ai/chat/:token", chatHandler.HandleStream)

	// 11. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
