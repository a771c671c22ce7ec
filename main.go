package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"quizroom/config"
	"quizroom/internal/anticheat"
	"quizroom/internal/client"
	"quizroom/internal/handlers"
	"quizroom/internal/middleware"
	"quizroom/internal/repository"
	"quizroom/internal/service"
	"quizroom/internal/transport"
	ws "quizroom/internal/websocket"
	"quizroom/pkg/cache"
	"quizroom/pkg/database"
	"quizroom/pkg/messaging"
	"quizroom/pkg/storage"
)

func main() {
	cfg := config.Load()
	log.Println("Configuration loaded")

	pgClient, err := database.NewPostgresClient(&cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	log.Println("Connected to PostgreSQL")
	defer pgClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgClient.InitSchema(ctx); err != nil {
		log.Printf("Warning: Failed to initialize PostgreSQL schema: %v", err)
	} else {
		log.Println("PostgreSQL schema initialized")
	}
	cancel()

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")
	defer redisClient.Close()

	rabbitClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	log.Println("Connected to RabbitMQ")
	defer rabbitClient.Close()

	if _, err := rabbitClient.DeclareQueue(cfg.AntiCheat.ReportQueue); err != nil {
		log.Fatalf("Failed to declare queue %s: %v", cfg.AntiCheat.ReportQueue, err)
	}

	s3Client, err := storage.NewS3Client(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to connect to object storage: %v", err)
	}
	log.Println("Connected to object storage")

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	if err := s3Client.EnsureBucket(ctx); err != nil {
		log.Printf("Warning: Failed to ensure bucket: %v", err)
	}
	cancel()

	bus := transport.NewTransport(redisClient)

	contentGen := client.NewContentGenClient(cfg.ContentGen.BaseURL, cfg.ContentGen.APIKey)
	policy := client.NewPolicyClient(cfg.Policy.BaseURL)
	extractor := client.NewPlainTextExtractor()
	identity := &service.JWTVerifier{Secret: cfg.JWT.Secret}

	roomRepo := repository.NewRoomRepository(pgClient.GetDB())
	sessionRepo := repository.NewSessionRepository(pgClient.GetDB())
	eventRepo := repository.NewEventRepository(pgClient.GetDB())

	roomService := service.NewRoomService(roomRepo, policy, bus)
	studyService := service.NewStudyService(roomRepo, redisClient, s3Client, extractor, contentGen, bus)

	reporter := anticheat.NewReporter(rabbitClient, cfg.AntiCheat.ReportQueue)
	focusThreshold := time.Duration(cfg.AntiCheat.FocusLossThresholdMs) * time.Millisecond

	hub := ws.NewHub(roomService, studyService, bus, reporter, focusThreshold)
	quizService := service.NewQuizService(roomRepo, sessionRepo, contentGen, policy, identity, redisClient, hub, bus)
	hub.BindQuiz(quizService)

	go hub.Run()
	log.Println("WebSocket hub started")

	consumer := anticheat.NewConsumer(eventRepo, bus)
	go consumeQueue(context.Background(), rabbitClient, cfg.AntiCheat.ReportQueue, consumer.Process)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "quizroom",
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if pgClient == nil || redisClient == nil || rabbitClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	roomHandler := handlers.NewRoomHandler(roomService)
	quizHandler := handlers.NewQuizHandler(quizService)
	studyHandler := handlers.NewStudyHandler(studyService)
	wsHandler := handlers.NewWebSocketHandler(hub, roomService, cfg.JWT.Secret)

	api := router.Group("/api")
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		api.POST("/rooms", roomHandler.CreateRoom)
		api.POST("/rooms/join", roomHandler.JoinByCode)
		api.GET("/rooms/:id", roomHandler.GetRoom)
		api.POST("/rooms/:id/join", roomHandler.JoinRoom)
		api.POST("/rooms/:id/leave", roomHandler.LeaveRoom)
		api.GET("/rooms/:id/members", roomHandler.GetMembers)
		api.POST("/rooms/:id/ready", roomHandler.SetReady)

		api.POST("/rooms/:id/quiz/start", quizHandler.StartQuiz)
		api.POST("/rooms/:id/quiz/end", quizHandler.EndQuiz)
		api.GET("/rooms/:id/quiz", quizHandler.GetActiveSession)
		api.GET("/sessions/:sessionId/questions", quizHandler.GetQuestions)

		api.POST("/rooms/:id/study/start", studyHandler.StartStudy)
		api.POST("/rooms/:id/study/edit", studyHandler.EditStudy)
		api.POST("/rooms/:id/study/end", studyHandler.EndStudy)
		api.GET("/rooms/:id/study", studyHandler.GetStudy)
		api.POST("/rooms/:id/materials", studyHandler.UploadMaterials)
	}

	router.GET("/ws", wsHandler.HandleWebSocket)

	httpAddr := ":" + cfg.Server.HTTPPort
	log.Printf("Quiz room server starting on port %s...", cfg.Server.HTTPPort)

	go func() {
		if err := router.Run(httpAddr); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Quiz room server stopped")
}

func consumeQueue(ctx context.Context, rabbitClient *messaging.RabbitMQClient, queueName string, handler func(context.Context, []byte) error) {
	msgs, err := rabbitClient.Consume(queueName)
	if err != nil {
		log.Printf("Failed to start consumer for queue %s: %v", queueName, err)
		return
	}

	log.Printf("Started consumer for queue: %s", queueName)

	for msg := range msgs {
		if err := handler(ctx, msg.Body); err != nil {
			log.Printf("Error handling message from %s: %v", queueName, err)
			msg.Nack(false, true)
		} else {
			msg.Ack(false)
		}
	}
}
