package router

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/config"
	"github.com/scriptgrade/scriptgrade/database"
	"github.com/scriptgrade/scriptgrade/handlers"
	exam_handlers "github.com/scriptgrade/scriptgrade/handlers/exam"
	grading_handlers "github.com/scriptgrade/scriptgrade/handlers/grading"
	"github.com/scriptgrade/scriptgrade/services"
	"github.com/scriptgrade/scriptgrade/services/llm"
	"github.com/scriptgrade/scriptgrade/services/storage"
	"github.com/scriptgrade/scriptgrade/utils/auth"
	"github.com/scriptgrade/scriptgrade/utils/cache"
	"github.com/scriptgrade/scriptgrade/utils/middleware"
)

// SetupRoutes wires the full pipeline and mounts every route
func SetupRoutes(app *fiber.App, store database.Storage) {
	env, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load environment config:", err)
	}
	if env.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := env.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "scriptgrade-api"
	}
	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		Secret: env.JWT_SECRET,
		Issuer: jwtIssuer,
	})
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	redisCache, err := cache.NewRedisCache(env.REDIS_URL)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	spaces, err := storage.NewSpacesClientFromEnv(env)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:  env.LLM_API_KEY,
		BaseURL: env.LLM_BASE_URL,
		Model:   env.LLM_MODEL,
	})
	limiter := llm.NewRateLimiter(llm.DefaultRateLimiterConfig())

	grader := services.NewChunkGrader(llmClient, limiter, services.ChunkGraderConfig{})
	ocrClient := services.NewOCRClient()
	gradingCache := services.NewGradingCache(services.NewGormScoreStore(db), 0)
	gradingService := services.NewGradingService(grader, ocrClient, gradingCache)

	tracker := services.NewProgressTracker(redisCache)
	renderClient := services.NewPageRenderClient(3)
	batchService := services.NewBatchGradingService(db, gradingService, tracker, renderClient, spaces)

	healthHandler := handlers.NewHealthHandler(db, redisCache, llmClient)
	examHandler := exam_handlers.NewExamHandler(db)
	gradingHandler := grading_handlers.NewGradingHandler(db, batchService, tracker)

	app.Get("/health", healthHandler.Check)
	app.Get("/health/llm", healthHandler.CheckLLM)

	v1 := app.Group("/api/v1", authMiddleware.RequireAuth())

	v1.Post("/exams", examHandler.CreateExam)
	v1.Get("/exams", examHandler.ListExams)
	v1.Get("/exams/:id", examHandler.GetExam)

	v1.Post("/exams/:id/submissions", gradingHandler.CreateSubmission)
	v1.Post("/exams/:id/grade", gradingHandler.StartBatch)
	v1.Get("/submissions/:id", gradingHandler.GetSubmission)
	v1.Post("/submissions/:id/regrade", gradingHandler.Regrade)

	v1.Get("/grading/jobs/:job_id", gradingHandler.GetJob)
	v1.Delete("/grading/jobs/:job_id", gradingHandler.CancelJob)
}
