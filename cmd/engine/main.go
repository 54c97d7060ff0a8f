package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ucaes/academic-engine/api/swagger"
	"github.com/ucaes/academic-engine/internal/handler"
	"github.com/ucaes/academic-engine/internal/middleware"
	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/repository"
	"github.com/ucaes/academic-engine/internal/service"
	"github.com/ucaes/academic-engine/pkg/cache"
	"github.com/ucaes/academic-engine/pkg/config"
	"github.com/ucaes/academic-engine/pkg/database"
	"github.com/ucaes/academic-engine/pkg/logger"
	corsmiddleware "github.com/ucaes/academic-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/ucaes/academic-engine/pkg/middleware/requestid"
	"github.com/ucaes/academic-engine/pkg/storage"
)

// @title UCAES Academic Engine
// @version 1.0.0
// @description Academic period and student progression engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// The pointer cache is an optimization; the engine serves from the
	// database when redis is down.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, period pointer cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	yearRepo := repository.NewYearRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()
	sequenceSvc := service.NewSequenceService(sequenceRepo, registrationRepo, cfg.Sequence.Width, logr)
	guardSvc := service.NewGuardService(transitionRepo, yearRepo, semesterRepo, logr)
	periodSvc := service.NewPeriodService(yearRepo, semesterRepo, periodRepo, redisClient, cfg.Transition.PointerCacheTTL, logr)
	progressionSvc := service.NewProgressionService(progressRepo, registrationRepo, transitionRepo, cfg.Progression, logr)
	transitionSvc := service.NewTransitionService(
		periodRepo,
		yearRepo,
		semesterRepo,
		transitionRepo,
		guardSvc,
		periodSvc,
		progressionSvc,
		userRepo,
		logr,
	)
	notifierSvc := service.NewNotificationService(logr)
	migrationSvc := service.NewMigrationService(
		applicationRepo,
		registrationRepo,
		sequenceSvc,
		periodSvc,
		userRepo,
		progressRepo,
		notifierSvc,
		userRepo,
		*cfg,
		logr,
	)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(reportRepo, fileStore, signer, cfg.Reports, logr)
		reportSvc.Start(context.Background())
		defer reportSvc.Stop()
	}

	verifier := middleware.NewTokenVerifier(cfg.JWT.Secret)

	periodHandler := handler.NewPeriodHandler(periodSvc)
	transitionHandler := handler.NewTransitionHandler(transitionSvc, metricsSvc, reportSvc)
	migrationHandler := handler.NewMigrationHandler(migrationSvc, metricsSvc, reportSvc)
	progressionHandler := handler.NewProgressionHandler(progressionSvc, metricsSvc, reportSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "metrics": metricsSvc.Snapshot()})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.GET("/periods/current", periodHandler.Current)

	staff := api.Group("")
	staff.Use(middleware.JWT(verifier))
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar))

	staff.GET("/academic-years", periodHandler.ListYears)
	staff.POST("/academic-years", periodHandler.CreateYear)
	staff.GET("/academic-years/:id", periodHandler.GetYear)
	staff.PUT("/academic-years/:id", periodHandler.UpdateYear)

	staff.GET("/semesters", periodHandler.ListSemesters)
	staff.POST("/semesters", periodHandler.CreateSemester)
	staff.GET("/semesters/:id", periodHandler.GetSemester)
	staff.PUT("/semesters/:id", periodHandler.UpdateSemester)

	staff.POST("/transitions",
		middleware.Audit(userRepo, "trigger", "transition"),
		transitionHandler.Trigger,
	)

	staff.POST("/migrations/sweep",
		middleware.Audit(userRepo, "sweep", "migration"),
		migrationHandler.Sweep,
	)
	staff.POST("/migrations/:applicationId",
		middleware.Audit(userRepo, "migrate", "application"),
		migrationHandler.Migrate,
	)

	staff.GET("/progression/:studentId/eligibility", progressionHandler.Eligibility)
	staff.POST("/progression/completions", progressionHandler.RecordCompletion)
	staff.POST("/progression/run",
		middleware.Audit(userRepo, "run", "progression-batch"),
		progressionHandler.RunBatch,
	)

	// The admissions system authenticates with the same tokens as staff.
	hooks := api.Group("/hooks")
	hooks.Use(middleware.JWT(verifier))
	hooks.POST("/application-updated", migrationHandler.ApplicationUpdated)

	if reportSvc != nil {
		staff.GET("/reports/:id", reportHandler.Get)
		// Downloads carry their own signed token instead of a JWT so links
		// can be handed to the requester.
		api.GET("/reports/download", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
