package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"grant-scribe/config"
	"grant-scribe/models"
	"grant-scribe/providers/crossref"
	"grant-scribe/providers/pubmed"
	"grant-scribe/services"
	"grant-scribe/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	sectionsSavedCounter        prometheus.Counter
	referencesResolvedCounter   prometheus.Counter
	referencesUnverifiedCounter prometheus.Counter
	citationsImportedCounter    prometheus.Counter
)

func init() {
	sectionsSavedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "section_versions_created_total",
			Help: "Total number of section versions created.",
		},
	)
	referencesResolvedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "references_resolved_total",
			Help: "Total number of references resolved against PubMed.",
		},
	)
	referencesUnverifiedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "references_unverified_total",
			Help: "Total number of references that could not be verified.",
		},
	)
	citationsImportedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citations_imported_total",
			Help: "Total number of citation records imported.",
		},
	)
	prometheus.MustRegister(sectionsSavedCounter, referencesResolvedCounter,
		referencesUnverifiedCounter, citationsImportedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// respondServiceError bildet Service-Fehler auf HTTP-Status ab.
func respondServiceError(c *gin.Context, logging *zap.Logger, err error) {
	switch {
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logging.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// TranslateError macht Unique-Verletzungen als gorm.ErrDuplicatedKey
	// sichtbar, darauf stützt sich der Retry beim Anlegen von Versionen.
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	err = db.AutoMigrate(
		&models.SectionVersion{},
		&models.SectionTemplate{},
		&models.Citation{},
		&models.ReviewTask{},
		&models.UsageRecord{},
		&models.ImportJob{},
	)
	if err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	seedDefaultTemplates(db, logging)

	// Setup Providers
	pubmedFetcher := pubmed.NewFetcher(cfg, logging)
	crossrefFetcher := crossref.NewFetcher(cfg, logging)

	// Setup Services
	var aiClient *openai.Client
	if cfg.OpenAIAPIKey != "" {
		aiClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		logging.Warn("No OpenAI API key configured, AI citation formatting degrades to NIH style")
	}

	sectionService := services.NewSectionService(db, logging)
	resolver := services.NewReferenceResolver(pubmedFetcher, logging, cfg.ResolveDelay(), cfg.ResolveTimeout())
	merger := services.NewReferenceMerger(sectionService, logging, cfg.BibliographySection)
	draftService := services.NewDraftService(db, logging, sectionService, resolver, merger, cfg.DailyResolveQuota)
	formatter := services.NewCitationFormatter(logging, aiClient, cfg.OpenAIModel)
	citationService := services.NewCitationService(db, logging, pubmedFetcher, crossrefFetcher, formatter)
	reverifyService := services.NewReverifyService(sectionService, resolver, logging, cfg.BibliographySection)

	var uploader services.Uploader
	if cfg.S3Configured() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		uploader = &s3Uploader{client: s3Client, cfg: cfg}
	} else {
		logging.Warn("S3 not configured, snapshot export endpoint will only render documents")
	}
	snapshotService := services.NewSnapshotService(sectionService, logging, uploader)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupSectionRoutes(router, sectionService, logging)
	setupDraftRoutes(router, draftService, logging)
	setupCitationRoutes(router, citationService, logging)
	setupExportRoutes(router, snapshotService, reverifyService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled citation re-verification...")
		if err := reverifyService.Run(context.Background()); err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed")
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// s3Uploader verbindet den SnapshotService mit dem S3-Client.
type s3Uploader struct {
	client *s3.Client
	cfg    *config.Config
}

func (u *s3Uploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	return storage.UploadFile(ctx, u.client, u.cfg.S3Bucket, key, data, u.cfg)
}

func setupSectionRoutes(router *gin.Engine, sections *services.SectionService, logging *zap.Logger) {
	rg := router.Group("/applications/:appId/sections")

	// Aktuelle Versionen aller Sektionen eines Antrags
	rg.GET("/", func(c *gin.Context) {
		versions, err := sections.ListCurrent(c.Param("appId"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	})

	// Aktuelle Version einer Sektion
	rg.GET("/:section", func(c *gin.Context) {
		version, err := sections.GetCurrent(c.Param("appId"), c.Param("section"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, version)
	})

	// Versionshistorie einer Sektion, neueste zuerst
	rg.GET("/:section/history", func(c *gin.Context) {
		versions, err := sections.GetHistory(c.Param("appId"), c.Param("section"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	})

	vg := router.Group("/versions")

	// Ältere Version wieder zur aktuellen machen
	vg.POST("/:id/promote", func(c *gin.Context) {
		version, err := sections.Promote(c.Param("id"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, version)
	})

	vg.PUT("/:id/status", func(c *gin.Context) {
		var req struct {
			Status      string `json:"status" binding:"required"`
			ReviewedBy  string `json:"reviewed_by"`
			ReviewNotes string `json:"review_notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		version, err := sections.UpdateStatus(c.Param("id"), req.Status, req.ReviewedBy, req.ReviewNotes)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, version)
	})

	vg.DELETE("/:id", func(c *gin.Context) {
		if err := sections.Delete(c.Param("id")); err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	tg := router.Group("/applications/:appId/tasks")

	tg.GET("/", func(c *gin.Context) {
		tasks, err := sections.ListOpenTasks(c.Param("appId"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	})
}

func setupDraftRoutes(router *gin.Engine, drafts *services.DraftService, logging *zap.Logger) {
	rg := router.Group("/applications/:appId/drafts")

	// Entwurf speichern; Referenzblock wird aufgelöst und eingepflegt.
	// Bereits aufgelöste Referenzen aus einer Vorschau können mitgegeben
	// werden, dann entfällt die erneute Auflösung.
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			SectionKey  string                       `json:"section_key" binding:"required"`
			Content     string                       `json:"content"`
			CreatedBy   string                       `json:"created_by"`
			PreResolved []services.ResolvedReference `json:"pre_resolved"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := drafts.SaveDraft(c.Request.Context(), services.SaveDraftInput{
			ApplicationID: c.Param("appId"),
			SectionKey:    req.SectionKey,
			Content:       req.Content,
			CreatedBy:     req.CreatedBy,
			PreResolved:   req.PreResolved,
		})
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}

		sectionsSavedCounter.Inc()
		referencesResolvedCounter.Add(float64(result.ReferencesVerified))
		referencesUnverifiedCounter.Add(float64(result.ReferencesTotal - result.ReferencesVerified))
		c.JSON(http.StatusCreated, result)
	})

	// Referenzen nur auflösen, nichts speichern
	rg.POST("/preview", func(c *gin.Context) {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		cleanContent, refs, err := drafts.ResolveForPreview(c.Request.Context(), c.Param("appId"), req.Content)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"clean_content": cleanContent, "refs": refs})
	})
}

func setupCitationRoutes(router *gin.Engine, citations *services.CitationService, logging *zap.Logger) {
	rg := router.Group("/applications/:appId/citations")

	rg.GET("/", func(c *gin.Context) {
		appID := c.Param("appId")
		if query := c.Query("q"); query != "" {
			results, err := citations.Search(appID, query)
			if err != nil {
				respondServiceError(c, logging, err)
				return
			}
			c.JSON(http.StatusOK, results)
			return
		}
		results, err := citations.List(appID)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	// Anlegen per DOI, PMID oder manueller Eingabe
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			DOI    string           `json:"doi"`
			PMID   string           `json:"pmid"`
			Manual *models.Citation `json:"manual"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		citation, err := citations.Create(c.Request.Context(), services.CreateCitationInput{
			ApplicationID: c.Param("appId"),
			DOI:           req.DOI,
			PMID:          req.PMID,
			Manual:        req.Manual,
		})
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		citationsImportedCounter.Inc()
		c.JSON(http.StatusCreated, citation)
	})

	rg.POST("/import", func(c *gin.Context) {
		var req struct {
			Entries []services.BatchImportEntry `json:"entries" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		job, err := citations.BatchImport(c.Request.Context(), c.Param("appId"), req.Entries)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		citationsImportedCounter.Add(float64(job.Succeeded))
		c.JSON(http.StatusOK, job)
	})

	rg.GET("/bibliography", func(c *gin.Context) {
		style := c.DefaultQuery("style", "nih")
		bibliography, err := citations.GenerateBibliography(c.Request.Context(), c.Param("appId"), style)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"style": style, "bibliography": bibliography})
	})

	cg := router.Group("/citations")

	cg.GET("/:id", func(c *gin.Context) {
		citation, err := citations.Get(c.Param("id"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, citation)
	})

	cg.PUT("/:id", func(c *gin.Context) {
		var update models.Citation
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		citation, err := citations.Update(c.Param("id"), &update)
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, citation)
	})

	cg.DELETE("/:id", func(c *gin.Context) {
		if err := citations.Delete(c.Param("id")); err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	cg.POST("/:id/track-usage", func(c *gin.Context) {
		if err := citations.TrackUsage(c.Param("id")); err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func setupExportRoutes(router *gin.Engine, snapshots *services.SnapshotService, reverify *services.ReverifyService, logging *zap.Logger) {
	rg := router.Group("/applications/:appId/export")

	// Markdown-Dokument direkt ausliefern
	rg.GET("/", func(c *gin.Context) {
		doc, err := snapshots.Render(c.Param("appId"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(doc))
	})

	// Snapshot nach S3 exportieren
	rg.POST("/snapshot", func(c *gin.Context) {
		link, err := snapshots.Export(c.Request.Context(), c.Param("appId"))
		if err != nil {
			respondServiceError(c, logging, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"link": link})
	})

	// Neu-Verifikation manuell anstoßen
	router.POST("/reverify", func(c *gin.Context) {
		go func() {
			if err := reverify.Run(context.Background()); err != nil {
				logging.Error("Manual re-verification failed", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
	})
}

// seedDefaultTemplates legt die NIH-R01-Standardsektionen an, falls die
// Tabelle leer ist.
func seedDefaultTemplates(db *gorm.DB, logging *zap.Logger) {
	var count int64
	db.Model(&models.SectionTemplate{}).Count(&count)
	if count > 0 {
		return
	}

	templates := []models.SectionTemplate{
		{SectionKey: "project_summary", DisplayName: "Project Summary/Abstract", SortOrder: 1, Required: true, WordLimit: 300},
		{SectionKey: "project_narrative", DisplayName: "Project Narrative", SortOrder: 2, Required: true},
		{SectionKey: "specific_aims", DisplayName: "Specific Aims", SortOrder: 3, Required: true},
		{SectionKey: "significance", DisplayName: "Research Strategy - Significance", SortOrder: 4, Required: true},
		{SectionKey: "innovation", DisplayName: "Research Strategy - Innovation", SortOrder: 5, Required: true},
		{SectionKey: "approach", DisplayName: "Research Strategy - Approach", SortOrder: 6, Required: true},
		{SectionKey: "budget_justification", DisplayName: "Budget Justification", SortOrder: 7},
		{SectionKey: "facilities_resources", DisplayName: "Facilities & Other Resources", SortOrder: 8},
		{SectionKey: "equipment", DisplayName: "Equipment", SortOrder: 9},
		{SectionKey: "biosketch", DisplayName: "Biographical Sketch", SortOrder: 10},
		{SectionKey: "data_management_plan", DisplayName: "Data Management & Sharing Plan", SortOrder: 11},
		{SectionKey: "authentication_resources", DisplayName: "Authentication of Key Resources", SortOrder: 12},
		{SectionKey: "references", DisplayName: "References", SortOrder: 13},
	}
	if err := db.Create(&templates).Error; err != nil {
		logging.Error("Seeding section templates failed", zap.Error(err))
		return
	}
	logging.Info("Seeded default section templates", zap.Int("count", len(templates)))
}
