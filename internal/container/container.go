package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"healthboard/internal/config"
	"healthboard/internal/repository"
	"healthboard/internal/service"
	"healthboard/internal/ws"
	"healthboard/pkg/database"
	"healthboard/pkg/logger"
	"healthboard/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	RedisClient *redis.Client
	Repos       *repository.Repositories
	Hub         *ws.Hub

	CSVCache    *service.CSVCacheService
	Vaccination *service.VaccinationService
	Disease     *service.DiseaseService
	Wastewater  *service.WastewaterService
	News        *service.NewsService
	Dashboard   *service.DashboardService
	Sync        *service.SyncService
}

// New creates a new dependency injection container. The store is required;
// Redis is optional and its absence only disables the dashboard snapshot
// cache.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	repos := &repository.Repositories{
		SyncLog:        repository.NewSyncLogRepository(db),
		RateLimit:      repository.NewRateLimitRepository(db),
		RefreshRequest: repository.NewRefreshRequestRepository(db),
		CSVCache:       repository.NewCSVCacheRepository(db),
		Disease:        repository.NewDiseaseRepository(db),
		Wastewater:     repository.NewWastewaterRepository(db),
		Vaccination:    repository.NewVaccinationRepository(db),
		News:           repository.NewNewsRepository(db),
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	csvCache, err := service.NewCSVCacheService(repos.CSVCache, httpClient, cfg.CSVCachePath, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	vaccination := service.NewVaccinationService(repos.Vaccination, csvCache, httpClient, log)
	disease := service.NewDiseaseService(repos.Disease, httpClient, log)
	wastewater := service.NewWastewaterService(repos.Wastewater, httpClient, log)
	news := service.NewNewsService(repos.News, httpClient, log)

	dashboard := service.NewDashboardService(vaccination, disease, wastewater, news, csvCache, redisClient, cfg, log)

	hub := ws.NewHub(cfg.WSMaxConnections, log)

	adapters := []service.DataAdapter{vaccination, disease, wastewater, news}
	syncService := service.NewSyncService(cfg, adapters, repos, hub, dashboard, log)

	return &Container{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		RedisClient: redisClient,
		Repos:       repos,
		Hub:         hub,
		CSVCache:    csvCache,
		Vaccination: vaccination,
		Disease:     disease,
		Wastewater:  wastewater,
		News:        news,
		Dashboard:   dashboard,
		Sync:        syncService,
	}, nil
}
