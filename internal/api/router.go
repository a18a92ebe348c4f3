package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/storagelabels/backend/internal/access"
	"github.com/storagelabels/backend/internal/api/handlers"
	"github.com/storagelabels/backend/internal/api/middleware"
	"github.com/storagelabels/backend/internal/auth"
	"github.com/storagelabels/backend/internal/cache"
	"github.com/storagelabels/backend/internal/config"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/imagestore"
	"github.com/storagelabels/backend/internal/queue"
	"github.com/storagelabels/backend/internal/repository"
	"github.com/storagelabels/backend/internal/service"
)

type Router struct {
	mux      *chi.Mux
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      *config.Config
	jwt      *auth.JWTManager
	limiters []*middleware.RateLimiter
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMin)*time.Minute),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Repositories
	userRepo := repository.NewUserRepository(rt.db)
	locationRepo := repository.NewLocationRepository(rt.db)
	boxRepo := repository.NewBoxRepository(rt.db)
	itemRepo := repository.NewItemRepository(rt.db)
	imageRepo := repository.NewImageRepository(rt.db)
	keyRepo := repository.NewKeyRepository(rt.db)
	commonRepo := repository.NewCommonLocationRepository(rt.db)
	searchRepo := repository.NewSearchRepository(rt.db)

	// Services
	logger := slog.Default()
	evaluator := access.NewEvaluator(locationRepo)
	blobs := imagestore.New(rt.cfg.Images.RootDir)
	cipher := imagecrypt.New(rt.cfg.Images.MasterKey)
	queueClient := queue.NewClient(rt.cfg.Redis)

	var prefsCache service.PreferencesCache
	if rt.redis != nil {
		prefsCache = cache.New(rt.redis)
	}

	userSvc := service.NewUserService(userRepo, prefsCache, logger)
	locationSvc := service.NewLocationService(locationRepo, evaluator)
	boxSvc := service.NewBoxService(boxRepo, evaluator)
	itemSvc := service.NewItemService(itemRepo, boxRepo, evaluator)
	imageSvc := service.NewImageService(blobs, imageRepo, boxRepo, itemRepo, keyRepo, cipher, logger)
	keySvc := service.NewKeyService(keyRepo, imageRepo, blobs, cipher, queueClient,
		rt.cfg.Images.RotationBatchSize, logger)
	commonSvc := service.NewCommonLocationService(commonRepo)
	searchSvc := service.NewSearchService(searchRepo)

	// Handlers
	authH := handlers.NewAuthHandler(userSvc, rt.jwt)
	userH := handlers.NewUserHandler(userSvc)
	locationH := handlers.NewLocationHandler(locationSvc)
	boxH := handlers.NewBoxHandler(boxSvc, itemSvc)
	itemH := handlers.NewItemHandler(itemSvc)
	commonH := handlers.NewCommonLocationHandler(commonSvc)
	imageH := handlers.NewImageHandler(imageSvc, userSvc)
	searchH := handlers.NewSearchHandler(searchSvc)
	keyH := handlers.NewKeyHandler(keySvc)

	// Public auth routes get their own tight budget keyed by address.
	r.Group(func(r chi.Router) {
		authLimiter := middleware.NewRateLimiter(10, time.Minute)
		rt.limiters = append(rt.limiters, authLimiter)
		r.Use(authLimiter.Limit)
		r.Post("/api/auth/register", authH.Register)
		r.Post("/api/auth/login", authH.Login)
	})

	limiter := middleware.NewRateLimiter(rt.cfg.Rate.RequestsPerWindow,
		time.Duration(rt.cfg.Rate.WindowSeconds)*time.Second)
	rt.limiters = append(rt.limiters, limiter)

	routes := func(r chi.Router, search http.HandlerFunc) {
		r.Use(rt.jwt.Authenticate)
		r.Use(limiter.Limit)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", userH.Me)
			r.Put("/me", userH.UpdateMe)
			r.Get("/me/preferences", userH.GetPreferences)
			r.Put("/me/preferences", userH.UpdatePreferences)
		})

		r.Route("/locations", func(r chi.Router) {
			r.Post("/", locationH.Create)
			r.Get("/", locationH.List)
			r.Get("/{id}", locationH.Get)
			r.Put("/{id}", locationH.Update)
			r.Delete("/{id}", locationH.Delete)
			r.Get("/{id}/grants", locationH.ListGrants)
			r.Put("/{id}/grants", locationH.SetGrant)
			r.Delete("/{id}/grants/{userID}", locationH.RemoveGrant)
		})

		r.Route("/boxes", func(r chi.Router) {
			r.Post("/", boxH.Create)
			r.Get("/", boxH.ListByLocation)
			r.Get("/{id}", boxH.Get)
			r.Put("/{id}", boxH.Update)
			r.Delete("/{id}", boxH.Delete)
			r.Get("/{id}/items", boxH.ListItems)
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/", itemH.Create)
			r.Get("/{id}", itemH.Get)
			r.Put("/{id}", itemH.Update)
			r.Delete("/{id}", itemH.Delete)
		})

		r.Route("/common-locations", func(r chi.Router) {
			r.Post("/", commonH.Create)
			r.Get("/", commonH.List)
			r.Delete("/{id}", commonH.Delete)
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/", imageH.Upload)
			r.Get("/{hashedUserID}/{id}", imageH.GetFile)
			r.Delete("/{id}", imageH.Delete)
		})

		r.Get("/search", search)
		r.Get("/search/qr/{code}", searchH.QrLookup)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/keys", keyH.Create)
			r.Post("/keys/{kid}/activate", keyH.Activate)
			r.Post("/keys/rotate", keyH.Rotate)
			r.Get("/keys/rotations/{id}", keyH.RotationStatus)
			r.Post("/keys/rotations/{id}/retry", keyH.RetryRotation)
		})
	}

	// v1 still serves old clients; its search variant carries the
	// deprecation headers pointing at v2.
	r.Route("/api/v1", func(r chi.Router) {
		routes(r, searchH.SearchLegacy)
	})
	r.Route("/api/v2", func(r chi.Router) {
		routes(r, searchH.Search)
	})

	return r
}

// Close stops the background goroutines Setup started.
func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}
