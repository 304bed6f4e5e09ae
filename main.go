package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebaseSDK "firebase.google.com/go/v4"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinPusherAPI/handlers"
	"coinPusherAPI/internal/config"
	"coinPusherAPI/internal/firebase"
	"coinPusherAPI/internal/identity"
	"coinPusherAPI/internal/metrics"
	"coinPusherAPI/internal/notification"
	"coinPusherAPI/internal/session"
	"coinPusherAPI/internal/store"
	firestoreStore "coinPusherAPI/internal/store/firestore"
	"coinPusherAPI/internal/store/memory"
	"coinPusherAPI/internal/store/postgres"
	"coinPusherAPI/middleware"
	"coinPusherAPI/services"

	_ "net/http/pprof"
)

func openStore(ctx context.Context, cfg *config.Config, app *firebaseSDK.App) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		log.Println("Successfully connected to Postgres")
		return s, nil

	case config.DriverFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %v", err)
		}
		log.Println("Successfully connected to Firestore")
		return firestoreStore.New(client), nil

	case config.DriverMemory:
		log.Println("Using in-memory store; scores are lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
}

func openIdentity(ctx context.Context, cfg *config.Config, app *firebaseSDK.App) (identity.Provider, error) {
	switch cfg.AuthProvider {
	case config.AuthClerk:
		log.Println("Clerk initialized successfully")
		return identity.NewClerkProvider(cfg.ClerkSecretKey), nil
	case config.AuthFirebase:
		return identity.NewFirebaseProvider(ctx, app)
	case config.AuthDev:
		log.Println("Using development HS256 tokens; do not run this in production")
		return identity.NewDevProvider(cfg.DevJWTSecret), nil
	}
	return nil, fmt.Errorf("unsupported auth provider: %s", cfg.AuthProvider)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	defer initCancel()

	var app *firebaseSDK.App
	if cfg.NeedsFirebase() {
		app, err = firebase.NewApp(initCtx, firebase.Credentials{
			ProjectID:   cfg.FirebaseProjectID,
			EncodedJSON: cfg.FirebaseCredentialsJSON,
			File:        cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			log.Fatal("Failed to initialize Firebase: ", err)
		}
	}

	scoreStore, err := openStore(initCtx, cfg, app)
	if err != nil {
		log.Fatal("Failed to open store: ", err)
	}
	defer scoreStore.Close()

	provider, err := openIdentity(initCtx, cfg, app)
	if err != nil {
		log.Fatal("Failed to initialize identity provider: ", err)
	}

	middleware.InitPrometheus()

	sessions := session.NewManager(cfg.SessionTTL)
	sessions.Subscribe(func(e session.Event) {
		log.Printf("Session %s: user %s", e.Type, e.Session.UserID)
		metrics.ActiveSessions.Set(float64(sessions.Count()))
	})
	go sessions.Cleanup(ctx, time.Minute)

	leaderboardService := services.NewLeaderboardService(scoreStore)

	liveHub := services.NewLiveHub(scoreStore, services.MaxLimit)
	go liveHub.Run(ctx)

	dispatcher := services.NewNotificationDispatcher(scoreStore, cfg.LiveTopLimit)
	defer dispatcher.Stop()
	if cfg.PushEnabled {
		fcmService, err := notification.NewFCMService(initCtx, app)
		if err != nil {
			log.Printf("Warning: Could not initialize FCM: %v", err)
		} else {
			dispatcher.SetPushProvider(fcmService)
			log.Println("FCM Push Provider initialized successfully")
		}
	}
	leaderboardService.SetObserver(dispatcher)

	// Initialize handlers
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, sessions)
	liveHandler := handlers.NewLiveHandler(liveHub, cfg.AllowedOrigins)
	userHandler := handlers.NewUserHandler(leaderboardService, provider, sessions)
	notificationHandler := handlers.NewNotificationHandler(dispatcher)
	webhookHandler := handlers.NewWebhookHandler(leaderboardService, cfg.ClerkWebhookSecret)
	healthHandler := handlers.NewHealthHandler(leaderboardService)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go rateLimiter.Cleanup(ctx)

	r := mux.NewRouter()

	// Long-lived websocket; kept out of the rate limiter.
	r.HandleFunc("/api/v1/leaderboard/live", liveHandler.StreamTopScores).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(rateLimiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", healthHandler.Health).Methods("GET")
	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/machines", handlers.GetMachines).Methods("GET")
	api.HandleFunc("/leaderboard", leaderboardHandler.GetTopScores).Methods("GET")
	api.HandleFunc("/leaderboard/users/{userID}/scores", leaderboardHandler.GetUserScores).Methods("GET")
	api.Handle("/leaderboard/view", middleware.OptionalAuthMiddleware(provider)(http.HandlerFunc(leaderboardHandler.GetView))).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(provider))

	protected.HandleFunc("/session", userHandler.SignIn).Methods("POST")
	protected.HandleFunc("/session", userHandler.SignOut).Methods("DELETE")
	protected.HandleFunc("/user/profile", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/scores", userHandler.GetMyScores).Methods("GET")

	protected.HandleFunc("/scores", leaderboardHandler.SubmitScore).Methods("POST")
	protected.HandleFunc("/leaderboard/refresh", leaderboardHandler.Refresh).Methods("POST")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins(cfg.AllowedOrigins),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length", "Retry-After"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s (store: %s, auth: %s)", port, cfg.StoreDriver, provider.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Ends live subscriptions so their websocket handlers return.
	stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
