package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"taskhive/internal/adapter/api"
	"taskhive/internal/adapter/api/handler"
	apimiddleware "taskhive/internal/adapter/api/middleware"
	"taskhive/internal/adapter/api/router"
	"taskhive/internal/adapter/repository"
	"taskhive/internal/chat"
	"taskhive/internal/infrastructure/firebase"
	"taskhive/internal/infrastructure/websocket"
	"taskhive/pkg/config"
	"taskhive/pkg/crypto"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Service account from environment variable (for production), file path
	// as the local-development fallback.
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}

		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}

		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase app: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firestore: %v", err)
	}
	defer firestoreClient.Close()

	var cipher crypto.Cipher = crypto.NoopCipher{}
	if cfg.MessageEncryptionKey != "" {
		cipher, err = crypto.NewCipher(cfg.MessageEncryptionKey)
		if err != nil {
			log.Fatalf("Failed to initialize message cipher: %v", err)
		}
	} else {
		log.Printf("MESSAGE_ENCRYPTION_KEY not set, storing message bodies in plain text")
	}

	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient, cipher)
	authorizer := repository.NewFirestoreAuthorizer(firestoreClient)
	notifier := repository.NewFirestoreActivityNotifier(firestoreClient)

	cache := chat.NewMessageCache(cfg.CacheTTL, cfg.CacheSweepInterval)
	cache.Start(ctx)

	listenerCfg := chat.ListenerConfig{
		BaseBackoff: cfg.ListenerBaseBackoff,
		MaxBackoff:  cfg.ListenerMaxBackoff,
		MaxRetries:  cfg.ListenerMaxRetries,
	}
	manager := chat.NewManager(messageRepo, cache, cfg.PageSize, listenerCfg, authorizer, notifier)

	hub := websocket.NewHub()
	hub.Start(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	chatHandler := handler.NewChatHandler(manager, hub)
	wsHandler := handler.NewWebSocketHandler(hub, manager, authMiddleware)
	healthHandler := handler.NewHealthHandler(cache)
	devTokenHandler := handler.NewDevTokenHandler(firebase.NewAuthClient(authClient))

	router.Setup(e, chatHandler, wsHandler, healthHandler, authMiddleware)
	router.SetupDevRouter(e, cfg.Environment, devTokenHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
