// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"bingo-service/internal/auth"
	"bingo-service/internal/cache"
	"bingo-service/internal/database"
	"bingo-service/internal/handlers"
	"bingo-service/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	pool, err := database.Connect(context.Background())
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer pool.Close()

	store := database.NewStore(pool)
	gw := handlers.NewGateway(store, logger)

	// Match event publishing is optional: without redis the coordinator runs
	// fine, it just keeps no event log.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, match event log disabled: %v", err)
	} else {
		gw.PublishEvent = func(ctx context.Context, rec cache.MatchEventRecord) {
			if err := cache.PublishMatchEvent(ctx, rec); err != nil {
				logger.Warnf("publish match event: %v", err)
			}
		}
	}

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler(gw))
	mux.HandleFunc("/user/login", handlers.LoginHandler(gw))

	// profile endpoints
	mux.Handle("/profile/loadouts", logged(handlers.LoadoutsHandler(gw)))
	mux.Handle("/profile/history", logged(handlers.HistoryHandler(gw)))

	// room endpoints
	mux.Handle("/rooms/create", logged(handlers.CreateRoomHandler(gw)))
	mux.Handle("/rooms/join", logged(handlers.JoinRoomHandler(gw)))

	// room websocket
	mux.Handle("/rooms/ws/", logged(http.HandlerFunc(
		handlers.RoomWSHandler(logger, gw),
	)))

	// room lookup (must come after the more specific /rooms/ routes)
	mux.Handle("/rooms/", logged(handlers.GetRoomHandler(gw)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
