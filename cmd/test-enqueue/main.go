package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/last-signal/internal/config"
	"github.com/jwebster45206/last-signal/internal/services/queue"
	"github.com/jwebster45206/last-signal/pkg/chat"
	queuePkg "github.com/jwebster45206/last-signal/pkg/queue"
)

func main() {
	sessionFlag := flag.String("session", "", "session id to play the turn on")
	textFlag := flag.String("text", "", "free text input")
	commandFlag := flag.String("command", "", "system command (e.g. help, save 2)")
	chooseFlag := flag.Int("choose", -1, "zero-based choice index")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	sessionID, err := uuid.Parse(*sessionFlag)
	if err != nil {
		log.Fatal("A valid -session id is required: ", err)
	}

	turn := chat.TurnRequest{Text: *textFlag, Command: *commandFlag}
	if *chooseFlag >= 0 {
		turn.ChooseIndex = chooseFlag
	}
	if err := turn.Validate(); err != nil {
		log.Fatal("Invalid turn: ", err)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}

	q := queue.NewTurnQueue(queue.NewClient(client, slog.New(slog.NewTextHandler(os.Stderr, nil))))
	req := queuePkg.NewRequest(sessionID, turn)
	if err := q.Enqueue(ctx, req); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ Enqueued turn request: %s\n", req.RequestID)

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth: ", err)
	}
	fmt.Printf("\n📊 Queue depth: %d requests\n", depth)
	fmt.Println("\n💡 Start the worker to play it, and watch /v1/sessions/" + sessionID.String() + "/events for the result.")
}
