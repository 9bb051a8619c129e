package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"pairlive/backend/internal/api/handler"
	"pairlive/backend/internal/complaint"
	"pairlive/backend/internal/config"
	"pairlive/backend/internal/media"
	"pairlive/backend/internal/models"
	"pairlive/backend/internal/reputation"
	"pairlive/backend/internal/session"
	"pairlive/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  adjust-score <user_id> <delta>
  behavior <user_id> <KIND> [session_id]
  review-complaint <complaint_id> <VALID|INVALID|DISMISSED>
  recover
  reap-sessions
  token <user_id> [ttl]`

var errUsage = errors.New(usage)

// services is what the commands operate on.
type services struct {
	reputation *reputation.Service
	complaints *complaint.Service
	sessions   *session.Service
	auth       *handler.Authenticator
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()

	s := storage.NewStorageService(db, rdb)
	rep := reputation.NewService(s, logger)
	svc := services{
		reputation: rep,
		complaints: complaint.NewService(s, rep, logger),
		sessions: session.NewService(s, rep, media.NewJWTIssuer(cfg.MediaSecret, cfg.MediaTokenTTL),
			logger, cfg.SessionMarkerTTL, cfg.SkipCooldown),
		auth: handler.NewAuthenticator(cfg.JWTSecret),
	}

	if err := run(context.Background(), svc, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(err)
			os.Exit(1)
		}
		logger.Fatal("command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func run(ctx context.Context, svc services, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "adjust-score":
		if len(args) != 3 {
			return errUsage
		}
		delta, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[2], err)
		}
		user, err := svc.reputation.AdjustScore(ctx, args[1], delta)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s not found", args[1])
		}
		fmt.Fprintf(out, "User %s: score %.1f, category %s\n", user.ID, user.TrustScore, user.TrustCategory)

	case "behavior":
		if len(args) < 3 {
			return errUsage
		}
		kind, ok := models.ParseBehaviorKind(args[2])
		if !ok {
			return fmt.Errorf("unknown behavior kind %q", args[2])
		}
		ev := models.BehaviorEvent{UserID: args[1], Kind: kind}
		if len(args) > 3 {
			ev.SessionID = args[3]
		}
		if err := svc.reputation.Record(ctx, ev); err != nil {
			return err
		}
		fmt.Fprintf(out, "Recorded %s for user %s.\n", kind, args[1])

	case "review-complaint":
		if len(args) != 3 {
			return errUsage
		}
		c, err := svc.complaints.Review(ctx, args[1], "admin", args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Complaint %s is now %s.\n", c.ComplaintID, c.Status)

	case "recover":
		n, err := svc.reputation.ProcessRecovery(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Recovered %d users.\n", n)

	case "reap-sessions":
		n, err := svc.sessions.ReapStale(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Closed %d stale sessions.\n", n)

	case "token":
		if len(args) < 2 {
			return errUsage
		}
		ttl := 24 * time.Hour
		if len(args) > 2 {
			d, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("invalid ttl %q: %w", args[2], err)
			}
			ttl = d
		}
		token, err := svc.auth.Issue(args[1], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)

	default:
		return errUsage
	}
	return nil
}
