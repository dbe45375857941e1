// Command checkpoint inspects and repairs the indexer checkpoint.
//
//	checkpoint show
//	checkpoint reset                 # next start begins at the chain head
//	checkpoint set-height -height N  # next start backfills from N
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/config"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/store/postgres"
	redispkg "github.com/emperorhan/token-transfer-indexer/internal/store/redis"
)

type checkpointAdmin interface {
	Get(ctx context.Context, name string) (*model.Checkpoint, error)
	Reset(ctx context.Context, name string, height int64) error
	Delete(ctx context.Context, name string) (bool, error)
}

type progressMirror interface {
	LastBlock(ctx context.Context, name string) (int64, bool, error)
	Delete(ctx context.Context, name string) error
}

var errUsage = errors.New("usage: checkpoint [-name NAME] show | reset | set-height -height N")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.New(postgres.Config{
		URL:                cfg.DB.URL,
		MaxOpenConns:       2,
		MaxIdleConns:       1,
		ConnMaxLifetime:    cfg.DB.ConnMaxLifetime,
		StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var mirror progressMirror
	if cfg.Redis.CheckpointMirrorEnabled {
		m, err := redispkg.Dial(ctx, cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("checkpoint mirror unavailable, continuing without it", "error", err)
		} else {
			defer m.Close()
			mirror = m
		}
	}

	if err := run(ctx, os.Args[1:], cfg.Indexer.Name, postgres.NewCheckpointRepo(db), mirror, os.Stdout); err != nil {
		logger.Error("checkpoint command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, defaultName string, repo checkpointAdmin, mirror progressMirror, out io.Writer) error {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", defaultName, "indexer checkpoint name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "show":
		return show(ctx, *name, repo, mirror, out)

	case "reset":
		if _, err := repo.Delete(ctx, *name); err != nil {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		if mirror != nil {
			if err := mirror.Delete(ctx, *name); err != nil {
				return fmt.Errorf("delete mirror keys: %w", err)
			}
		}
		_, err := fmt.Fprintf(out, "checkpoint %q removed; next start begins at the chain head\n", *name)
		return err

	case "set-height":
		sub := flag.NewFlagSet("set-height", flag.ContinueOnError)
		sub.SetOutput(io.Discard)
		height := sub.Int64("height", -1, "new resume height")
		if err := sub.Parse(rest); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *height < 0 {
			return fmt.Errorf("%w: -height must be a non-negative block number", errUsage)
		}
		if err := repo.Reset(ctx, *name, *height); err != nil {
			return fmt.Errorf("reset checkpoint: %w", err)
		}
		if mirror != nil {
			// The mirror only moves forward; drop it so the indexer republishes.
			if err := mirror.Delete(ctx, *name); err != nil {
				return fmt.Errorf("delete mirror keys: %w", err)
			}
		}
		_, err := fmt.Fprintf(out, "checkpoint %q set to %d\n", *name, *height)
		return err

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

type showOutput struct {
	*model.Checkpoint
	ResumeFrom   int64  `json:"resume_from"`
	MirrorHeight *int64 `json:"mirror_height,omitempty"`
}

func show(ctx context.Context, name string, repo checkpointAdmin, mirror progressMirror, out io.Writer) error {
	cp, err := repo.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if cp == nil {
		_, err := fmt.Fprintf(out, "no checkpoint named %q\n", name)
		return err
	}

	res := showOutput{Checkpoint: cp, ResumeFrom: cp.ResumeFrom()}
	if mirror != nil {
		h, ok, err := mirror.LastBlock(ctx, name)
		if err != nil {
			return fmt.Errorf("read mirror: %w", err)
		}
		if ok {
			res.MirrorHeight = &h
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
