package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"chatfeed/internal/app"
	"chatfeed/pkg/config"
	"chatfeed/pkg/events"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/shutdown"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "path to yaml config")
		replayPath = flag.String("replay", "", "JSONL event log to replay through the reconciler")
		openKey    = flag.String("open", "", "channel key to open on startup")
	)
	flag.Parse()
	_ = godotenv.Load(".env")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(cfg)
	if err != nil {
		shutdown.Abort("build_app", err, cfg.Archive.Path, 0)
	}

	ctx, stop := shutdown.SetupSignalHandler(context.Background())
	defer stop()

	if *openKey != "" {
		if err := a.OpenChannel(ctx, *openKey); err != nil {
			logger.Error("open_channel_failed", "key", *openKey, "error", err)
		}
	}
	if *replayPath != "" {
		if err := replay(a, *replayPath); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("app exited: %v", err)
	}
}

// replay feeds a JSONL event log (one wire frame per line) through Apply.
// Used as a dev harness in place of the real socket transport.
func replay(a *app.App, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line, applied := 0, 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		ev, err := events.DecodeFrame(raw)
		if err != nil {
			logger.Warn("replay_bad_frame", "line", line, "error", err)
			continue
		}
		a.Apply(ev)
		applied++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	logger.Info("replay_completed", "path", path, "lines", line, "applied", applied)
	return nil
}
