// Package main provides a local player that composes a guided session from
// a JSON file and plays it through ffplay.
//
// Usage:
//
//	player -session session.json [-target 600] [-ffplay /usr/bin/ffplay]
//
// While playing, stdin accepts: p (pause), r (resume), m (mute),
// s <seconds> (seek), t <seconds> (resize), q (quit).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/maauso/guided-audio/internal/bootstrap"
	"github.com/maauso/guided-audio/internal/compose"
	"github.com/maauso/guided-audio/internal/config"
	"github.com/maauso/guided-audio/internal/playback"
	"github.com/maauso/guided-audio/internal/session"
)

// sessionFile is the on-disk session description.
type sessionFile struct {
	Prompts        []compose.Prompt `json:"prompts"`
	TargetDuration float64          `json:"target_duration"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	sessionPath := flag.String("session", "", "path to the session JSON file")
	target := flag.Float64("target", 0, "target duration in seconds, overrides the file")
	ffplayPath := flag.String("ffplay", "", "path to the ffplay binary")
	flag.Parse()
	if *sessionPath == "" {
		flag.Usage()
		return errors.New("-session is required")
	}

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	file, err := readSession(*sessionPath)
	if err != nil {
		return err
	}
	opts := bootstrap.ComposeOptions(cfg)
	opts.TargetDuration = file.TargetDuration
	if *target > 0 {
		opts.TargetDuration = *target
	}

	device := playback.NewFFplayDevice(*ffplayPath, cfg.BytesPerSecond, logger)
	deps, err := bootstrap.NewDependencies(cfg, logger, bootstrap.WithDevice(device))
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := deps.Manager.Create(ctx, file.Prompts, opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = deps.Manager.Close(context.Background()) }()

	feed := s.Feed()
	l := feed.Subscribe()
	defer feed.Unsubscribe(l)

	if _, err := deps.Manager.Begin(ctx, s.ID); err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	fmt.Printf("playing %d prompts (%s)\n", len(file.Prompts), formatSeconds(s.Snapshot().Total))

	commands := make(chan string)
	go readCommands(commands)

	prompts := s.Prompts()
	shown := -1
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nstopped")
			return nil
		case <-l.Done():
			return nil
		case line := <-commands:
			if quit := handleCommand(ctx, s, line); quit {
				return nil
			}
		case p := <-l.C:
			if p.TextVisible && p.PromptIndex != shown && p.PromptIndex < len(prompts) {
				shown = p.PromptIndex
				fmt.Printf("[%s / %s] %s\n", formatSeconds(p.Elapsed), formatSeconds(p.Total), prompts[shown].Text)
			}
			if p.Degraded && p.Error != "" {
				fmt.Printf("audio unavailable, continuing text only: %s\n", p.Error)
			}
			if p.State == session.StateCompleted {
				fmt.Println("session complete")
				return nil
			}
		}
	}
}

func readSession(path string) (*sessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &f, nil
}

func readCommands(out chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

// handleCommand applies one stdin command and reports whether to quit.
func handleCommand(ctx context.Context, s *session.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	arg := func() (float64, bool) {
		if len(fields) < 2 {
			fmt.Println("missing seconds")
			return 0, false
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Printf("invalid seconds %q\n", fields[1])
			return 0, false
		}
		return v, true
	}

	var err error
	switch fields[0] {
	case "p":
		err = s.Pause()
	case "r":
		err = s.Resume(ctx)
	case "m":
		var muted bool
		muted, err = s.ToggleMute()
		if err == nil {
			fmt.Printf("muted: %t\n", muted)
		}
	case "s":
		if v, ok := arg(); ok {
			err = s.Seek(ctx, v)
		}
	case "t":
		if v, ok := arg(); ok {
			err = s.Resize(ctx, v)
		}
	case "q":
		return true
	default:
		fmt.Println("commands: p r m s <sec> t <sec> q")
	}
	if err != nil {
		fmt.Printf("%s: %v\n", fields[0], err)
	}
	return false
}

func formatSeconds(sec float64) string {
	total := int(sec + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
