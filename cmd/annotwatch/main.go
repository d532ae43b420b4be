package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/annotation-sync/internal/uibridge"
)

type sample struct {
	kind uibridge.MessageKind
	dur  time.Duration
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090", "ui bridge base address")
	tracks := flag.String("tracks", "Annotations-chr1", "comma separated tracks to follow")
	clients := flag.Int("clients", 1, "websocket clients per track")
	duration := flag.Duration("duration", 0, "stop after this long; zero runs until interrupted")
	verbose := flag.Bool("v", false, "log every message")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := log.With().Str("bridge", *addr).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	base, err := url.Parse(*addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid bridge address")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	samples := make(chan sample, 1024)
	var wg sync.WaitGroup

	for _, track := range strings.Split(*tracks, ",") {
		track = strings.TrimSpace(track)
		if track == "" {
			continue
		}
		target := *base
		target.Path = strings.TrimSuffix(target.Path, "/") + "/tracks/" + url.PathEscape(track) + "/events"

		for i := 0; i < *clients; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				clientLogger := logger.With().Str("track", track).Int("client", id).Logger()
				conn, _, err := dialer.DialContext(ctx, target.String(), nil)
				if err != nil {
					clientLogger.Error().Err(err).Msg("dial failed")
					return
				}
				defer conn.Close()
				go func() {
					<-ctx.Done()
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
					_ = conn.Close()
				}()
				readerLoop(ctx, conn, samples, *verbose, clientLogger)
			}(i)
		}
	}

	go func() {
		wg.Wait()
		close(samples)
	}()

	report(samples, logger)
}

func readerLoop(ctx context.Context, conn *websocket.Conn, samples chan<- sample, verbose bool, logger zerolog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		var msg uibridge.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Err(err).Msg("failed to decode message")
			continue
		}
		if verbose {
			logger.Info().Str("kind", string(msg.Kind)).Str("message", msg.Message).Int("features", len(msg.Features)).Msg("bridge message")
		}
		if msg.Kind == uibridge.KindFatalError {
			logger.Error().Str("message", msg.Message).Msg("track failed")
		}

		s := sample{kind: msg.Kind}
		if msg.SentAt > 0 {
			s.dur = time.Since(time.Unix(0, msg.SentAt))
		}
		select {
		case samples <- s:
		case <-ctx.Done():
			return
		}
	}
}

func report(samples <-chan sample, logger zerolog.Logger) {
	counts := make(map[uibridge.MessageKind]int)
	var count int
	var total, max time.Duration

	for s := range samples {
		counts[s.kind]++
		if s.dur <= 0 {
			continue
		}
		count++
		total += s.dur
		if s.dur > max {
			max = s.dur
		}
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(os.Stdout, "%-14s %d\n", kind, counts[uibridge.MessageKind(kind)])
	}

	if count == 0 {
		fmt.Fprintln(os.Stdout, "no latency samples collected")
		return
	}
	avg := time.Duration(int64(math.Round(float64(total) / float64(count))))
	fmt.Fprintf(os.Stdout, "Samples: %d\nAvg latency: %s\nMax latency: %s\n", count, avg, max)
	if counts[uibridge.KindFatalError] > 0 {
		logger.Warn().Int("fatal", counts[uibridge.KindFatalError]).Msg("tracks failed while watching")
	}
}
