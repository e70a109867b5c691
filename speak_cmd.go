package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/grace-ai/grace-tts/pkg/tts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var errNothingToSpeak = errors.New("nothing to speak: pass text as arguments or pipe it on stdin")

var speakCmd = &cobra.Command{
	Use:   "speak [TEXT...]",
	Short: "Speak text, or every line read from stdin",
	Long: paragraph(fmt.Sprintf("\n%s the arguments as one utterance. With no arguments, each line read from stdin is spoken in turn "+
		"and changes to %s in the config file apply immediately.", keyword("Speak"), keyword("mute"))),
	Example: paragraph("grace-tts speak \"build finished\"\ntail -f build.log | grace-tts speak"),
	RunE:    runSpeak,
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lm := tts.NewLifecycleManager(log.Default())
	lm.OnSignal = func(sig os.Signal) {
		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		os.Exit(code)
	}

	opts := []tts.Option{tts.WithLogger(log.Default())}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, tts.WithMetrics(tts.NewMetrics(reg)))
		lm.Register(serveMetrics(metricsAddr, reg))
	}

	speaker, err := tts.NewSpeaker(cfg, opts...)
	if err != nil {
		_ = lm.Shutdown()
		return fmt.Errorf("unable to start speaker: %w", err)
	}
	lm.Register(speaker)
	lm.Start()
	defer func() { _ = lm.Shutdown() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		select {
		case <-lm.Stopping():
			cancel()
		case <-ctx.Done():
		}
	}()

	if len(args) > 0 {
		if !speaker.Synthesize(ctx, strings.Join(args, " ")) {
			return fmt.Errorf("unable to speak: %w", speaker.LastError())
		}
		return nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return errNothingToSpeak
	}

	watchMute(speaker)
	return speakLines(ctx, speaker, os.Stdin)
}

// speakLines speaks each line of r. A failed line is logged and skipped.
func speakLines(ctx context.Context, speaker *tts.Speaker, r *os.File) error {
	scanner := bufio.NewScanner(r)
	failed := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if !speaker.Synthesize(ctx, scanner.Text()) {
			failed++
			log.Warn("Could not speak line", "error", speaker.LastError())
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("unable to read from stdin: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d line(s) could not be spoken", failed)
	}
	return nil
}

// watchMute applies mute changes from the config file while speaking.
func watchMute(speaker *tts.Speaker) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Debug("Config file changed", "path", e.Name)
		speaker.SetMute(viper.GetBool("mute"))
	})
	viper.WatchConfig()
}

// metricsServer exposes a Prometheus registry over HTTP for the lifetime of
// a speak session.
type metricsServer struct {
	srv *http.Server
}

func serveMetrics(addr string, reg *prometheus.Registry) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	m := &metricsServer{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("Serving metrics", "addr", addr)
	return m
}

func (m *metricsServer) Name() string {
	return "metrics"
}

func (m *metricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx) //nolint:wrapcheck
}

func (m *metricsServer) ForceStop() error {
	return m.srv.Close() //nolint:wrapcheck
}
