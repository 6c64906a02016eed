// vlactl runs a VLA control session: it connects to an inference endpoint
// (or the built-in simulator), streams actions to a robot daemon (or a
// dry-run recorder), and serves a live dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fleetmind/go-vla/internal/config"
	"github.com/fleetmind/go-vla/internal/log"
	"github.com/fleetmind/go-vla/pkg/embodiment"
	"github.com/fleetmind/go-vla/pkg/executor"
	"github.com/fleetmind/go-vla/pkg/inference"
	"github.com/fleetmind/go-vla/pkg/vla"
	"github.com/fleetmind/go-vla/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to TOML config file")
		cloudURL    = pflag.String("cloud", "", "Cloud inference endpoint URL")
		edgeURL     = pflag.String("edge", "", "Edge inference endpoint URL (ws:// for streaming)")
		robotURL    = pflag.String("robot", "", "Robot daemon URL (empty records actions in memory)")
		instruction = pflag.StringP("instruction", "i", "", "Language instruction for the task")
		embTag      = pflag.StringP("embodiment", "e", "", "Embodiment tag")
		embDir      = pflag.String("embodiment-dir", "", "Directory of embodiment YAML configs")
		method      = pflag.String("method", "", "Interpolation method: linear or cubic")
		tickMs      = pflag.Int("tick-ms", 0, "Control tick period in milliseconds")
		bufferCap   = pflag.Int("buffer", 0, "Action buffer capacity")
		webAddr     = pflag.String("web", "", "Dashboard listen address (\"off\" disables)")
		logLevel    = pflag.String("log-level", "", "Log level: debug, info, warn, error")
		duration    = pflag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
		sim         = pflag.Bool("sim", false, "Use the built-in simulator instead of a cloud endpoint")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Flags override file and env.
	overlayStr(&cfg.CloudURL, *cloudURL)
	overlayStr(&cfg.EdgeURL, *edgeURL)
	overlayStr(&cfg.RobotURL, *robotURL)
	overlayStr(&cfg.Instruction, *instruction)
	overlayStr(&cfg.Embodiment, *embTag)
	overlayStr(&cfg.EmbodimentDir, *embDir)
	overlayStr(&cfg.Method, *method)
	overlayStr(&cfg.LogLevel, *logLevel)
	overlayStr(&cfg.WebAddr, *webAddr)
	if *tickMs > 0 {
		cfg.TickMs = *tickMs
	}
	if *bufferCap > 0 {
		cfg.BufferCapacity = *bufferCap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	loader := embodiment.NewLoader(cfg.EmbodimentDir, logger)

	cloud, edge, err := buildClients(cfg, *sim)
	if err != nil {
		return err
	}

	exec, obs := buildExecutor(cfg, logger)

	controller := vla.New(loader, cloud, edge,
		vla.WithTickInterval(cfg.TickInterval()),
		vla.WithBufferCapacity(cfg.BufferCapacity),
		vla.WithUnderrunTimeout(cfg.UnderrunTimeout()),
		vla.WithMethod(vla.Method(cfg.Method)),
		vla.WithEmbodimentTag(cfg.Embodiment),
		vla.WithPredictTimeout(cfg.Timeout()),
		vla.WithLogger(logger),
	)

	var dashboard *web.Server
	if cfg.WebAddr != "" && cfg.WebAddr != "off" {
		dashboard = web.NewServer(cfg.WebAddr, controller, loader, logger)
		dashboard.StartAsync()
		defer dashboard.Shutdown()
	}

	if err := controller.Start(cfg.Instruction, exec, obs); err != nil {
		return err
	}
	defer controller.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("session running",
		"session", controller.SessionID(),
		"instruction", cfg.Instruction,
		"embodiment", cfg.Embodiment)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// buildClients constructs the cloud and edge inference clients from config.
// In sim mode the simulator replaces the cloud endpoint.
func buildClients(cfg *config.Config, sim bool) (cloud, edge vla.InferenceClient, err error) {
	if sim {
		cloud = inference.NewSimulator()
	} else {
		if cfg.CloudURL == "" {
			return nil, nil, fmt.Errorf("no cloud endpoint configured (use --cloud or --sim)")
		}
		cloud, err = newClient(cfg, cfg.CloudURL, "cloud")
		if err != nil {
			return nil, nil, err
		}
	}

	if cfg.EdgeURL != "" {
		edge, err = newClient(cfg, cfg.EdgeURL, "edge")
		if err != nil {
			return nil, nil, err
		}
	}
	return cloud, edge, nil
}

// newClient picks the transport from the URL scheme.
func newClient(cfg *config.Config, url, name string) (vla.InferenceClient, error) {
	opts := []inference.Option{
		inference.WithBaseURL(url),
		inference.WithName(name),
		inference.WithAPIKey(cfg.APIKey),
		inference.WithModel(cfg.Model),
		inference.WithTimeout(cfg.Timeout()),
	}
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return inference.NewWSClient(opts...)
	}
	return inference.NewHTTPClient(opts...)
}

// buildExecutor wires the robot daemon driver, or a recorder plus synthetic
// observations when no robot is configured.
func buildExecutor(cfg *config.Config, logger *slog.Logger) (vla.Executor, vla.ObservationSource) {
	if cfg.RobotURL != "" {
		driver := executor.NewHTTPDriver(cfg.RobotURL, logger)
		return driver, driver
	}

	rec := &executor.Recorder{}
	obs := vla.ObservationSourceFunc(func() vla.Observation {
		return vla.Observation{
			JointPositions: make([]float64, 6),
			Timestamp:      float64(time.Now().UnixNano()) / 1e9,
		}
	})
	logger.Info("no robot configured, recording actions in memory")
	return rec, obs
}

func overlayStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
