package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/broadcast"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/capture"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/framebuf"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/input"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/logging"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/metrics"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/netutil"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/security"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/server"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/session"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	createConfig := flag.Bool("create-config", false, "create example configuration files and exit")
	validateConfig := flag.Bool("validate-config", false, "validate the configuration file and exit")
	killPort := flag.Int("kill-port", 0, "kill the process using the given port and exit")
	flag.Parse()

	if *killPort != 0 {
		if netutil.KillProcessOnPort(*killPort) {
			fmt.Printf("killed process using port %d\n", *killPort)
		} else {
			fmt.Printf("no process killed on port %d\n", *killPort)
			os.Exit(1)
		}
		return
	}

	if *createConfig {
		if err := config.CreateExamples("config"); err != nil {
			fmt.Fprintln(os.Stderr, "create config:", err)
			os.Exit(1)
		}
		fmt.Println("example configuration files written to config/")
		return
	}

	mgr, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := mgr.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	if *validateConfig {
		fmt.Println("configuration is valid")
		return
	}

	if err := run(mgr); err != nil {
		logrus.WithError(err).Fatal("server failed")
	}
}

func run(mgr *config.Manager) error {
	cfg := &mgr.Config

	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}
	logrus.Info("remote desktop server starting")

	sec, err := security.New(cfg.Security)
	if err != nil {
		return err
	}
	tlsConf, err := sec.TLSConfig()
	if err != nil {
		return err
	}

	m := metrics.New()
	registry := session.NewRegistry()
	buf := framebuf.New(cfg.Performance.FrameQueueSize)
	engine := capture.NewEngine(capture.NewScreenSource(), capture.NewSettings(cfg.Performance), buf)
	broadcaster := broadcast.New(registry, buf, sec, m, cfg.Performance.CompressionLevel)
	actuator := input.NewActuator(cfg.Input.Backend)
	srv := server.New(cfg, registry, engine, broadcaster, sec, m, actuator)

	// Resolve ports before binding anything: HTTP and WS are essential,
	// metrics only degrades.
	host := cfg.Server.Host
	httpPort, err := netutil.ResolvePort(host, cfg.Server.HTTPPort, cfg.Server.HTTPPortFallbackStart, cfg.Server.HTTPPortFallbackEnd)
	if err != nil {
		return fmt.Errorf("http listener: %w", err)
	}
	wsPort, err := netutil.ResolvePort(host, cfg.Server.WSPort, cfg.Server.WSPortFallbackStart, cfg.Server.WSPortFallbackEnd)
	if err != nil {
		return fmt.Errorf("websocket listener: %w", err)
	}
	metricsPort := 0
	if cfg.Server.MetricsPort > 0 {
		metricsPort, err = netutil.ResolvePort(host, cfg.Server.MetricsPort, cfg.Server.MetricsPortFallbackStart, cfg.Server.MetricsPortFallbackEnd)
		if err != nil {
			logrus.WithError(err).Warn("no metrics port available, disabling metrics")
			metricsPort = 0
		}
	}
	cfg.Server.HTTPPort = httpPort
	cfg.Server.WSPort = wsPort
	cfg.Server.MetricsPort = metricsPort

	if err := engine.Start(); err != nil {
		return err
	}
	go broadcaster.Run()

	httpSrv := newHTTPServer(host, httpPort, srv.HTTPMux(), tlsConf)
	wsSrv := newHTTPServer(host, wsPort, srv.WSMux(), tlsConf)

	serveErr := make(chan error, 3)
	go serve(httpSrv, tlsConf, serveErr)
	go serve(wsSrv, tlsConf, serveErr)

	var metricsSrv *http.Server
	if metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = newHTTPServer(host, metricsPort, mux, nil)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				// Metrics are non-essential; log and continue degraded.
				logrus.WithError(err).Warn("metrics server failed")
			}
		}()
	}

	printServerInfo(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logrus.Infof("received %s, shutting down", sig)
	case err := <-serveErr:
		logrus.WithError(err).Error("listener failed, shutting down")
	}

	engine.Stop()
	buf.Close()
	registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("http shutdown")
	}
	if err := wsSrv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("websocket shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("metrics shutdown")
		}
	}
	logrus.Info("server shutdown complete")
	return nil
}

func newHTTPServer(host string, port int, handler http.Handler, tlsConf *tls.Config) *http.Server {
	return &http.Server{
		Addr:      fmt.Sprintf("%s:%d", host, port),
		Handler:   handler,
		TLSConfig: tlsConf,
	}
}

func serve(s *http.Server, tlsConf *tls.Config, errCh chan<- error) {
	var err error
	if tlsConf != nil {
		err = s.ListenAndServeTLS("", "")
	} else {
		err = s.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		errCh <- err
	}
}

func printServerInfo(cfg *config.Config) {
	proto, wsProto := "http", "ws"
	if cfg.Security.EnableTLS {
		proto, wsProto = "https", "wss"
	}
	ip := netutil.LocalIP()

	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("  REMOTE DESKTOP SERVER")
	fmt.Println("============================================================")
	fmt.Printf("  Max FPS: %d\n", cfg.Performance.MaxFPS)
	fmt.Printf("  Compression: zlib level %d\n", cfg.Performance.CompressionLevel)
	fmt.Printf("  Web interface: %s://%s:%d/\n", proto, ip, cfg.Server.HTTPPort)
	fmt.Printf("  WebSocket: %s://%s:%d/\n", wsProto, ip, cfg.Server.WSPort)
	if cfg.Server.MetricsPort > 0 {
		fmt.Printf("  Metrics: http://%s:%d/metrics\n", ip, cfg.Server.MetricsPort)
	}
	fmt.Printf("  File transfer: %v  Clipboard: %v  Auto-click: %v\n",
		cfg.Features.EnableFileTransfer, cfg.Features.EnableClipboard, cfg.Features.EnableAutoClick)
	fmt.Println("  Press Ctrl+C to shut down")
	fmt.Println("============================================================")
	fmt.Println()
}
