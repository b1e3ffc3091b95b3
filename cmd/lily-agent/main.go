package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bazza1982/lily-remote/internal/authn"
	"github.com/Bazza1982/lily-remote/internal/config"
	"github.com/Bazza1982/lily-remote/internal/coordinator"
	"github.com/Bazza1982/lily-remote/internal/discovery"
	"github.com/Bazza1982/lily-remote/internal/httpapi"
	"github.com/Bazza1982/lily-remote/internal/logging"
	"github.com/Bazza1982/lily-remote/internal/remote/desktop"
	"github.com/Bazza1982/lily-remote/internal/tlscert"
	"github.com/Bazza1982/lily-remote/internal/wsapi"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "lily-agent",
	Short: "Lily Remote Agent",
	Long:  `Lily Remote - a local-network remote-control desktop agent`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Run: func(cmd *cobra.Command, args []string) {
		if isWindowsService() {
			if err := runAsService(startAgent); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
		runAgent()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Lily Remote Agent v%s\n", version)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		showConfig()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect agent configuration",
}

var killSwitchActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the kill switch against a running agent",
	Run: func(cmd *cobra.Command, args []string) {
		killSwitchCall("activate")
	},
}

var killSwitchDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the kill switch against a running agent",
	Run: func(cmd *cobra.Command, args []string) {
		killSwitchCall("deactivate")
	},
}

var killSwitchCmd = &cobra.Command{
	Use:   "kill-switch",
	Short: "Control a running agent's kill switch over the local REST API",
}

var killSwitchAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/lily-remote/agent.yaml)")
	killSwitchCmd.PersistentFlags().StringVar(&killSwitchAddr, "addr", "https://127.0.0.1:8443", "agent REST API base URL")

	killSwitchCmd.AddCommand(killSwitchActivateCmd)
	killSwitchCmd.AddCommand(killSwitchDeactivateCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(killSwitchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.AuditMaxSizeMB, cfg.AuditMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

// agentComponents holds the running components so shutdown can stop them in
// the order spec.md's shutdown sequence mandates.
type agentComponents struct {
	coord       *coordinator.Coordinator
	httpServer  *http.Server
	advertiser  *discovery.Advertiser
}

func shutdownAgent(comps *agentComponents) {
	if comps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := comps.httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}
	if comps.advertiser != nil {
		comps.advertiser.Close()
	}
	comps.coord.Shutdown()
}

// startAgent loads config and wires the coordinator and its HTTP/WS surface,
// returning once the listener goroutine has been launched. Used directly by
// runAgent and, on Windows, as the SCM start callback.
func startAgent() (*agentComponents, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	initLogging(cfg)
	log.Info("starting agent", "version", version, "listenAddr", cfg.ListenAddr, "listenPort", cfg.ListenPort)

	pairedPath := config.GetDataDir() + "/paired.json"

	input := desktop.NewInput()
	screen, err := desktop.NewScreen(cfg.FrameMonitorIdx)
	if err != nil {
		return nil, fmt.Errorf("initialize screen capture: %w", err)
	}

	coord, err := coordinator.New(cfg, input, screen, pairedPath)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	if !cfg.LANMode {
		coord.Pairing.SetApprovalCallback(interactivePairingApproval)
	}
	coord.Start()

	auth := authn.New(coord.Pairing, cfg.LANMode)

	mux := http.NewServeMux()
	mux.Handle("/events", wsapi.NewHandler(coord, auth))
	restServer := httpapi.NewServer(coord, auth)
	mux.Handle("/", restServer)

	tlsCfg, err := tlscert.LoadOrGenerate(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load or generate TLS certificate: %w", err)
	}

	addr := net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.ListenPort))
	httpServer := &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: tlsCfg,
	}

	comps := &agentComponents{coord: coord, httpServer: httpServer}

	if cfg.DiscoveryEnabled {
		hostname, _ := os.Hostname()
		name := cfg.DiscoveryName
		if name == "" {
			name = hostname
		}
		adv, err := discovery.Start(discovery.Info{InstanceName: name, Port: cfg.ListenPort, PairingOpen: true})
		if err != nil {
			log.Warn("mdns advertiser failed to start, continuing without discovery", "error", err)
		} else {
			comps.advertiser = adv
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind listener %s: %w", addr, err)
	}
	tlsLn := tls.NewListener(ln, tlsCfg)

	go func() {
		log.Info("agent is running", "addr", addr)
		if err := httpServer.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	return comps, nil
}

// runAgent starts the agent and blocks until a termination signal arrives.
func runAgent() {
	comps, err := startAgent()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down agent")
	shutdownAgent(comps)
	log.Info("agent stopped")
}

func showConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Listen:          %s:%d\n", cfg.ListenAddr, cfg.ListenPort)
	fmt.Printf("LAN mode:        %v\n", cfg.LANMode)
	fmt.Printf("TLS cert/key:    %s / %s\n", cfg.TLSCertFile, cfg.TLSKeyFile)
	fmt.Printf("Audit dir:       %s\n", cfg.AuditDir)
	fmt.Printf("Discovery:       enabled=%v name=%q\n", cfg.DiscoveryEnabled, cfg.DiscoveryName)
	fmt.Printf("Rate limits:     requests=%.1f/s pairing=%.1f/min commands=%.1f/s ws=%.1f/s burst=%.1fx\n",
		cfg.RateRequestsPerSecond, cfg.RatePairingPerMinute, cfg.RateCommandsPerSecond,
		cfg.RateWSMessagesPerSecond, cfg.RateBurstMultiplier)
}
