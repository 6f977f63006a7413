package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autoserwis/signpad/internal/api"
	"github.com/autoserwis/signpad/internal/arbiter"
	"github.com/autoserwis/signpad/internal/common/cnst"
	"github.com/autoserwis/signpad/internal/common/config"
	"github.com/autoserwis/signpad/internal/device"
	"github.com/autoserwis/signpad/internal/notify"
	"github.com/autoserwis/signpad/internal/session"
	"github.com/autoserwis/signpad/pkg/logger"
	"github.com/autoserwis/signpad/pkg/metrics"
	"github.com/autoserwis/signpad/pkg/version"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	pairCode   string
	deviceName string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of signpad",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("signpad version %s\n", version.Get())
		},
	}

	pairCmd = &cobra.Command{
		Use:   "pair",
		Short: "Pair this tablet with the CRM backend",
		Long:  `Pair exchanges a pairing code shown in the CRM for device credentials and stores them locally.`,
		Run: func(cmd *cobra.Command, args []string) {
			runPair()
		},
	}

	rootCmd = &cobra.Command{
		Use:   "signpad",
		Short: "Signature capture client",
		Long:  `Signpad keeps a tablet connected to the CRM backend and relays signature sessions to the signing surface.`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", cnst.SignpadYaml, "path to configuration file")
	pairCmd.Flags().StringVar(&pairCode, "code", "", "pairing code shown in the CRM")
	pairCmd.Flags().StringVar(&deviceName, "name", "", "friendly device name")
	rootCmd.AddCommand(versionCmd, pairCmd)
}

func initLogger(cfg *config.Config) *zap.Logger {
	l, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

func runPair() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	l := initLogger(cfg)
	defer l.Sync()

	if pairCode == "" {
		l.Fatal("pairing code is required, pass --code")
	}
	name := deviceName
	if name == "" {
		name = cfg.Device.FriendlyName
	}

	store := device.NewFileStore(l, cfg.Device.CredentialsPath)
	client := api.NewClient(api.Config{BaseURL: cfg.Server.APIBaseURL}, l, func() *device.Identity { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), cnst.DefaultAPITimeout)
	defer cancel()

	resp, err := client.Pair(ctx, api.PairRequest{PairingCode: pairCode, DeviceName: name})
	if err != nil {
		l.Fatal("pairing failed", zap.Error(err))
	}

	identity := &device.Identity{
		DeviceID:     resp.DeviceID,
		DeviceToken:  resp.DeviceToken,
		CompanyID:    resp.CompanyID,
		LocationID:   resp.LocationID,
		FriendlyName: name,
	}

	// Branding is stored with the credentials so the signing surface can
	// render offline. Pairing succeeds without it.
	authed := api.NewClient(api.Config{BaseURL: cfg.Server.APIBaseURL}, l, func() *device.Identity { return identity })
	if branding, err := authed.GetCompanyBranding(ctx, resp.CompanyID); err != nil {
		l.Warn("failed to fetch company branding", zap.Error(err))
	} else {
		identity.Branding = branding
	}

	if err := store.Save(ctx, identity); err != nil {
		l.Fatal("failed to store device credentials", zap.Error(err))
	}

	fmt.Printf("Paired as %s (company %d)\n", resp.DeviceID, resp.CompanyID)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration from %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	l := initLogger(cfg)
	defer l.Sync()

	l.Info("starting signpad",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	ctx := context.Background()

	store := device.NewFileStore(l, cfg.Device.CredentialsPath)
	identity, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, device.ErrNotPaired) {
			l.Fatal("device not paired, run: signpad pair --code <pairing-code>")
		}
		l.Fatal("failed to load device credentials", zap.Error(err))
	}
	if info, err := device.InspectToken(identity.DeviceToken); err == nil && info.ExpiresWithin(24*time.Hour) {
		l.Warn("device token expires soon, re-pair the device",
			zap.Time("expiresAt", info.ExpiresAt))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		go serveMetrics(l, cfg.Metrics.Addr, m)
	}

	s := session.New(session.Config{
		WSBaseURL:            cfg.Server.WSBaseURL,
		ReconnectInterval:    cfg.Connection.ReconnectInterval,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
	}, l, session.Options{
		Notifier: notify.Log{Logger: l},
		Metrics:  m,
	})

	arb := arbiter.New(l, s, arbiter.Options{Metrics: m})
	defer arb.Close()
	unbind := arb.Bind(s)
	defer unbind()

	client := api.NewClient(api.Config{BaseURL: cfg.Server.APIBaseURL}, l, func() *device.Identity {
		return identity
	})

	s.On(session.TopicAuthenticated, func(session.Event) {
		go reportStatus(ctx, l, client, s, identity)
	})

	s.Connect(identity)

	ticker := time.NewTicker(cfg.Status.UpdateInterval)
	defer ticker.Stop()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			s.SendStatusUpdate()
			go reportStatus(ctx, l, client, s, identity)
		case sig := <-quit:
			l.Info("shutting down", zap.String("signal", sig.String()))
			s.Disconnect()
			return
		}
	}
}

// reportStatus mirrors the socket-borne telemetry over REST so the CRM
// sees the tablet even when the socket is down.
func reportStatus(ctx context.Context, l *zap.Logger, client *api.Client, s *session.Session, identity *device.Identity) {
	ctx, cancel := context.WithTimeout(ctx, cnst.DefaultAPITimeout)
	defer cancel()

	err := client.UpdateTabletStatus(ctx, api.TabletStatus{
		DeviceID:    identity.DeviceID,
		Status:      string(s.Status()),
		Orientation: "landscape",
		IsActive:    s.IsAuthenticated(),
		AppVersion:  version.Get(),
		ReportedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		l.Warn("failed to report tablet status", zap.Error(err))
	}
}

func serveMetrics(l *zap.Logger, addr string, m *metrics.Metrics) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", m.GinHandler())
	l.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		l.Error("metrics endpoint failed", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
