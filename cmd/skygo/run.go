package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SkyGo/internal/config"
	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/clock"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
	"github.com/cjeanneret/SkyGo/internal/hw/gps"
	"github.com/cjeanneret/SkyGo/internal/link"
	"github.com/cjeanneret/SkyGo/internal/logic/celestial"
	"github.com/cjeanneret/SkyGo/internal/logic/scheduler"
	"github.com/cjeanneret/SkyGo/internal/storage/cmdlog"
	"github.com/cjeanneret/SkyGo/internal/web"
)

var webPort = &webPortFlag{defaultPort: 8080}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the mount controller",
	Long: `Build the hardware from the config file, wait for a position fix and a
synced clock, then service the link and run scheduled captures until
interrupted.

With --web, a status page is served and debug output is mirrored to its
live log stream. --web alone listens on port 8080.`,
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags().VarPF(webPort, "web", "w", "start web status server on port")
	f.NoOptDefVal = "8080"
}

func loadConfig() (*config.Config, error) {
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return cfg, nil
}

func linkEndpoint(cfg *config.Config) link.Endpoint {
	return link.Endpoint{
		Port:        cfg.Link.Port,
		Baud:        cfg.Link.Baud,
		URL:         cfg.Link.URL,
		Username:    cfg.Link.Username,
		NoSSLVerify: cfg.Link.NoSSLVerify,
		ReadTimeout: cfg.ReadTimeout(),
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}()

	debug.Step(2, "Initializing mount axes")
	mount, axes, err := newMount(gpioDriver, cfg)
	if err != nil {
		return fmt.Errorf("init mount failed: %w", err)
	}
	defer func() {
		for _, a := range axes {
			if err := a.Close(); err != nil {
				debug.Error(err)
			}
		}
	}()
	debug.PrintStruct("Horizontal axis config", cfg.HorizontalAxis)
	debug.PrintStruct("Vertical axis config", cfg.VerticalAxis)

	debug.Step(3, "Opening link")
	conn, connInfo, err := link.Open(linkEndpoint(cfg))
	if err != nil {
		return fmt.Errorf("open link failed: %w", err)
	}
	defer conn.Close()
	bridge := link.NewBridge(conn)
	debug.Value("Link", connInfo)

	debug.Step(4, "Initializing camera")
	cam, err := newCameraFromConfig(gpioDriver, bridge, cfg)
	if err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)

	debug.Step(5, "Loading catalog and site")
	catalog, err := celestial.NewCatalog(catalogTargets(cfg), cfg.SlotInterval())
	if err != nil {
		return err
	}
	site, err := gps.NewStatic(cfg.Site.Latitude, cfg.Site.Longitude)
	if err != nil {
		return err
	}
	debug.Value("Targets", len(catalog.Targets()))
	debug.Value("Site", site.CurrentFix())

	deps := scheduler.Deps{
		Link:     bridge,
		Clock:    clock.NewSoft(cfg.Clock.TrustSystem),
		Position: site,
		Resolver: catalog,
		Mount:    mount,
		Camera:   cam,
	}
	if cfg.Storage.CommandLog != "" {
		journal, err := cmdlog.Open(cfg.Storage.CommandLog)
		if err != nil {
			return err
		}
		deps.Log = journal
		debug.Value("Command log", cfg.Storage.CommandLog)
	}

	ctrl, err := scheduler.New(deps, scheduler.Config{
		ReadWindow:     cfg.ReadWindow(),
		CaptureTimeout: cfg.CaptureTimeout(),
		MotorTimeout:   cfg.MotorTimeout(),
		InitAttempts:   cfg.Schedule.InitAttempts,
	})
	if err != nil {
		return err
	}

	webErr := make(chan error, 1)
	if broadcaster != nil {
		addr := fmt.Sprintf(":%d", webPort.port())
		srv, err := web.NewServer(addr, broadcaster, ctrl, ctrl.Submit, webSettings(cfg, catalog))
		if err != nil {
			return err
		}
		go func() { webErr <- srv.Run(ctx) }()
	}

	if err := initWithRetry(ctx, ctrl, cfg.InitRetry()); err != nil {
		return ignoreCancel(err)
	}

	debug.Summary(fmt.Sprintf("SkyGo ready: %s, %d target(s)", connInfo, len(catalog.Targets())))
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	select {
	case err = <-runErr:
	case err = <-webErr:
		cancel()
		<-runErr
	}
	if perr := mount.PowerOff(); perr != nil {
		debug.Error(perr)
	}
	return ignoreCancel(err)
}

type initializer interface {
	Init(ctx context.Context) error
}

// initWithRetry calls Init until it succeeds, waiting retry between rounds
// that ran out of attempts. Any other error ends the loop.
func initWithRetry(ctx context.Context, c initializer, retry time.Duration) error {
	for {
		err := c.Init(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, scheduler.ErrInitTimeout) {
			return err
		}
		debug.Error(err)
		debug.Info("Retrying init in %s", retry)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		debug.Info("Stopped")
		return nil
	}
	return err
}
