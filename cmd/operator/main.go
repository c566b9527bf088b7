package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/open-teleop/go2bridge/domain/diagnostic"
	"github.com/open-teleop/go2bridge/domain/pose"
	"github.com/open-teleop/go2bridge/domain/session"
	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/api"
	"github.com/open-teleop/go2bridge/pkg/config"
	"github.com/open-teleop/go2bridge/pkg/connection"
	"github.com/open-teleop/go2bridge/pkg/device/joystick"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/loop"
	"github.com/open-teleop/go2bridge/pkg/tui"
	"github.com/open-teleop/go2bridge/pkg/zeromq"
	"github.com/open-teleop/go2bridge/services"
)

const appName = "go2bridge operator"

type Options struct {
	ConfigDir string `long:"config-dir" default:"./config" description:"Directory holding operator_config.yaml"`
	WS        string `long:"ws" description:"Robot backend websocket URL (overrides config and GO2_WS_URL)"`
	Port      int    `long:"port" description:"Operator HTTP port (overrides server.http_port)"`
	TUI       bool   `long:"tui" description:"Show the terminal link dashboard; logs go to the log file only"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	bootstrapCfg, err := config.LoadBootstrapConfig(opts.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load bootstrap configuration: %w", err)
	}
	if opts.WS != "" {
		bootstrapCfg.Backend.URL = opts.WS
	}
	if opts.Port > 0 {
		bootstrapCfg.Server.HTTPPort = opts.Port
	}

	var logger customlog.Logger
	if opts.TUI {
		logger, err = customlog.NewFileLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	} else {
		logger, err = customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Bootstrap configuration loaded: backend=%s http_port=%d refresh=%dHz",
		bootstrapCfg.Backend.URL, bootstrapCfg.Server.HTTPPort, bootstrapCfg.Render.RefreshHz)

	inputService, err := services.NewInputConfigService(bootstrapCfg.InputConfigPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize input config service: %w", err)
	}
	settings, err := inputService.CurrentSettings()
	if err != nil {
		logger.Warnf("Input configuration rejected, using defaults: %v", err)
		settings, _ = services.ToSettings(services.DefaultInputConfig())
	}

	diag := diagnostic.NewDiagnosticService()

	var telemetry session.Telemetry
	var zmqService *zeromq.Service
	if bootstrapCfg.ZeroMQ.Enabled {
		zmqService, err = zeromq.NewService(zeromq.Options{
			RequestAddress: bootstrapCfg.ZeroMQ.RequestBindAddress,
			PublishAddress: bootstrapCfg.ZeroMQ.PublishBindAddress,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize ZeroMQ service: %w", err)
		}
		publisher := zeromq.RegisterHandlers(zmqService, inputService.GetCurrentConfig,
			func() interface{} { return diag.Snapshot() }, logger)
		inputService.SetPublisher(publisher)
		telemetry = publisher
	}

	eventLoop := loop.New(1024, logger.WithField("component", "loop"))

	reconnect := bootstrapCfg.Reconnect
	sess, err := session.New(session.Options{
		URL: bootstrapCfg.Backend.URL,
		Backoff: connection.Backoff{
			Base:   time.Duration(reconnect.BaseIntervalMs) * time.Millisecond,
			Max:    time.Duration(reconnect.MaxIntervalMs) * time.Millisecond,
			Factor: reconnect.GrowthFactor,
		},
		Dialer: &connection.WSDialer{
			HandshakeTimeout: time.Duration(bootstrapCfg.Backend.HandshakeTimeoutMs) * time.Millisecond,
			WriteTimeout:     time.Duration(bootstrapCfg.Backend.WriteTimeoutMs) * time.Millisecond,
			OutboundBuffer:   bootstrapCfg.Backend.OutboundBuffer,
			Logger:           logger,
		},
		Scheduler:   eventLoop,
		Settings:    &settings,
		Diagnostics: diag,
		Telemetry:   telemetry,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}

	server := api.NewServer(api.ServerOptions{
		AppName:       appName,
		Loop:          eventLoop,
		Session:       sess,
		ConfigService: inputService,
		Diagnostics:   diag,
		Logger:        logger,
	})

	inputService.SetApplier(func(s teleop.Settings) error {
		var applyErr error
		if err := eventLoop.Invoke(func() { applyErr = sess.ApplyInputSettings(s) }); err != nil {
			return err
		}
		return applyErr
	})

	if err := eventLoop.Start(); err != nil {
		return fmt.Errorf("failed to start event loop: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = eventLoop.Invoke(func() {
		sess.Start()
		if dir := bootstrapCfg.Data.AssetsDirectory; dir != "" {
			sess.LoadGeometry(ctx, pose.DirLoader{Dir: dir})
		}
	})
	refresh := time.Second / time.Duration(bootstrapCfg.Render.RefreshHz)
	stopRefresh := eventLoop.Every(refresh, sess.Tick)

	if device := bootstrapCfg.Joystick.Device; device != "" {
		reader := &joystick.Reader{Path: device, Logger: logger}
		go func() {
			err := reader.Run(ctx, func(u joystick.Update) {
				ev := deviceEvent(u)
				eventLoop.Deliver(func() {
					if _, err := sess.HandleDevice(ev); err != nil {
						logger.Debugf("Joystick event dropped: %v", err)
					}
				})
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnf("Joystick reader stopped: %v", err)
			}
		}()
	}

	if zmqService != nil {
		if err := zmqService.Start(); err != nil {
			logger.Errorf("Failed to start ZeroMQ service: %v", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", bootstrapCfg.Server.HTTPPort)
		logger.Infof("Server starting on %s", addr)
		serverErr <- server.Listen(addr)
	}()

	if opts.TUI {
		if err := tui.Run(appName, diag.Snapshot); err != nil {
			logger.Errorf("Dashboard error: %v", err)
		}
	} else {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			logger.Infof("Received signal %v", sig)
		case err := <-serverErr:
			if err != nil {
				logger.Errorf("Server failed: %v", err)
			}
		}
	}

	logger.Infof("Shutting down...")
	cancel()
	stopRefresh()
	if err := eventLoop.Invoke(sess.Teardown); err != nil {
		logger.Warnf("Session teardown skipped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if zmqService != nil {
		zmqService.Stop()
	}
	eventLoop.Stop()

	logger.Infof("Operator exited properly")
	return nil
}

// deviceEvent turns a joystick update into the gamepad events operator pages send.
func deviceEvent(u joystick.Update) session.DeviceEvent {
	switch u.Kind {
	case joystick.Connected:
		return session.DeviceEvent{Type: session.EventGamepadConnected, DeviceID: u.DeviceID}
	case joystick.Disconnected:
		return session.DeviceEvent{Type: session.EventGamepadDisconnected, DeviceID: u.DeviceID}
	default:
		return session.DeviceEvent{
			Type:     session.EventGamepadState,
			DeviceID: u.DeviceID,
			Axes:     u.Axes,
			Buttons:  u.Buttons,
		}
	}
}
