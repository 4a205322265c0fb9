// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 PeptideWorks

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"periph.io/x/host/v3"

	"github.com/peptideworks/optad/pkg/bus"
	"github.com/peptideworks/optad/pkg/config"
	"github.com/peptideworks/optad/pkg/device"
	"github.com/peptideworks/optad/pkg/server"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the instrument controller daemon",
	Long: `Run the instrument controller daemon.

Loads the device inventory from the configuration file, opens the
shared instrument bus, and serves the line protocol over TCP and,
when configured, a serial console and a WebSocket endpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "optad.yaml", "Configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := device.NewRegistry(logger)

	if len(cfg.Devices.Relays) > 0 {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("initialize GPIO host: %w", err)
		}
		if err := registerRelays(registry, cfg.Devices.Relays); err != nil {
			return err
		}
	}

	if cfg.Serial.Bus.Port != "" {
		busPort, err := serial.Open(cfg.Serial.Bus.Port, &serial.Mode{BaudRate: 9600})
		if err != nil {
			return fmt.Errorf("open bus port %s: %w", cfg.Serial.Bus.Port, err)
		}
		defer busPort.Close()

		engine := bus.NewEngine(busPort, logger)
		if err := registerBusDevices(registry, engine, cfg.Devices); err != nil {
			return err
		}
	}

	logger.WithFields(log.Fields{
		"devices": registry.Len(),
		"tcp":     cfg.Listen.TCP,
	}).Info("controller starting")

	srv := server.New(server.NewDispatcher(registry, logger), logger)
	go srv.Run(ctx)

	ln, err := net.Listen("tcp", cfg.Listen.TCP)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen.TCP, err)
	}

	errc := make(chan error, 3)

	go func() {
		errc <- srv.ServeTCP(ctx, ln)
	}()

	if cfg.Listen.WS != "" {
		httpSrv := &http.Server{
			Addr:    cfg.Listen.WS,
			Handler: srv.WSHandler(ctx),
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		go func() {
			err := httpSrv.ListenAndServe()
			if err == http.ErrServerClosed {
				err = nil
			}
			errc <- err
		}()
		logger.WithField("ws", cfg.Listen.WS).Info("WebSocket listener enabled")
	}

	if cfg.Serial.Console.Port != "" {
		console, err := openConsole(cfg.Serial.Console)
		if err != nil {
			return err
		}
		defer console.Close()
		go func() {
			errc <- srv.ServeSerial(ctx, console)
		}()
		logger.WithField("port", cfg.Serial.Console.Port).Info("serial console enabled")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errc:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) (log.FieldLogger, error) {
	logger := log.New()

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}

	return logger, nil
}

func registerRelays(registry *device.Registry, relays []config.RelayConfig) error {
	for _, rc := range relays {
		outName, indicatorName := rc.Output, rc.Indicator
		if outName == "" {
			var err error
			outName, indicatorName, err = device.RelayLineNames(rc.Index)
			if err != nil {
				return fmt.Errorf("relay %s: %w", rc.ID, err)
			}
		}

		out, err := device.OpenPin(outName)
		if err != nil {
			return fmt.Errorf("relay %s: %w", rc.ID, err)
		}
		indicator, err := device.OpenPin(indicatorName)
		if err != nil {
			return fmt.Errorf("relay %s: %w", rc.ID, err)
		}

		if err := register(registry, device.NewRelay(rc.ID, out, indicator)); err != nil {
			return err
		}
	}
	return nil
}

// register treats a failed device initialization as non-fatal: the
// device stays in its slot, disabled, and the daemon runs degraded.
// Capacity and duplicate errors still abort startup.
func register(registry *device.Registry, d device.Device) error {
	err := registry.Register(d)
	var initErr *device.InitError
	if errors.As(err, &initErr) {
		return nil
	}
	return err
}

func registerBusDevices(registry *device.Registry, engine *bus.Engine, devices config.DevicesConfig) error {
	for _, vc := range devices.Valves {
		if err := register(registry, device.NewVici(vc.ID, vc.Address[0], engine)); err != nil {
			return err
		}
	}
	for _, pc := range devices.Pumps {
		if err := register(registry, device.NewMasterflex(pc.ID, pc.Address, engine)); err != nil {
			return err
		}
	}
	return nil
}

// openConsole opens the operator console port. A read timeout keeps the
// console loop responsive to shutdown.
func openConsole(cfg config.ConsoleConfig) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open console port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set console read timeout: %w", err)
	}
	return port, nil
}
