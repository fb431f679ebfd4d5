// ecusimd runs the virtual ECU bench: one frame bus, a diagnostic server
// with battery and door ECUs behind it, periodic status broadcasts and a
// rotating trace file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/virtual-hil/vecu/canbus"
	"github.com/virtual-hil/vecu/codec"
	"github.com/virtual-hil/vecu/diagbus"
	"github.com/virtual-hil/vecu/ecu"
	"github.com/virtual-hil/vecu/logrecorder"
	"github.com/virtual-hil/vecu/uds"
)

type diagConfig struct {
	RequestID  uint32 `yaml:"requestId"`
	ResponseID uint32 `yaml:"responseId"`
}

type config struct {
	Channel     string `yaml:"channel"`
	BitrateBps  uint32 `yaml:"bitrateBps"`
	BroadcastMs int    `yaml:"broadcastMs"`

	Diag     diagConfig             `yaml:"diag"`
	Battery  ecu.BatteryConfig      `yaml:"battery"`
	NumDoors int                    `yaml:"numDoors"`
	Firmware string                 `yaml:"firmwarePath"`
	Trace    logrecorder.FileConfig `yaml:"trace"`
	Log      logrecorder.FileConfig `yaml:"log"`
}

func defaultConfig() config {
	return config{
		Channel:     "virtual0",
		BitrateBps:  500000,
		BroadcastMs: 100,
		Battery:     ecu.DefaultBatteryConfig(),
		NumDoors:    4,
		Trace:       logrecorder.DefaultFileConfig("trace/can.log"),
		Log:         logrecorder.DefaultFileConfig("log/ecusimd.log"),
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New(&lumberjack.Logger{
		Filename:   cfg.Log.Path,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, "", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Print(err)
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config, logger *log.Logger) error {
	bus := canbus.New(canbus.Config{
		Channel: cfg.Channel,
		Bitrate: cfg.BitrateBps,
	})
	defer bus.Close()

	recorder := logrecorder.New(bus, cfg.Channel, cfg.Trace)
	defer recorder.Close()

	server := uds.NewServer(uds.ServerConfig{Logger: logger})
	responder := diagbus.NewResponder(bus, server, cfg.Diag.RequestID, cfg.Diag.ResponseID)
	defer responder.Close()

	battery := ecu.NewBatteryECU(cfg.Battery)
	doors := ecu.NewDoorECU(cfg.NumDoors)

	if cfg.Firmware != "" {
		server.RegisterRoutine(ecu.FirmwareVerifyRoutineID, ecu.FirmwareVerifyRoutine(cfg.Firmware))
	}

	logger.Printf("bench up: channel=%s bitrate=%d req=0x%03X resp=0x%03X",
		cfg.Channel, cfg.BitrateBps, responder.RequestID(), responder.ResponseID())

	ticker := time.NewTicker(time.Duration(cfg.BroadcastMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stats := bus.Statistics()
			logger.Printf("bench down: tx=%d load=%.3f%%", stats.TxCount, stats.BusLoad)
			return nil
		case <-ticker.C:
			bus.Transmit(ecu.BMSStatusID, codec.EncodeBatteryStatus(battery.Status()), false)
			bus.Transmit(ecu.BDCStatusID, codec.EncodeDoorStatus(doors.Status()), false)

			// Mirror active faults into the diagnostic server.
			if dtc := battery.DTC(); dtc != "" {
				server.StoreDTC(dtc, 0x01)
			}
			if dtc := doors.DTC(); dtc != "" {
				server.StoreDTC(dtc, 0x01)
			}
		}
	}
}
