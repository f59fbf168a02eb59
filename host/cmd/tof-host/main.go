// Command tof-host talks to VL53L0X time-of-flight sensors, either through
// an MCU running the tofmcu firmware or directly on a Linux I2C bus.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"tofmcu/host/config"
	"tofmcu/protocol"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	port       = flag.String("port", "", "Serial device, overrides the configuration")
	local      = flag.Bool("local", false, "Drive the sensors on the host's I2C bus instead of an MCU")
	simulate   = flag.Bool("sim", false, "Use a simulated sensor (with -local) or a virtual MCU")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	version    = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *version {
		fmt.Println("tof-host", protocol.Version)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tof-host:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if *port != "" {
		cfg.Serial.Device = *port
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := cfg.Log.Logger(*debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	var b backend
	if *local {
		b, err = newLocalBackend(cfg, *simulate, log)
	} else {
		b, err = newMCUBackend(cfg, *simulate, log)
	}
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer b.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tof> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c := &console{b: b, out: rl.Stdout()}
	return c.run(rl)
}
