package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/inconshreveable/log15"

	"gocoupler/config"
	"gocoupler/host/api"
	"gocoupler/host/link"
	"gocoupler/host/serial"
	"gocoupler/host/sim"
	"gocoupler/host/telemetry"
	"gocoupler/protocol"
)

var (
	version = "undefined" // updated during release build
)

func main() {
	configPath := flag.String("config", "", "JSON host configuration file")
	device := flag.String("device", config.DefaultDevice, "Serial device path")
	baud := flag.Int("baud", config.DefaultBaud, "Baud rate (ignored for USB CDC)")
	serve := flag.Bool("serve", false, "Run the HTTP API and MQTT bridge instead of the shell")
	listen := flag.String("listen", config.DefaultListen, "Host:port for the HTTP API")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	topic := flag.String("topic", config.DefaultTopicPrefix, "MQTT topic prefix")
	simulate := flag.Bool("sim", false, "Talk to a simulated device instead of a serial port")
	simHz := flag.Float64("sim-hz", 50, "Signal frequency of the simulated device")
	verbose := flag.Bool("v", false, "Print more verbose messages")
	versionFlag := flag.Bool("V", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("coupler-host - version %s (protocol %s)\n", version, protocol.Version)
		os.Exit(0)
	}

	logLevel := log.LvlInfo
	if *verbose {
		logLevel = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(logLevel, log.StdoutHandler))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *device
		case "baud":
			cfg.Baud = *baud
		case "listen":
			cfg.Listen = *listen
		case "mqtt":
			cfg.MQTTBroker = *broker
		case "topic":
			cfg.TopicPrefix = *topic
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	port, err := openPort(ctx, cfg, *simulate, *simHz)
	if err != nil {
		log.Error("Failed to open device", "device", cfg.Device, "error", err)
		os.Exit(1)
	}

	l := link.Open(port, link.Options{
		AckTimeout: time.Duration(cfg.AckTimeout),
		Logger:     log.New("pkg", "link"),
	})
	defer l.Close()

	var pub *telemetry.Publisher
	if cfg.MQTTBroker != "" {
		client, err := telemetry.Dial(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.Error("MQTT connection failed", "broker", cfg.MQTTBroker, "error", err)
			os.Exit(1)
		}
		defer client.Disconnect(250)
		pub = telemetry.NewPublisher(client, cfg.TopicPrefix, log.New("pkg", "telemetry"))
		log.Info("MQTT bridge connected", "broker", cfg.MQTTBroker, "session", pub.Session())
	}

	watchCh := make(chan link.Reading, 64)
	var pubCh chan link.Reading
	if pub != nil {
		pubCh = make(chan link.Reading, 64)
		go func() {
			if err := pub.Run(ctx, pubCh); err != nil && err != context.Canceled {
				log.Error("MQTT bridge stopped", "error", err)
			}
		}()
	}
	go fanOut(l.Readings(), watchCh, pubCh)

	if *serve {
		var onMatrix func(*link.Applied)
		if pub != nil {
			onMatrix = func(a *link.Applied) {
				if err := pub.PublishMatrix(a); err != nil {
					log.Warn("Failed to publish matrix", "error", err)
				}
			}
		}
		srv := api.NewServer(l, onMatrix, log.New("pkg", "api"))
		go func() {
			if err := srv.Run(cfg.Listen); err != nil {
				log.Error("Error while running API", "error", err)
				os.Exit(1)
			}
		}()
		<-ctx.Done()
		log.Info("Shutting down")
		return
	}

	sh := newShell(l, pub, watchCh)
	sh.Run()
}

func loadConfig(path string) (*config.HostConfig, error) {
	if path == "" {
		cfg := config.DefaultHostConfig()
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.LoadHostConfig(data)
}

func openPort(ctx context.Context, cfg *config.HostConfig, simulate bool, hz float64) (serial.Port, error) {
	if !simulate {
		log.Info("Connecting to device", "device", cfg.Device, "baud", cfg.Baud)
		return serial.Open(serial.ConfigFromHost(cfg))
	}

	host, dev := serial.Pair()
	device, err := sim.New(sim.Options{
		Firmware: config.DefaultFirmwareConfig(),
		SignalHz: hz,
		Logger:   log.New("pkg", "sim"),
	})
	if err != nil {
		return nil, err
	}
	go func() {
		if err := device.Run(ctx, dev); err != nil && err != context.Canceled {
			log.Error("Simulated device stopped", "error", err)
		}
	}()
	log.Info("Using simulated device", "signal_hz", hz)
	return host, nil
}

// fanOut copies every reading to each non-nil output without blocking.
// Outputs are closed when in closes.
func fanOut(in <-chan link.Reading, outs ...chan link.Reading) {
	for rd := range in {
		for _, out := range outs {
			if out == nil {
				continue
			}
			select {
			case out <- rd:
			default:
			}
		}
	}
	for _, out := range outs {
		if out != nil {
			close(out)
		}
	}
}
