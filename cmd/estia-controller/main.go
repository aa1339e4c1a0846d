package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/librescoot/estia-controller/pkg/estia"
	"github.com/librescoot/estia-controller/pkg/mqttbridge"
	"github.com/librescoot/estia-controller/pkg/redis"
)

// Configuration flags
var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	legacySerial = flag.Bool("legacy-serial", false, "Use github.com/tarm/serial instead of go.bug.st/serial")
	model        = flag.Int("model", 11, "Heat pump model power class in kW (4, 6, 8 or 11)")

	redisAddr = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass = flag.String("redis-pass", "", "Redis password")
	redisDB   = flag.Int("redis-db", 0, "Redis database number")

	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883); disabled if empty")
	mqttClientID = flag.String("mqtt-client-id", "estia-controller", "MQTT client ID")

	pollInterval     = flag.Duration("poll-interval", 30*time.Second, "Sensor poll interval while the heat pump is active")
	idlePollInterval = flag.Duration("idle-poll-interval", 5*time.Minute, "Sensor poll interval while the heat pump is idle")
)

func modelFromFlag(kw int) estia.Model {
	switch kw {
	case 4:
		return estia.Model4kW
	case 6:
		return estia.Model6kW
	case 8:
		return estia.Model8kW
	default:
		return estia.Model11kW
	}
}

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting Estia heat pump controller")
	log.Printf("Serial device: %s (legacy driver: %v)", *serialDevice, *legacySerial)
	log.Printf("Heat pump model: %dkW", *model)
	log.Printf("Redis address: %s", *redisAddr)

	redisClient, err := redis.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	var bridge *mqttbridge.Bridge
	if *mqttBroker != "" {
		bridge, err = mqttbridge.Connect(mqttbridge.Config{
			BrokerURL: *mqttBroker,
			ClientID:  *mqttClientID,
		})
		if err != nil {
			log.Printf("Warning: failed to connect to MQTT broker %s: %v (continuing without MQTT)", *mqttBroker, err)
		} else {
			defer bridge.Close()
			log.Printf("Connected to MQTT broker %s", *mqttBroker)
		}
	}

	var port estia.Port
	if *legacySerial {
		sp, err := estia.OpenSerialPortLegacy(*serialDevice)
		if err != nil {
			log.Fatalf("Failed to open legacy serial port: %v", err)
		}
		defer sp.Close()
		port = sp
	} else {
		sp, err := estia.OpenSerialPort(*serialDevice)
		if err != nil {
			log.Fatalf("Failed to open serial port: %v", err)
		}
		defer sp.Close()
		port = sp
	}
	log.Printf("Connected to heat pump over serial")

	cfg := estia.NewConfig(modelFromFlag(*model))
	engine := estia.NewEngine(port, cfg)

	stopCh := make(chan struct{})

	// Engine is not safe for concurrent use, so it's touched only from
	// the tick loop goroutine below, which also runs the poll-interval
	// policy. Redis-issued commands are handed over as plain command
	// strings through this channel instead of calling engine methods
	// directly.
	commands := make(chan string, 32)

	go redisClient.WatchCommands(stopCh, func(command string) error {
		select {
		case commands <- command:
		case <-stopCh:
		}
		return nil
	})
	log.Printf("Watching Redis command list %s", redis.CommandList)

	go runTickLoop(engine, commands, redisClient, bridge, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down...")
	close(stopCh)
}

// runTickLoop owns the engine exclusively: it drains pending host
// commands, advances the protocol state machine, publishes newly
// decoded data, and runs the adaptive sensor-poll policy, all from one
// goroutine so the engine never needs its own locking.
func runTickLoop(engine *estia.Engine, commands <-chan string, redisClient *redis.Client, bridge *mqttbridge.Bridge, stop <-chan struct{}) {
	lastPoll := time.Time{}
	idle := false

	for {
		select {
		case <-stop:
			return
		case command := <-commands:
			if err := dispatchCommand(engine, command); err != nil {
				log.Printf("error handling command %q: %v", command, err)
			}
		default:
		}

		result := engine.Tick()

		if engine.NewStatusData() {
			status := engine.TakeStatus()
			idle = !status.Cooling && !status.Heating && !status.HotWater
			if err := redisClient.PublishStatus(status); err != nil {
				log.Printf("Error publishing status to Redis: %v", err)
			}
			if bridge != nil {
				if err := bridge.PublishStatus(status); err != nil {
					log.Printf("Error publishing status to MQTT: %v", err)
				}
			}
		}

		if engine.NewSensorData() {
			readings := engine.TakeSensorReadings()
			if err := redisClient.PublishSensors(readings); err != nil {
				log.Printf("Error publishing sensors to Redis: %v", err)
			}
			if bridge != nil {
				if err := bridge.PublishSensors(readings); err != nil {
					log.Printf("Error publishing sensors to MQTT: %v", err)
				}
			}
		}

		if ack := engine.TakeAckCode(); ack != 0 {
			if err := redisClient.PublishAck(ack); err != nil {
				log.Printf("Error publishing ack to Redis: %v", err)
			}
			if bridge != nil {
				if err := bridge.PublishAck(ack); err != nil {
					log.Printf("Error publishing ack to MQTT: %v", err)
				}
			}
		}

		// Tick reports FramePending and sends nothing while decoded
		// frames are still queued, so discard them once handled.
		for {
			if _, ok := engine.TakeNextFrame(); !ok {
				break
			}
		}

		// Adaptive sensor poll, backing off to a longer interval while
		// the heat pump is idle — the host-tick policy ported from the
		// firmware's requestDataOffInterval/requestDataTimer, which
		// lived outside the core engine there too.
		interval := *pollInterval
		if idle {
			interval = *idlePollInterval
		}
		if time.Since(lastPoll) >= interval {
			if engine.EnqueueSensorRequests(estia.DefaultSensorPollSet, false) {
				lastPoll = time.Now()
			}
		}

		// Tick never blocks, so without a sleep here this loop would spin
		// at full CPU between ticks — including while Busy/FramePending,
		// e.g. for the many ticks it takes a sensor poll cycle to drain
		// at RequestDelay=110ms/RequestTimeout=135ms per request. Idle
		// gets a slightly longer sleep since nothing is in flight to wait
		// on; Busy/FramePending still yield, just more eagerly.
		sleep := 5 * time.Millisecond
		if result == estia.Idle {
			sleep = 10 * time.Millisecond
		}
		time.Sleep(sleep)
	}
}

// dispatchCommand interprets a command string popped off the Redis
// command list and applies it to the engine. Grammar:
//
//	mode:<name>:<0|1>          e.g. mode:auto:1
//	switch:<name>:<0|1>        e.g. switch:cooling:1
//	temperature:<zone>:<value> e.g. temperature:heating:22
//	defrost:<0|1>
func dispatchCommand(engine *estia.Engine, command string) error {
	parts := strings.Split(command, ":")
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "mode", "switch":
		if len(parts) != 3 {
			log.Printf("malformed command %q", command)
			return nil
		}
		onOff, err := parseOnOff(parts[2])
		if err != nil {
			return err
		}
		engine.SetMode(parts[1], onOff)

	case "temperature":
		if len(parts) != 3 {
			log.Printf("malformed command %q", command)
			return nil
		}
		value, err := strconv.Atoi(parts[2])
		if err != nil {
			return err
		}
		engine.SetTemperature(parts[1], value)

	case "defrost":
		if len(parts) != 2 {
			log.Printf("malformed command %q", command)
			return nil
		}
		onOff, err := parseOnOff(parts[1])
		if err != nil {
			return err
		}
		engine.ForceDefrost(onOff)

	default:
		log.Printf("unknown command %q", command)
	}
	return nil
}

func parseOnOff(s string) (byte, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n != 0 {
		return 1, nil
	}
	return 0, nil
}
