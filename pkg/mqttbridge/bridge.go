// Package mqttbridge publishes decoded Estia engine state onto MQTT
// topics for home-automation consumers, the way pkg/redis publishes it
// onto Redis for the logging/reporting collaborator. Neither package is
// part of the protocol engine itself; both sit above it.
package mqttbridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fxamacker/cbor/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/librescoot/estia-controller/pkg/estia"
)

// Bridge publishes decoded status/sensor/ack data to an MQTT broker.
// The status record and the sensor snapshot are each published twice:
// as human-readable JSON on the plain topic, and as a compact CBOR
// encoding on a "/cbor" suffixed topic, for consumers that prefer a
// smaller wire format. ACK codes and per-sensor values are published
// once, as plain text.
type Bridge struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
}

// Config holds the broker connection parameters.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	TopicPrefix string
	QoS         byte

	ConnectTimeout time.Duration
}

// Connect dials the broker and returns a ready-to-use Bridge.
func Connect(cfg Config) (*Bridge, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "estia"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL, err)
	}

	return &Bridge{client: client, topicPrefix: cfg.TopicPrefix, qos: cfg.QoS}, nil
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// publishes to drain.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

// statusPayload is the JSON/CBOR-serializable view of a decoded status
// record; field names are the same snake_case names pkg/redis uses for
// its status hash fields. Unlike the Redis hash, this payload carries
// "extended" and does not carry the secondary *_target2 values.
type statusPayload struct {
	Extended          bool `json:"extended" cbor:"extended"`
	OperationMode     byte `json:"operation_mode" cbor:"operation_mode"`
	Cooling           bool `json:"cooling" cbor:"cooling"`
	Heating           bool `json:"heating" cbor:"heating"`
	HotWater          bool `json:"hot_water" cbor:"hot_water"`
	Auto              bool `json:"auto" cbor:"auto"`
	Quiet             bool `json:"quiet" cbor:"quiet"`
	Night             bool `json:"night" cbor:"night"`
	BackupHeater      bool `json:"backup_heater" cbor:"backup_heater"`
	CoolingCMP        bool `json:"cooling_cmp" cbor:"cooling_cmp"`
	HeatingCMP        bool `json:"heating_cmp" cbor:"heating_cmp"`
	HotWaterHeater    bool `json:"hot_water_heater" cbor:"hot_water_heater"`
	HotWaterCMP       bool `json:"hot_water_cmp" cbor:"hot_water_cmp"`
	Pump1             bool `json:"pump1" cbor:"pump1"`
	HotWaterTarget    int  `json:"hot_water_target" cbor:"hot_water_target"`
	Zone1Target       int  `json:"zone1_target" cbor:"zone1_target"`
	Zone2Target       int  `json:"zone2_target" cbor:"zone2_target"`
	DefrostInProgress bool `json:"defrost_in_progress" cbor:"defrost_in_progress"`
	NightModeActive   bool `json:"night_mode_active" cbor:"night_mode_active"`
}

func toStatusPayload(s estia.StatusData) statusPayload {
	return statusPayload{
		Extended:          s.Extended,
		OperationMode:     s.OperationMode,
		Cooling:           s.Cooling,
		Heating:           s.Heating,
		HotWater:          s.HotWater,
		Auto:              s.Auto,
		Quiet:             s.Quiet,
		Night:             s.Night,
		BackupHeater:      s.BackupHeater,
		CoolingCMP:        s.CoolingCMP,
		HeatingCMP:        s.HeatingCMP,
		HotWaterHeater:    s.HotWaterHeater,
		HotWaterCMP:       s.HotWaterCMP,
		Pump1:             s.Pump1,
		HotWaterTarget:    s.HotWaterTarget,
		Zone1Target:       s.Zone1Target,
		Zone2Target:       s.Zone2Target,
		DefrostInProgress: s.DefrostInProgress,
		NightModeActive:   s.NightModeActive,
	}
}

// PublishStatus publishes the decoded status record to
// "<prefix>/status" (JSON) and "<prefix>/status/cbor" (CBOR).
func (b *Bridge) PublishStatus(s estia.StatusData) error {
	payload := toStatusPayload(s)
	return b.publishBoth(b.topicPrefix+"/status", payload)
}

// PublishSensors publishes the full sensor snapshot to
// "<prefix>/sensors" (JSON/CBOR) and each individual reading's raw
// value to "<prefix>/sensors/<name>" as a plain-text MQTT payload, the
// layout most home-automation MQTT discovery integrations expect.
func (b *Bridge) PublishSensors(readings map[string]estia.SensorReading) error {
	snapshot := make(map[string]float64, len(readings))
	for name, r := range readings {
		snapshot[name] = displayValue(r)
	}
	if err := b.publishBoth(b.topicPrefix+"/sensors", snapshot); err != nil {
		return err
	}
	for name, r := range readings {
		topic := fmt.Sprintf("%s/sensors/%s", b.topicPrefix, name)
		if err := b.publish(topic, []byte(fmt.Sprintf("%g", displayValue(r)))); err != nil {
			return fmt.Errorf("publish sensor %s: %w", name, err)
		}
	}
	return nil
}

// displayValue applies the catalog multiplier to a raw reading, e.g. a
// raw wf value of 123 with multiplier 0.1 displays as 12.3. Error
// readings (value <= estia.ErrCodeNotExist) are protocol error codes,
// not measurements, and must pass through unscaled.
func displayValue(r estia.SensorReading) float64 {
	if r.Value <= estia.ErrCodeNotExist {
		return float64(r.Value)
	}
	return float64(r.Value) * r.Multiplier
}

// PublishAck publishes the acknowledged command's data-type code to
// "<prefix>/ack".
func (b *Bridge) PublishAck(code uint16) error {
	return b.publish(b.topicPrefix+"/ack", []byte(fmt.Sprintf("%d", code)))
}

func (b *Bridge) publishBoth(topic string, v interface{}) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json for %s: %w", topic, err)
	}
	if err := b.publish(topic, jsonData); err != nil {
		return err
	}

	cborData, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cbor for %s: %w", topic, err)
	}
	log.Printf("mqttbridge: publishing %s, cbor=%s", topic+"/cbor", hex.EncodeToString(cborData))
	return b.publish(topic+"/cbor", cborData)
}

func (b *Bridge) publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, b.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
