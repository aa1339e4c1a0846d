package redis

import (
	"fmt"
	"log"
	"time"

	"github.com/librescoot/estia-controller/pkg/estia"
)

// Redis keys and channels the heat pump controller publishes to and
// consumes from, mirroring the teacher's KeyVehicle/KeyBLECommandList
// naming but pointed at the Estia domain instead of scooter BLE state.
const (
	KeyStatus  = "estia:status"
	KeySensors = "estia:sensors"
	KeyAck     = "estia:ack"

	CommandList = "estia:commands"
)

// PublishStatus writes the decoded status record to the estia:status
// hash and publishes a field-changed notification on the estia:status
// channel, one field at a time, matching WriteAndPublishInt's
// per-field publish style.
func (c *Client) PublishStatus(s estia.StatusData) error {
	fields := map[string]int{
		"operation_mode":      int(s.OperationMode),
		"cooling":             boolToInt(s.Cooling),
		"heating":             boolToInt(s.Heating),
		"hot_water":           boolToInt(s.HotWater),
		"auto":                boolToInt(s.Auto),
		"quiet":               boolToInt(s.Quiet),
		"night":               boolToInt(s.Night),
		"backup_heater":       boolToInt(s.BackupHeater),
		"cooling_cmp":         boolToInt(s.CoolingCMP),
		"heating_cmp":         boolToInt(s.HeatingCMP),
		"hot_water_heater":    boolToInt(s.HotWaterHeater),
		"hot_water_cmp":       boolToInt(s.HotWaterCMP),
		"pump1":               boolToInt(s.Pump1),
		"hot_water_target":    s.HotWaterTarget,
		"zone1_target":        s.Zone1Target,
		"zone2_target":        s.Zone2Target,
		"defrost_in_progress": boolToInt(s.DefrostInProgress),
		"night_mode_active":   boolToInt(s.NightModeActive),
	}
	if s.Extended {
		fields["hot_water_target2"] = s.HotWaterTarget2
		fields["zone1_target2"] = s.Zone1Target2
		fields["zone2_target2"] = s.Zone2Target2
	}

	for field, value := range fields {
		if err := c.WriteAndPublishInt(KeyStatus, field, value); err != nil {
			return fmt.Errorf("publish status field %s: %w", field, err)
		}
	}
	return nil
}

// PublishSensors writes every sensor reading to the estia:sensors hash
// and publishes a field-changed notification per sensor. Error
// readings (values <= estia.ErrCodeNotExist, see estia.ErrCode*) are
// published as-is
// so a downstream consumer can distinguish a genuine zero reading from
// a timeout or protocol error.
func (c *Client) PublishSensors(readings map[string]estia.SensorReading) error {
	for name, reading := range readings {
		if err := c.WriteAndPublishInt(KeySensors, name, int(reading.Value)); err != nil {
			return fmt.Errorf("publish sensor %s: %w", name, err)
		}
	}
	return nil
}

// PublishAck writes the last acknowledged command's data-type code to
// the estia:ack hash and publishes a notification.
func (c *Client) PublishAck(code uint16) error {
	if err := c.WriteAndPublishInt(KeyAck, "frame_code", int(code)); err != nil {
		return fmt.Errorf("publish ack: %w", err)
	}
	return nil
}

// CommandHandler applies one host-issued command string to the engine.
type CommandHandler func(command string) error

// WatchCommands blocks forever (until stop is closed), popping commands
// off the estia:commands list with BRPOP and dispatching each to
// handle, mirroring the teacher's WatchRedisCommands loop.
func (c *Client) WatchCommands(stop <-chan struct{}, handle CommandHandler) {
	log.Printf("starting redis command watcher on list key: %s", CommandList)
	for {
		select {
		case <-stop:
			log.Println("stopping redis command watcher")
			return
		default:
		}

		result, err := c.BRPop(0, CommandList)
		if err != nil {
			log.Printf("error receiving command from redis list %s: %v", CommandList, err)
			time.Sleep(time.Second)
			continue
		}
		if result == nil {
			continue
		}

		command := result[1]
		if err := handle(command); err != nil {
			log.Printf("error handling command %q: %v", command, err)
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
