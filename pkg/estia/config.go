package estia

import "time"

// Model selects the heat pump's power class, which determines the
// maximum heating setpoint accepted by the temperature command.
type Model int

const (
	Model4kW Model = iota
	Model6kW
	Model8kW
	Model11kW
)

// MaxHeatingTemp returns the model-dependent upper heating setpoint:
// 55C for the 4kW/6kW line, 65C for 8kW/11kW.
func (m Model) MaxHeatingTemp() int {
	if m < Model8kW {
		return 55
	}
	return 65
}

// DefaultSensorPollSet is the default list of sensor names requested by
// a host's periodic poll, matching the firmware's SENSORS_DATA_TO_REQUEST.
var DefaultSensorPollSet = []string{
	"tc", "twi", "two", "tho", "wf", "lps", "te", "to", "td", "ts", "tl", "cmp", "fan1", "pmv", "hps",
}

// Config holds the engine's tunables. Zero value is invalid; use
// NewConfig to get sane defaults, then apply Options.
type Config struct {
	Model Model

	TemperatureLimits TemperatureLimits

	ReadTimeout    time.Duration
	MinAvailable   int
	ByteDelay      time.Duration
	SniffedFramesLimit int

	RequestTimeout time.Duration
	RequestDelay   time.Duration
	RequestRetries int

	CmdTimeout   time.Duration
	CmdRetries   int
	CmdQueueSize int
}

// Option mutates a Config during construction.
type Option func(*Config)

// NewConfig returns the firmware's default tunables for the given heat
// pump model, with any Options applied on top.
func NewConfig(model Model, opts ...Option) Config {
	c := Config{
		Model: model,
		TemperatureLimits: TemperatureLimits{
			MinCooling:  7,
			MaxCooling:  25,
			MinHeating:  20,
			MaxHeating:  model.MaxHeatingTemp(),
			MinHotWater: 40,
			MaxHotWater: 75,
		},
		ReadTimeout:        190 * time.Millisecond,
		MinAvailable:       2,
		ByteDelay:          5 * time.Millisecond,
		SniffedFramesLimit: 64,

		RequestTimeout: 135 * time.Millisecond,
		RequestDelay:   110 * time.Millisecond,
		RequestRetries: 3,

		CmdTimeout:   1000 * time.Millisecond,
		CmdRetries:   2,
		CmdQueueSize: 10,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithTemperatureLimits overrides the default per-zone clamp ranges.
func WithTemperatureLimits(limits TemperatureLimits) Option {
	return func(c *Config) { c.TemperatureLimits = limits }
}

// WithSniffedFramesLimit overrides the completed-frame deque cap.
func WithSniffedFramesLimit(n int) Option {
	return func(c *Config) { c.SniffedFramesLimit = n }
}

// WithCmdQueueSize overrides the maximum number of queued commands.
func WithCmdQueueSize(n int) Option {
	return func(c *Config) { c.CmdQueueSize = n }
}
