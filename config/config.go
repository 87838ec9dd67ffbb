// Package config provides configuration management for tickbusd.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for tickbusd.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Loop is the frame driver configuration.
	Loop LoopConfig `mapstructure:"loop"`

	// Signals are declared on the hub bus at startup so that they are
	// listed and emittable before anything subscribes to them.
	Signals []string `mapstructure:"signals" validate:"dive,required"`

	// Emitters are periodic broadcasts started with the loop.
	Emitters []EmitterConfig `mapstructure:"emitters" validate:"dive"`

	// FSM lists state machine definition files and their triggers.
	FSM FSMConfig `mapstructure:"fsm"`

	// Relay bridges signals to other processes over Redis.
	Relay RelayConfig `mapstructure:"relay"`

	// Redis is the connection used by the relay.
	Redis RedisConfig `mapstructure:"redis"`

	// Server is the debug HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, discard or file path).
	Output string `mapstructure:"output"`
}

// LoopConfig holds frame driver settings.
type LoopConfig struct {
	// FrameRate is the target number of frames per second.
	FrameRate float64 `mapstructure:"frame_rate" validate:"gt=0,lte=1000"`

	// FixedStep is the step of the fixed lane.
	FixedStep time.Duration `mapstructure:"fixed_step" validate:"gt=0"`

	// TimeScale multiplies the delta of the normal and fixed lanes.
	TimeScale float64 `mapstructure:"time_scale" validate:"gte=0"`

	// MaxFrameDelta caps one frame's delta after a stall.
	MaxFrameDelta time.Duration `mapstructure:"max_frame_delta" validate:"gt=0"`

	// MaxFixedSteps caps the fixed steps run in one frame.
	MaxFixedSteps int `mapstructure:"max_fixed_steps" validate:"min=1"`

	// QueueSize is the capacity of the hub command queue.
	QueueSize int `mapstructure:"queue_size" validate:"min=1"`

	// Scheduler is the default scheduler name for emitters.
	Scheduler string `mapstructure:"scheduler" validate:"required"`
}

// EmitterConfig declares one periodic broadcast.
type EmitterConfig struct {
	// Signal is the name pulses are broadcast under.
	Signal string `mapstructure:"signal" validate:"required"`

	// Scheduler overrides loop.scheduler for this emitter.
	Scheduler string `mapstructure:"scheduler"`

	// Lane is normal, fixed or unscaled.
	Lane string `mapstructure:"lane" validate:"lane"`

	// Interval is the minimum time between pulses.
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`

	// MaxInterval, when greater than Interval, randomizes each interval.
	MaxInterval time.Duration `mapstructure:"max_interval" validate:"gte=0"`

	// Count stops the emitter after that many pulses; 0 is unbounded.
	Count int `mapstructure:"count" validate:"min=0"`

	// Delay replaces the first interval.
	Delay time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// FSMConfig holds state machine settings.
type FSMConfig struct {
	// Definitions are YAML or TOML machine definition files.
	Definitions []string `mapstructure:"definitions" validate:"dive,required,file_exists"`

	// Triggers switch a machine when a signal is emitted on the hub bus.
	Triggers []TriggerConfig `mapstructure:"triggers" validate:"dive"`
}

// TriggerConfig binds a signal to a state switch.
type TriggerConfig struct {
	Machine string `mapstructure:"machine" validate:"required"`
	Signal  string `mapstructure:"signal" validate:"required"`
	State   string `mapstructure:"state" validate:"required"`
}

// RelayConfig holds cross-process relay settings.
type RelayConfig struct {
	// Enabled starts the relay.
	Enabled bool `mapstructure:"enabled"`

	// Source identifies this process; empty picks a random id.
	Source string `mapstructure:"source"`

	// ChannelPrefix is prepended to signal names to form Redis channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`

	// Outbound signals are published when emitted locally.
	Outbound []string `mapstructure:"outbound" validate:"dive,required"`

	// Inbound signals are re-emitted locally when received.
	Inbound []string `mapstructure:"inbound" validate:"dive,required"`

	// BufferSize is the inbound queue capacity.
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`

	// Workers is the publish worker pool size.
	Workers int `mapstructure:"workers" validate:"min=1"`

	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"gt=0"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`
}

// ServerConfig holds the debug HTTP server configuration.
type ServerConfig struct {
	// Enabled starts the HTTP server.
	Enabled bool `mapstructure:"enabled"`

	// Host is the bind address.
	Host string `mapstructure:"host" validate:"omitempty,hostname_rfc1123|ip"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// MaxWebSocketConnections caps concurrent /ws/signals clients.
	MaxWebSocketConnections int `mapstructure:"max_ws_connections" validate:"min=1"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds API handlers, including waits on the frame goroutine.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the standalone metrics server port; 0 serves metrics on the
	// API server only.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc otlp"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds one export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is always_on, always_off or parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, FrameRate: %g}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Loop.FrameRate)
}
