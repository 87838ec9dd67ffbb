package config

import (
	"fmt"

	"github.com/tickbus/tickbus/pkg/emitter"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/loop"
	"github.com/tickbus/tickbus/pkg/relay"
	"github.com/tickbus/tickbus/pkg/telemetry/tracing"
	"github.com/tickbus/tickbus/pkg/timer"
)

// ToLoopConfig converts LoopConfig to pkg/loop.Config.
func (c LoopConfig) ToLoopConfig() loop.Config {
	return loop.Config{
		FrameRate:     c.FrameRate,
		FixedStep:     c.FixedStep,
		TimeScale:     c.TimeScale,
		MaxFrameDelta: c.MaxFrameDelta,
		MaxFixedSteps: c.MaxFixedSteps,
	}
}

// ToSpec converts EmitterConfig to pkg/emitter.Spec.
func (c EmitterConfig) ToSpec() (emitter.Spec, error) {
	lane, err := timer.ParseLane(c.Lane)
	if err != nil {
		return emitter.Spec{}, fmt.Errorf("emitter %s: %w", c.Signal, err)
	}
	return emitter.Spec{
		Signal:      c.Signal,
		Lane:        lane,
		Interval:    c.Interval,
		MaxInterval: c.MaxInterval,
		Count:       c.Count,
		Delay:       c.Delay,
	}, nil
}

// EmitterSpecs groups the emitters by scheduler, using loop.scheduler for
// emitters that name none. Groups keep declaration order.
func (c *Config) EmitterSpecs() (map[string][]emitter.Spec, error) {
	out := make(map[string][]emitter.Spec)
	for _, ec := range c.Emitters {
		spec, err := ec.ToSpec()
		if err != nil {
			return nil, err
		}
		sched := ec.Scheduler
		if sched == "" {
			sched = c.Loop.Scheduler
		}
		out[sched] = append(out[sched], spec)
	}
	return out, nil
}

// ToRelayConfig converts RelayConfig to pkg/relay.Config.
func (c RelayConfig) ToRelayConfig() relay.Config {
	return relay.Config{
		Source:         c.Source,
		ChannelPrefix:  c.ChannelPrefix,
		Outbound:       append([]string(nil), c.Outbound...),
		Inbound:        append([]string(nil), c.Inbound...),
		BufferSize:     c.BufferSize,
		Workers:        c.Workers,
		PublishTimeout: c.PublishTimeout,
	}
}

// ToTracingConfig converts TracingConfig to pkg/telemetry/tracing.Config.
func (c TracingConfig) ToTracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:    c.Enabled,
		Exporter:   c.Exporter,
		Endpoint:   c.Endpoint,
		Headers:    c.Headers,
		Timeout:    c.Timeout,
		Sampler:    c.Sampler,
		SampleRate: c.SampleRate,
	}
}

// ToLoggerConfig converts LogConfig to pkg/logger.Config.
func (c LogConfig) ToLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.ParseLevel(c.Level),
		Format: c.Format,
		Output: c.Output,
	}
}
