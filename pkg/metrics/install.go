package metrics

import (
	"github.com/tickbus/tickbus/pkg/loop"
	"github.com/tickbus/tickbus/pkg/relay"
	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

var (
	_ signal.MetricsRecorder = (*Manager)(nil)
	_ timer.MetricsRecorder  = (*Manager)(nil)
	_ loop.MetricsRecorder   = (*Manager)(nil)
	_ relay.MetricsRecorder  = (*Manager)(nil)
)

// Install makes m the package-level recorder of the signal, timer, loop and relay packages.
func (m *Manager) Install() {
	signal.SetMetricsRecorder(m)
	timer.SetMetricsRecorder(m)
	loop.SetMetricsRecorder(m)
	relay.SetMetricsRecorder(m)
}

// Uninstall restores the no-op recorders.
func Uninstall() {
	signal.SetMetricsRecorder(nil)
	timer.SetMetricsRecorder(nil)
	loop.SetMetricsRecorder(nil)
	relay.SetMetricsRecorder(nil)
}
