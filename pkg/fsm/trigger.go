package fsm

import "github.com/tickbus/tickbus/pkg/signal"

// BindTrigger switches m to state every time name is emitted on b, whatever
// payload it carries. A switch the graph does not allow is ignored.
// Unsubscribe the returned handle to remove the trigger.
func (m *Machine) BindTrigger(b *signal.Bus, name, state string) signal.Subscription {
	return b.SubscribeFunc(name, func() {
		if !m.SwitchTo(state) {
			m.logger.Debug("trigger ignored", "signal", name, "state", state, "current", m.Current())
		}
	})
}
