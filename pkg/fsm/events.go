package fsm

import "github.com/tickbus/tickbus/pkg/signal"

// StateEvent is emitted when a state is created or deleted.
type StateEvent struct {
	Machine string `json:"machine"`
	State   string `json:"state"`
}

// EdgeEvent is emitted when a transition is added or removed.
type EdgeEvent struct {
	Machine string `json:"machine"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ChangeEvent is emitted after the current state changes. From is empty on
// the first switch.
type ChangeEvent struct {
	Machine string `json:"machine"`
	From    string `json:"from"`
	To      string `json:"to"`
}

var (
	KeyStateCreate     = signal.NewKey[StateEvent]("fsm.state_create")
	KeyStateDelete     = signal.NewKey[StateEvent]("fsm.state_delete")
	KeyStateConnect    = signal.NewKey[EdgeEvent]("fsm.state_connect")
	KeyStateDisconnect = signal.NewKey[EdgeEvent]("fsm.state_disconnect")
	KeyStateChange     = signal.NewKey[ChangeEvent]("fsm.state_change")
)

func defineSignals(b *signal.Bus) error {
	if err := signal.Define(b, KeyStateCreate); err != nil {
		return err
	}
	if err := signal.Define(b, KeyStateDelete); err != nil {
		return err
	}
	if err := signal.Define(b, KeyStateConnect); err != nil {
		return err
	}
	if err := signal.Define(b, KeyStateDisconnect); err != nil {
		return err
	}
	return signal.Define(b, KeyStateChange)
}
