package runengine

import "time"

// Constructors for the messages the engine understands.

func OpenRun(md map[string]any) *Msg { return &Msg{Command: "open_run", Kwargs: md} }

func CloseRun() *Msg { return &Msg{Command: "close_run"} }

// CloseRunWith closes a run with an exit status other than "success".
func CloseRunWith(exitStatus, reason string) *Msg {
	return &Msg{Command: "close_run", Kwargs: map[string]any{"exit_status": exitStatus, "reason": reason}}
}

// Create starts a bundle of readings for an event of the named stream.
func Create(stream string) *Msg { return &Msg{Command: "create", Args: []any{stream}} }

func Read(obj string) *Msg { return &Msg{Command: "read", Obj: obj} }

// Save emits the bundle started by Create as an event.
func Save() *Msg { return &Msg{Command: "save"} }

// Drop discards the bundle started by Create.
func Drop() *Msg { return &Msg{Command: "drop"} }

func Set(obj string, value float64) *Msg { return &Msg{Command: "set", Obj: obj, Args: []any{value}} }

// SetOrigin makes position the new zero of a motor. A nil position means
// the current one.
func SetOrigin(obj string, position *float64) *Msg {
	msg := &Msg{Command: "set_origin", Obj: obj, Args: []any{nil}}
	if position != nil {
		msg.Args[0] = *position
	}
	return msg
}

func Locate(obj string) *Msg { return &Msg{Command: "locate", Obj: obj} }

func Trigger(obj string) *Msg { return &Msg{Command: "trigger", Obj: obj} }

func Wait() *Msg { return &Msg{Command: "wait"} }

func Checkpoint() *Msg { return &Msg{Command: "checkpoint"} }

func Null() *Msg { return &Msg{Command: "null"} }

func Sleep(d time.Duration) *Msg { return &Msg{Command: "sleep", Args: []any{d.Seconds()}} }

// TriggerAndRead triggers the devices, then reads them all into one event
// of the named stream. It returns the readings by device.
func TriggerAndRead(yield Yield, stream string, devices ...string) (map[string]Reading, error) {
	for _, dev := range devices {
		if _, err := yield(Trigger(dev)); err != nil {
			return nil, err
		}
	}
	if _, err := yield(Wait()); err != nil {
		return nil, err
	}
	if _, err := yield(Create(stream)); err != nil {
		return nil, err
	}
	readings := make(map[string]Reading)
	for _, dev := range devices {
		ret, err := yield(Read(dev))
		if err != nil {
			return nil, err
		}
		if r, ok := ret.(map[string]Reading); ok {
			for k, v := range r {
				readings[k] = v
			}
		}
	}
	if _, err := yield(Save()); err != nil {
		return nil, err
	}
	return readings, nil
}

// MoveTo sets motors to positions, given as alternating names and values,
// and waits for them.
func MoveTo(yield Yield, motors []string, positions []float64) error {
	for i, m := range motors {
		if _, err := yield(Set(m, positions[i])); err != nil {
			return err
		}
	}
	_, err := yield(Wait())
	return err
}

// Position returns the position of a motor through a locate message.
func Position(yield Yield, motor string) (float64, error) {
	ret, err := yield(Locate(motor))
	if err != nil {
		return 0, err
	}
	pos, _ := ret.(float64)
	return pos, nil
}
