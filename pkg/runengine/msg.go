// Package runengine executes plans: streams of messages that move devices,
// read them and group the readings into runs.
//
// A Plan is a push iterator. It calls yield with each message in turn and
// gets back the engine's reply, like the position of a motor for "locate" or
// the reading of a device for "read". Preprocessors wrap plans to change the
// stream they produce; Mutate is the general way to write one.
package runengine

import (
	"fmt"
	"strings"
)

// Msg is one instruction to the run engine.
type Msg struct {
	Command string
	// Name of the device the command is about, if any.
	Obj    string
	Args   []any
	Kwargs map[string]any
}

func (m *Msg) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Msg(%q", m.Command)
	if m.Obj != "" {
		fmt.Fprintf(&sb, ", obj=%s", m.Obj)
	}
	if len(m.Args) > 0 {
		fmt.Fprintf(&sb, ", args=%v", m.Args)
	}
	if len(m.Kwargs) > 0 {
		fmt.Fprintf(&sb, ", kwargs=%v", m.Kwargs)
	}
	sb.WriteString(")")
	return sb.String()
}

// Yield sends a message to the consumer of a plan and returns its reply.
type Yield func(msg *Msg) (any, error)

// Plan produces messages by calling yield. It must stop and return the
// error as soon as yield returns one.
type Plan func(yield Yield) error

// Msgs returns a plan that yields the given messages.
func Msgs(msgs ...*Msg) Plan {
	return func(yield Yield) error {
		for _, msg := range msgs {
			if _, err := yield(msg); err != nil {
				return err
			}
		}
		return nil
	}
}

// Chain returns a plan that runs the given plans one after another.
func Chain(plans ...Plan) Plan {
	return func(yield Yield) error {
		for _, p := range plans {
			if err := p(yield); err != nil {
				return err
			}
		}
		return nil
	}
}

// Collect runs a plan with a consumer that replies nil to everything, and
// returns all messages. It is mostly useful in tests.
func Collect(p Plan) ([]*Msg, error) {
	var msgs []*Msg
	err := p(func(msg *Msg) (any, error) {
		msgs = append(msgs, msg)
		return nil, nil
	})
	return msgs, err
}
