package runengine

// MsgProc inspects a message and returns the plans to run around it. A nil
// head keeps the message; a non-nil head runs in its place and must yield the
// message itself for it to reach the engine. The tail runs after the message
// (or the head). Messages from head and tail go through MsgProc too, except
// for the message being replaced when the head yields it.
type MsgProc func(msg *Msg) (head, tail Plan)

// Mutate returns a plan with the messages of p rewritten by proc.
func Mutate(p Plan, proc MsgProc) Plan {
	return func(yield Yield) error {
		// Messages currently replaced by their head. Yielding one of them
		// from its own head sends it through unprocessed.
		replacing := make(map[*Msg]bool)
		var mutated Yield
		mutated = func(msg *Msg) (any, error) {
			if replacing[msg] {
				return yield(msg)
			}
			head, tail := proc(msg)
			var ret any
			if head == nil {
				r, err := yield(msg)
				if err != nil {
					return nil, err
				}
				ret = r
			} else {
				replacing[msg] = true
				err := head(func(m *Msg) (any, error) {
					r, err := mutated(m)
					if m == msg {
						ret = r
					}
					return r, err
				})
				delete(replacing, msg)
				if err != nil {
					return nil, err
				}
			}
			if tail != nil {
				if err := tail(mutated); err != nil {
					return nil, err
				}
			}
			return ret, nil
		}
		return p(mutated)
	}
}

// Finalize returns a plan that runs final after p, even when p fails. The
// error of p takes precedence.
func Finalize(p, final Plan) Plan {
	return func(yield Yield) error {
		err := p(yield)
		if ferr := final(yield); err == nil {
			err = ferr
		}
		return err
	}
}

// RunWrapper encloses p in a run with the given metadata.
func RunWrapper(p Plan, md map[string]any) Plan {
	return func(yield Yield) error {
		if _, err := yield(OpenRun(md)); err != nil {
			return err
		}
		if err := p(yield); err != nil {
			return err
		}
		_, err := yield(CloseRun())
		return err
	}
}
