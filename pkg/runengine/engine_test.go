package runengine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	. "sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/sim"
)

type docRecorder struct {
	names []string
	docs  []Document
}

func (r *docRecorder) record(name string, doc Document) {
	r.names = append(r.names, name)
	r.docs = append(r.docs, doc)
}

func (r *docRecorder) last(name string) Document {
	for i := len(r.names) - 1; i >= 0; i-- {
		if r.names[i] == name {
			return r.docs[i]
		}
	}
	return nil
}

func newEngine() (*RunEngine, *docRecorder) {
	re := New(sim.NewRegistry())
	rec := &docRecorder{}
	re.Subscribe(rec.record)
	return re, rec
}

func countPlan(num int) Plan {
	return RunWrapper(func(yield Yield) error {
		for range num {
			if _, err := TriggerAndRead(yield, "primary", "det", "motor"); err != nil {
				return err
			}
		}
		return nil
	}, map[string]any{"plan_name": "count"})
}

func TestRun_Documents(t *testing.T) {
	re, rec := newEngine()
	uids, err := re.Run(context.Background(), countPlan(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(uids) != 1 {
		t.Fatalf("got %d uids, want 1", len(uids))
	}
	want := []string{"start", "descriptor", "event", "event", "stop"}
	if diff := cmp.Diff(want, rec.names); diff != "" {
		t.Errorf("documents (-want +got):\n%s", diff)
	}
	start := rec.last("start")
	if start["uid"] != uids[0] || start["plan_name"] != "count" {
		t.Errorf("start document %v", start)
	}
	stop := rec.last("stop")
	if stop["exit_status"] != ExitSuccess || stop["run_start"] != uids[0] {
		t.Errorf("stop document %v", stop)
	}
	if diff := cmp.Diff(map[string]any{"primary": 2}, stop["num_events"]); diff != "" {
		t.Errorf("num_events (-want +got):\n%s", diff)
	}
	event := rec.last("event")
	if event["seq_num"] != 2 || event["descriptor"] != rec.last("descriptor")["uid"] {
		t.Errorf("event document %v", event)
	}
	data := event["data"].(map[string]any)
	if data["det"] != 1.0 {
		t.Errorf("det at motor=0 read %v, want 1", data["det"])
	}
}

func TestRun_Moves(t *testing.T) {
	re, _ := newEngine()
	plan := RunWrapper(func(yield Yield) error {
		for _, x := range []float64{-1, 0, 1} {
			if err := MoveTo(yield, []string{"motor"}, []float64{x}); err != nil {
				return err
			}
			if _, err := TriggerAndRead(yield, "primary", "motor", "det"); err != nil {
				return err
			}
		}
		pos, err := Position(yield, "motor")
		if err != nil {
			return err
		}
		if pos != 1 {
			t.Errorf("motor at %v, want 1", pos)
		}
		return nil
	}, nil)
	if _, err := re.Run(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	got := re.LastRun().Column("primary", "motor")
	if diff := cmp.Diff([]float64{-1, 0, 1}, got); diff != "" {
		t.Errorf("motor column (-want +got):\n%s", diff)
	}
	det := re.LastRun().Column("primary", "det")
	if !(det[1] > det[0] && det[1] > det[2]) {
		t.Errorf("det column %v does not peak at the center", det)
	}
}

func TestRun_FailClosesRuns(t *testing.T) {
	re, rec := newEngine()
	errPlan := errors.New("boom")
	plan := func(yield Yield) error {
		if _, err := yield(OpenRun(nil)); err != nil {
			return err
		}
		if _, err := yield(OpenRun(nil)); err != nil {
			return err
		}
		return errPlan
	}
	uids, err := re.Run(context.Background(), plan)
	if !errors.Is(err, errPlan) {
		t.Errorf("got error %v, want %v", err, errPlan)
	}
	if len(uids) != 2 {
		t.Errorf("got %d uids, want 2", len(uids))
	}
	want := []string{"start", "start", "stop", "stop"}
	if diff := cmp.Diff(want, rec.names); diff != "" {
		t.Errorf("documents (-want +got):\n%s", diff)
	}
	if stop := rec.last("stop"); stop["exit_status"] != ExitFail || stop["run_start"] != uids[0] {
		t.Errorf("last stop document %v", stop)
	}
}

func TestRun_Abort(t *testing.T) {
	re, rec := newEngine()
	ctx, cancel := context.WithCancel(context.Background())
	plan := func(yield Yield) error {
		if _, err := yield(OpenRun(nil)); err != nil {
			return err
		}
		cancel()
		_, err := yield(Checkpoint())
		return err
	}
	_, err := re.Run(ctx, plan)
	if !errors.Is(err, ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want ErrAborted wrapping context.Canceled", err)
	}
	if stop := rec.last("stop"); stop["exit_status"] != ExitAbort {
		t.Errorf("stop document %v", stop)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
	}{
		{"unknown command", Msgs(&Msg{Command: "teleport"})},
		{"unknown device", Msgs(Read("nope"))},
		{"set on a detector", Msgs(Set("det", 1))},
		{"close without open", Msgs(CloseRun())},
		{"save without create", Msgs(OpenRun(nil), Save())},
		{"run left open", Msgs(OpenRun(nil))},
		{"changing stream keys", Msgs(OpenRun(nil),
			Create("primary"), Read("det"), Save(),
			Create("primary"), Read("rand"), Save())},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			re, _ := newEngine()
			if _, err := re.Run(context.Background(), test.plan); err == nil {
				t.Errorf("got nil error")
			}
		})
	}
}

func TestRun_PreprocessorsAndHook(t *testing.T) {
	re, _ := newEngine()
	var cmds []string
	re.MsgHook = func(msg *Msg) { cmds = append(cmds, msg.Command) }
	re.Preprocessors = append(re.Preprocessors, func(p Plan) Plan {
		return Mutate(p, func(msg *Msg) (Plan, Plan) {
			if msg.Command == "open_run" {
				return nil, Msgs(Checkpoint())
			}
			return nil, nil
		})
	})
	if _, err := re.Run(context.Background(), Msgs(OpenRun(nil), CloseRun())); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"open_run", "checkpoint", "close_run"}, cmds); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	re, rec := newEngine()
	extra := 0
	token := re.Subscribe(func(string, Document) { extra++ })
	re.Unsubscribe(token)
	if _, err := re.Run(context.Background(), countPlan(1)); err != nil {
		t.Fatal(err)
	}
	if extra != 0 {
		t.Errorf("unsubscribed callback called %d times", extra)
	}
	if len(rec.names) != 4 {
		t.Errorf("got %d documents, want 4", len(rec.names))
	}
}
