package runengine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"sophys.sh/cli/pkg/logutil"
)

var logger = logutil.GetLogger("runengine")

var (
	// ErrAborted wraps the error of a context that was done while a plan
	// was running.
	ErrAborted = errors.New("plan aborted")
	// ErrBusy is returned by Run when another plan is running.
	ErrBusy = errors.New("run engine is busy")
)

// Document is one of the documents describing a run: "start", "descriptor",
// "event" or "stop".
type Document map[string]any

// Exit statuses in stop documents.
const (
	ExitSuccess = "success"
	ExitFail    = "fail"
	ExitAbort   = "abort"
)

// RunRecord keeps the documents of a finished run.
type RunRecord struct {
	Start Document
	Stop  Document
	// Events by stream name.
	Events map[string][]Document
}

// UID returns the uid of the run.
func (r *RunRecord) UID() string {
	uid, _ := r.Start["uid"].(string)
	return uid
}

// Column returns the values of a field in the events of a stream, as
// numbers. Events without the field are skipped.
func (r *RunRecord) Column(stream, field string) []float64 {
	var col []float64
	for _, ev := range r.Events[stream] {
		data, _ := ev["data"].(map[string]any)
		if v, ok := toFloat(data[field]); ok {
			col = append(col, v)
		}
	}
	return col
}

// RunEngine runs plans against the devices of a registry, and emits
// documents to its subscribers.
type RunEngine struct {
	Registry *Registry
	// Applied in order to every plan before it runs.
	Preprocessors []func(Plan) Plan
	// Called with every message the engine processes.
	MsgHook func(msg *Msg)
	// Clock of the documents. Defaults to time.Now.
	Now func() time.Time

	mu        sync.Mutex
	running   bool
	subs      map[int]func(name string, doc Document)
	nextToken int
	scanID    int
	lastRun   *RunRecord
}

// New creates a RunEngine.
func New(reg *Registry) *RunEngine {
	return &RunEngine{Registry: reg}
}

// Subscribe adds a callback for documents, and returns a token for
// Unsubscribe. Callbacks are called synchronously, in the goroutine
// running the plan.
func (re *RunEngine) Subscribe(fn func(name string, doc Document)) int {
	re.mu.Lock()
	defer re.mu.Unlock()
	if re.subs == nil {
		re.subs = make(map[int]func(string, Document))
	}
	re.nextToken++
	re.subs[re.nextToken] = fn
	return re.nextToken
}

// Unsubscribe removes a callback added by Subscribe.
func (re *RunEngine) Unsubscribe(token int) {
	re.mu.Lock()
	defer re.mu.Unlock()
	delete(re.subs, token)
}

// LastRun returns the record of the last run that was closed, or nil.
func (re *RunEngine) LastRun() *RunRecord {
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.lastRun
}

// Run runs a plan and returns the uids of the runs it opened. When the plan
// fails or ctx is done, the runs still open are closed with the "fail" or
// "abort" exit status.
func (re *RunEngine) Run(ctx context.Context, p Plan) ([]string, error) {
	re.mu.Lock()
	if re.running {
		re.mu.Unlock()
		return nil, ErrBusy
	}
	re.running = true
	re.mu.Unlock()
	defer func() {
		re.mu.Lock()
		re.running = false
		re.mu.Unlock()
	}()

	for _, pp := range re.Preprocessors {
		p = pp(p)
	}
	ex := &execution{re: re, ctx: ctx}
	err := p(ex.process)
	if err == nil && len(ex.runs) > 0 {
		err = fmt.Errorf("plan finished with %d run(s) still open", len(ex.runs))
	}
	if err != nil {
		status := ExitFail
		if errors.Is(err, ErrAborted) {
			status = ExitAbort
		}
		for len(ex.runs) > 0 {
			ex.closeRun(status, err.Error())
		}
		logger.Info().Err(err).Str("exit_status", status).Msg("plan stopped")
	}
	return ex.uids, err
}

func (re *RunEngine) now() float64 {
	now := time.Now
	if re.Now != nil {
		now = re.Now
	}
	return float64(now().UnixNano()) / 1e9
}

func (re *RunEngine) emit(name string, doc Document) {
	re.mu.Lock()
	tokens := slices.Sorted(maps.Keys(re.subs))
	subs := make([]func(string, Document), len(tokens))
	for i, t := range tokens {
		subs[i] = re.subs[t]
	}
	re.mu.Unlock()
	for _, fn := range subs {
		fn(name, doc)
	}
}

// State of one Run call.
type execution struct {
	re     *RunEngine
	ctx    context.Context
	runs   []*openRun
	bundle *bundle
	uids   []string
}

type openRun struct {
	record      *RunRecord
	descriptors map[string]Document
	seq         map[string]int
}

type bundle struct {
	stream   string
	readings map[string]Reading
	// Fields of each device read into the bundle.
	objects map[string][]string
}

func (ex *execution) process(msg *Msg) (any, error) {
	if err := ex.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if ex.re.MsgHook != nil {
		ex.re.MsgHook(msg)
	}
	logger.Debug().Stringer("msg", msg).Msg("processing")
	switch msg.Command {
	case "open_run":
		return ex.openRun(msg.Kwargs), nil
	case "close_run":
		if len(ex.runs) == 0 {
			return nil, errors.New("close_run without an open run")
		}
		if ex.bundle != nil {
			return nil, fmt.Errorf("close_run while a bundle of stream %q is open", ex.bundle.stream)
		}
		status, _ := msg.Kwargs["exit_status"].(string)
		reason, _ := msg.Kwargs["reason"].(string)
		if status == "" {
			status = ExitSuccess
		}
		return ex.closeRun(status, reason), nil
	case "create":
		if ex.bundle != nil {
			return nil, fmt.Errorf("create while a bundle of stream %q is open", ex.bundle.stream)
		}
		stream := "primary"
		if len(msg.Args) > 0 {
			if s, ok := msg.Args[0].(string); ok {
				stream = s
			}
		}
		ex.bundle = &bundle{stream: stream, readings: make(map[string]Reading), objects: make(map[string][]string)}
		return nil, nil
	case "read":
		dev, err := ex.re.Registry.Device(msg.Obj)
		if err != nil {
			return nil, err
		}
		readings, err := dev.Read()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", msg.Obj, err)
		}
		if ex.bundle != nil {
			fields := slices.Sorted(maps.Keys(readings))
			ex.bundle.objects[msg.Obj] = fields
			maps.Copy(ex.bundle.readings, readings)
		}
		return readings, nil
	case "save":
		return nil, ex.save()
	case "drop":
		if ex.bundle == nil {
			return nil, errors.New("drop without an open bundle")
		}
		ex.bundle = nil
		return nil, nil
	case "set":
		m, err := ex.re.Registry.movable(msg.Obj)
		if err != nil {
			return nil, err
		}
		if len(msg.Args) == 0 {
			return nil, fmt.Errorf("set %s: missing position", msg.Obj)
		}
		pos, ok := toFloat(msg.Args[0])
		if !ok {
			return nil, fmt.Errorf("set %s: invalid position %v", msg.Obj, msg.Args[0])
		}
		return nil, m.Set(pos)
	case "locate":
		m, err := ex.re.Registry.movable(msg.Obj)
		if err != nil {
			return nil, err
		}
		return m.Position(), nil
	case "set_origin":
		m, err := ex.re.Registry.movable(msg.Obj)
		if err != nil {
			return nil, err
		}
		o, ok := m.(Originer)
		if !ok {
			return nil, fmt.Errorf("device %q has no settable origin", msg.Obj)
		}
		pos := m.Position()
		if len(msg.Args) > 0 && msg.Args[0] != nil {
			if pos, ok = toFloat(msg.Args[0]); !ok {
				return nil, fmt.Errorf("set_origin %s: invalid position %v", msg.Obj, msg.Args[0])
			}
		}
		return nil, o.SetOrigin(pos)
	case "trigger":
		dev, err := ex.re.Registry.Device(msg.Obj)
		if err != nil {
			return nil, err
		}
		if t, ok := dev.(Triggerable); ok {
			return nil, t.Trigger()
		}
		return nil, nil
	case "sleep":
		var secs float64
		if len(msg.Args) > 0 {
			secs, _ = toFloat(msg.Args[0])
		}
		select {
		case <-time.After(time.Duration(secs * float64(time.Second))):
			return nil, nil
		case <-ex.ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrAborted, ex.ctx.Err())
		}
	case "wait", "checkpoint", "null":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown command %q", msg.Command)
}

func (ex *execution) openRun(md map[string]any) string {
	uid := uuid.NewString()
	ex.re.mu.Lock()
	ex.re.scanID++
	scanID := ex.re.scanID
	ex.re.mu.Unlock()

	start := Document{}
	maps.Copy(start, md)
	start["uid"] = uid
	start["time"] = ex.re.now()
	start["scan_id"] = scanID
	ex.runs = append(ex.runs, &openRun{
		record:      &RunRecord{Start: start, Events: make(map[string][]Document)},
		descriptors: make(map[string]Document),
		seq:         make(map[string]int),
	})
	ex.uids = append(ex.uids, uid)
	logger.Info().Str("uid", uid).Int("scan_id", scanID).Msg("run opened")
	ex.re.emit("start", start)
	return uid
}

func (ex *execution) closeRun(status, reason string) string {
	run := ex.runs[len(ex.runs)-1]
	ex.runs = ex.runs[:len(ex.runs)-1]
	ex.bundle = nil

	numEvents := make(map[string]any, len(run.seq))
	for stream, n := range run.seq {
		numEvents[stream] = n
	}
	uid := run.record.UID()
	stop := Document{
		"uid":         uuid.NewString(),
		"run_start":   uid,
		"time":        ex.re.now(),
		"exit_status": status,
		"reason":      reason,
		"num_events":  numEvents,
	}
	run.record.Stop = stop
	ex.re.mu.Lock()
	ex.re.lastRun = run.record
	ex.re.mu.Unlock()
	logger.Info().Str("uid", uid).Str("exit_status", status).Msg("run closed")
	ex.re.emit("stop", stop)
	return uid
}

func (ex *execution) save() error {
	b := ex.bundle
	if b == nil {
		return errors.New("save without an open bundle")
	}
	if len(ex.runs) == 0 {
		return errors.New("save outside of a run")
	}
	ex.bundle = nil
	run := ex.runs[len(ex.runs)-1]

	desc, ok := run.descriptors[b.stream]
	if !ok {
		dataKeys := make(map[string]any, len(b.readings))
		for field, r := range b.readings {
			dataKeys[field] = map[string]any{"source": "sim:" + field, "dtype": dtype(r.Value), "shape": []int{}}
		}
		objectKeys := make(map[string]any, len(b.objects))
		for obj, fields := range b.objects {
			objectKeys[obj] = fields
		}
		desc = Document{
			"uid":         uuid.NewString(),
			"run_start":   run.record.UID(),
			"time":        ex.re.now(),
			"name":        b.stream,
			"data_keys":   dataKeys,
			"object_keys": objectKeys,
		}
		run.descriptors[b.stream] = desc
		ex.re.emit("descriptor", desc)
	} else if dataKeys, _ := desc["data_keys"].(map[string]any); !sameKeys(dataKeys, b.readings) {
		return fmt.Errorf("readings of stream %q do not match its descriptor", b.stream)
	}

	data := make(map[string]any, len(b.readings))
	timestamps := make(map[string]any, len(b.readings))
	for field, r := range b.readings {
		data[field] = r.Value
		timestamps[field] = r.Timestamp
	}
	run.seq[b.stream]++
	event := Document{
		"uid":        uuid.NewString(),
		"descriptor": desc["uid"],
		"time":       ex.re.now(),
		"seq_num":    run.seq[b.stream],
		"data":       data,
		"timestamps": timestamps,
	}
	run.record.Events[b.stream] = append(run.record.Events[b.stream], event)
	ex.re.emit("event", event)
	return nil
}

func sameKeys(dataKeys map[string]any, readings map[string]Reading) bool {
	if len(dataKeys) != len(readings) {
		return false
	}
	for k := range readings {
		if _, ok := dataKeys[k]; !ok {
			return false
		}
	}
	return true
}

func dtype(v any) string {
	switch v.(type) {
	case float64, float32, int, int64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	return "array"
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
