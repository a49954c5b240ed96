package docstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/sim"
	"sophys.sh/cli/pkg/testutil"
)

func countPlan() runengine.Plan {
	return runengine.RunWrapper(func(yield runengine.Yield) error {
		_, err := runengine.TriggerAndRead(yield, "primary", "det")
		return err
	}, map[string]any{"plan_name": "count"})
}

func TestJSONL(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t), "docs.jsonl")
	sinks, err := Open(config.Documents{File: path})
	require.NoError(t, err)
	require.Len(t, sinks, 1)

	re := runengine.New(sim.NewRegistry())
	detach := Attach(re, sinks[0])
	_, err = re.Run(context.Background(), countPlan())
	require.NoError(t, err)
	detach()
	require.NoError(t, sinks[0].Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line Line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		names = append(names, line.Name)
		if line.Name == "start" {
			assert.Equal(t, "count", line.Doc["plan_name"])
		}
	}
	assert.Equal(t, []string{"start", "descriptor", "event", "stop"}, names)
}

type fakeToken struct {
	mqtt.Token
	err     error
	blocked bool
}

func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.blocked }
func (t fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	token    fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return p.token
}

func TestMQTT(t *testing.T) {
	pub := &fakePublisher{}
	re := runengine.New(sim.NewRegistry())
	Attach(re, NewMQTT(pub, "sophys/documents", 1))
	_, err := re.Run(context.Background(), countPlan())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sophys/documents/start", "sophys/documents/descriptor",
		"sophys/documents/event", "sophys/documents/stop",
	}, pub.topics)
	var stop map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[3], &stop))
	assert.Equal(t, "success", stop["exit_status"])
}

func TestMQTT_Errors(t *testing.T) {
	errBroker := errors.New("broker said no")
	m := NewMQTT(&fakePublisher{token: fakeToken{err: errBroker}}, "t", 0)
	assert.ErrorIs(t, m.Send("start", runengine.Document{}), errBroker)

	m = NewMQTT(&fakePublisher{token: fakeToken{blocked: true}}, "t", 0)
	assert.ErrorIs(t, m.Send("start", runengine.Document{}), errPublishTimeout)

	m = NewMQTT(&fakePublisher{}, "t", 0)
	assert.Error(t, m.Send("start", runengine.Document{"bad": make(chan int)}))
}
