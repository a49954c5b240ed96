// Package docstream sends the documents of local runs outside of the
// process: to a JSON lines file, or to an MQTT broker.
package docstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/runengine"
)

var logger = logutil.GetLogger("docstream")

// Sink receives documents.
type Sink interface {
	Send(name string, doc runengine.Document) error
	Close() error
}

// Attach subscribes a sink to the documents of a run engine. Send errors are
// logged, since they must not stop the plan. The returned function
// unsubscribes the sink.
func Attach(re *runengine.RunEngine, s Sink) (detach func()) {
	token := re.Subscribe(func(name string, doc runengine.Document) {
		if err := s.Send(name, doc); err != nil {
			logger.Warn().Err(err).Str("doc", name).Msg("failed to send document")
		}
	})
	return func() { re.Unsubscribe(token) }
}

// Open creates the sinks configured in cfg. The caller must close them.
func Open(cfg config.Documents) ([]Sink, error) {
	var sinks []Sink
	if cfg.File != "" {
		f, err := OpenJSONL(cfg.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if cfg.MQTT.Broker != "" {
		m, err := DialMQTT(cfg.MQTT)
		if err != nil {
			for _, s := range sinks {
				s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}

// Line is one line of a JSON lines file of documents.
type Line struct {
	Name string             `json:"name"`
	Doc  runengine.Document `json:"doc"`
}

// JSONL writes documents as JSON lines.
type JSONL struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewJSONL creates a JSONL writing to w.
func NewJSONL(w io.Writer) *JSONL {
	j := &JSONL{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		j.c = c
	}
	return j
}

// OpenJSONL opens a file for appending documents.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open document file: %w", err)
	}
	return NewJSONL(f), nil
}

func (j *JSONL) Send(name string, doc runengine.Document) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(Line{name, doc})
}

func (j *JSONL) Close() error {
	if j.c == nil {
		return nil
	}
	return j.c.Close()
}

// Publisher is the part of mqtt.Client used by MQTT.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each document as JSON to <topic>/<document name>.
type MQTT struct {
	pub     Publisher
	topic   string
	qos     byte
	timeout time.Duration
	// Called on Close. Nil for publishers not owned by MQTT.
	disconnect func()
}

// PublishTimeout bounds how long Send waits for the broker.
const PublishTimeout = 5 * time.Second

// NewMQTT creates an MQTT sink on an existing publisher.
func NewMQTT(pub Publisher, topic string, qos byte) *MQTT {
	return &MQTT{pub: pub, topic: topic, qos: qos, timeout: PublishTimeout}
}

// DialMQTT connects to the broker in cfg.
func DialMQTT(cfg config.MQTT) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	logger.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("connected to MQTT broker")
	m := NewMQTT(client, cfg.Topic, cfg.QoS)
	m.disconnect = func() { client.Disconnect(250) }
	return m, nil
}

var errPublishTimeout = errors.New("timed out publishing document")

func (m *MQTT) Send(name string, doc runengine.Document) error {
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", name, err)
	}
	token := m.pub.Publish(m.topic+"/"+name, m.qos, false, js)
	if !token.WaitTimeout(m.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

func (m *MQTT) Close() error {
	if m.disconnect != nil {
		m.disconnect()
	}
	return nil
}
