// Package transport mirrors generator settings and arming status between
// processes over NATS. Payloads are msgpack encoded.
package transport

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/curbz/failure-niner/pkg/util"
)

type config struct {
	Transport struct {
		NatsURL string `yaml:"nats_url"`
		Subject string `yaml:"subject"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"transport"`
}

// SettingsEvent carries the full settings string of one generator type.
type SettingsEvent struct {
	Origin        string `msgpack:"origin"`
	GeneratorType string `msgpack:"generator_type"`
	Settings      string `msgpack:"settings"`
}

// ArmingEvent carries the armed flag of every record of one generator type.
type ArmingEvent struct {
	Origin        string `msgpack:"origin"`
	GeneratorType string `msgpack:"generator_type"`
	Armed         []bool `msgpack:"armed"`
}

const remoteBuffer = 64

// Mirror publishes local changes and queues settings received from other
// processes. A disabled Mirror publishes nothing and never receives.
type Mirror struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	origin  string
	remote  chan SettingsEvent
}

func New(cfgPath string) (*Mirror, error) {
	cfg, err := util.LoadConfig[config](cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error reading transport configuration: %w", err)
	}
	if !cfg.Transport.Enabled {
		log.Println("settings mirror disabled")
		return newMirror(nil, cfg.Transport.Subject), nil
	}

	url := cfg.Transport.NatsURL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("failuregen"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("settings mirror disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("settings mirror reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS at %s: %w", url, err)
	}
	log.Printf("settings mirror connected to %s", nc.ConnectedUrl())

	m := newMirror(nc, cfg.Transport.Subject)
	m.sub, err = nc.Subscribe(m.subject+".settings.>", m.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("error subscribing to %s settings: %w", m.subject, err)
	}
	return m, nil
}

func newMirror(nc *nats.Conn, subject string) *Mirror {
	if subject == "" {
		subject = "failuregen"
	}
	host, _ := os.Hostname()
	return &Mirror{
		nc:      nc,
		subject: subject,
		origin:  fmt.Sprintf("%s-%d", host, os.Getpid()),
		remote:  make(chan SettingsEvent, remoteBuffer),
	}
}

// Remote delivers settings published by other processes. It is nil when the
// mirror is disabled, so a select on it never fires.
func (m *Mirror) Remote() <-chan SettingsEvent {
	if m.nc == nil {
		return nil
	}
	return m.remote
}

func (m *Mirror) PublishSettings(prefix, encoded string) error {
	return m.publish(m.subject+".settings."+prefix, SettingsEvent{
		Origin:        m.origin,
		GeneratorType: prefix,
		Settings:      encoded,
	})
}

func (m *Mirror) PublishArming(prefix string, armed []bool) error {
	return m.publish(m.subject+".arming."+prefix, ArmingEvent{
		Origin:        m.origin,
		GeneratorType: prefix,
		Armed:         armed,
	})
}

func (m *Mirror) publish(subject string, event any) error {
	if m.nc == nil {
		return nil
	}
	data, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", subject, err)
	}
	if err := m.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("error publishing %s: %w", subject, err)
	}
	return nil
}

// handle queues a remote settings event, skipping our own echoes.
func (m *Mirror) handle(msg *nats.Msg) {
	var ev SettingsEvent
	if err := msgpack.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("discarding undecodable message on %s: %v", msg.Subject, err)
		return
	}
	if ev.Origin == m.origin {
		return
	}
	if ev.GeneratorType == "" {
		ev.GeneratorType = msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
	}
	select {
	case m.remote <- ev:
	default:
		log.Printf("remote settings queue full, dropping %s update from %s", ev.GeneratorType, ev.Origin)
	}
}

// Close drains the subscription and closes the connection.
func (m *Mirror) Close() {
	if m.nc == nil {
		return
	}
	if err := m.nc.Drain(); err != nil {
		log.Printf("error draining NATS connection: %v", err)
		m.nc.Close()
	}
}
