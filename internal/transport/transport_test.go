package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

func encode(t *testing.T, ev SettingsEvent) []byte {
	t.Helper()
	data, err := msgpack.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestHandleQueuesRemoteSettings(t *testing.T) {
	m := newMirror(nil, "")
	m.handle(&nats.Msg{
		Subject: "failuregen.settings.A",
		Data:    encode(t, SettingsEvent{Origin: "efb-1", GeneratorType: "A", Settings: "1,1,2,0,0,80,250"}),
	})

	select {
	case ev := <-m.remote:
		if ev.GeneratorType != "A" || ev.Settings != "1,1,2,0,0,80,250" || ev.Origin != "efb-1" {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("event was not queued")
	}
}

func TestHandleSkipsOwnEcho(t *testing.T) {
	m := newMirror(nil, "")
	m.handle(&nats.Msg{
		Subject: "failuregen.settings.S",
		Data:    encode(t, SettingsEvent{Origin: m.origin, GeneratorType: "S", Settings: "0,1,2,0,0,200,300"}),
	})
	if len(m.remote) != 0 {
		t.Errorf("own message should be ignored")
	}
}

func TestHandleTakesTypeFromSubject(t *testing.T) {
	m := newMirror(nil, "")
	m.handle(&nats.Msg{
		Subject: "failuregen.settings.G",
		Data:    encode(t, SettingsEvent{Origin: "other", Settings: "1,1,2,0,1,0.33,0.4,30,95,140,5000"}),
	})
	ev := <-m.remote
	if ev.GeneratorType != "G" {
		t.Errorf("generator type = %q, want G", ev.GeneratorType)
	}
}

func TestHandleDiscardsGarbage(t *testing.T) {
	m := newMirror(nil, "")
	m.handle(&nats.Msg{Subject: "failuregen.settings.A", Data: []byte{0xc1}})
	if len(m.remote) != 0 {
		t.Errorf("garbage should not be queued")
	}
}

func TestHandleDropsWhenFull(t *testing.T) {
	m := newMirror(nil, "")
	data := encode(t, SettingsEvent{Origin: "other", GeneratorType: "T", Settings: "1,1,2,0,300"})
	for i := 0; i < remoteBuffer+5; i++ {
		m.handle(&nats.Msg{Subject: "failuregen.settings.T", Data: data})
	}
	if len(m.remote) != remoteBuffer {
		t.Errorf("queued %d, want %d", len(m.remote), remoteBuffer)
	}
}

func TestDisabledMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("transport:\n  enabled: false\n  subject: efb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := New(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	if m.Remote() != nil {
		t.Errorf("disabled mirror should have no remote channel")
	}
	if err := m.PublishSettings("A", "1,1,2,0,0,80,250"); err != nil {
		t.Errorf("publish on disabled mirror: %v", err)
	}
	if err := m.PublishArming("A", []bool{true}); err != nil {
		t.Errorf("publish on disabled mirror: %v", err)
	}
	if m.subject != "efb" {
		t.Errorf("subject = %q", m.subject)
	}
}

func TestArmingEventEncoding(t *testing.T) {
	data, err := msgpack.Marshal(ArmingEvent{Origin: "x", GeneratorType: "H", Armed: []bool{true, false}})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := msgpack.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["generator_type"] != "H" {
		t.Errorf("payload keys = %v", got)
	}
}
