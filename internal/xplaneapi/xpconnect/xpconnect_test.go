package xpconnect

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/curbz/failure-niner/internal/mockserver"
	"github.com/curbz/failure-niner/internal/simdata"
	"github.com/curbz/failure-niner/internal/xplaneapi/xpapimodel"
)

func testConfig(baseURL string) config {
	var cfg config
	cfg.XPlane.RestBaseURL = baseURL + "/api/v2"
	cfg.XPlane.WebSocketURL = "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v2"
	return cfg
}

func waitForTelemetry(t *testing.T, xpc *XPConnect, ok func(simdata.Telemetry) bool) simdata.Telemetry {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tel, err := xpc.GetTelemetry()
		if err == nil && ok(tel) {
			return tel
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("telemetry not received in time")
	return simdata.Telemetry{}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestStartReceivesTelemetry(t *testing.T) {
	mock := mockserver.New()
	mock.UpdateInterval = 20 * time.Millisecond
	mock.Set(simdata.DrefOnGround, 0)
	mock.Set(simdata.DrefGroundSpeed, 50.0)
	mock.Set(simdata.DrefIndicatedAS, 120.0)
	mock.Set(simdata.DrefElevation, 1000.0)
	mock.Set(simdata.DrefAGL, 300.0)
	mock.Set(simdata.DrefThrottleRatio, []float64{0.95, 0.5})
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	if err := xpc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer xpc.Stop()

	tel := waitForTelemetry(t, xpc, func(simdata.Telemetry) bool { return true })
	if tel.OnGround || !tel.ThrottleTakeOff {
		t.Errorf("OnGround=%v ThrottleTakeOff=%v", tel.OnGround, tel.ThrottleTakeOff)
	}
	if !near(tel.GroundSpeed, 50*simdata.MpsToKnots) || !near(tel.IndicatedAirspeed, 120) {
		t.Errorf("speeds = %v kt gs / %v kt ias", tel.GroundSpeed, tel.IndicatedAirspeed)
	}
	if !near(tel.AltitudeMSL, 1000*simdata.MetresToFeet) || !near(tel.AltitudeAGL, 300*simdata.MetresToFeet) {
		t.Errorf("altitudes = %v ft msl / %v ft agl", tel.AltitudeMSL, tel.AltitudeAGL)
	}

	mock.Set(simdata.DrefThrottleRatio, []float64{0.7, 0.7})
	waitForTelemetry(t, xpc, func(tel simdata.Telemetry) bool { return !tel.ThrottleTakeOff })
}

func TestGetTelemetryBeforeUpdate(t *testing.T) {
	xpc := newXPConnect(config{})
	if _, err := xpc.GetTelemetry(); !errors.Is(err, ErrNoTelemetry) {
		t.Errorf("expected ErrNoTelemetry, got %v", err)
	}
	if xpc.config.XPlane.TakeOffThrottleRatio != defaultTakeOffThrottleRatio {
		t.Errorf("default takeoff throttle ratio not applied")
	}
}

func TestWriteDataref(t *testing.T) {
	mock := mockserver.New()
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	const name = "sim/operation/failures/rel_genera0"
	for range 2 {
		if err := xpc.WriteDataref(context.Background(), name, 6); err != nil {
			t.Fatalf("WriteDataref: %v", err)
		}
	}
	if got := mock.Writes(name); !reflect.DeepEqual(got, []any{6.0, 6.0}) {
		t.Errorf("writes = %v", got)
	}
	if len(xpc.refs) != 1 {
		t.Errorf("dataref id should be cached, got %v", xpc.refs)
	}

	v, err := xpc.ReadDataref(context.Background(), name)
	if err != nil {
		t.Fatalf("ReadDataref: %v", err)
	}
	if v != 6 {
		t.Errorf("read back %v, want 6", v)
	}
}

func TestReadDatarefNotNumeric(t *testing.T) {
	mock := mockserver.New()
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	if _, err := xpc.ReadDataref(context.Background(), simdata.DrefThrottleRatio); err == nil {
		t.Errorf("expected an error reading an array dataref as a number")
	}
}

func TestDisconnectDropsTelemetry(t *testing.T) {
	mock := mockserver.New()
	mock.UpdateInterval = 20 * time.Millisecond
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	if err := xpc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer xpc.Stop()
	waitForTelemetry(t, xpc, func(simdata.Telemetry) bool { return true })

	xpc.conn.Close()
	select {
	case <-xpc.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("reader did not stop after the connection closed")
	}
	if _, err := xpc.GetTelemetry(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("expected ErrDisconnected after the reader stopped, got %v", err)
	}
}

func TestWriteDatarefRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			http.Error(w, `{"error_code":"dataref_is_readonly"}`, http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"data":[{"id":7,"is_writable":true,"name":"sim/operation/failures/rel_otto","value_type":"int"}]}`))
	}))
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	err := xpc.WriteDataref(context.Background(), "sim/operation/failures/rel_otto", 6)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected a 403 error, got %v", err)
	}
}

func TestWriteDatarefNotWritable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":7,"is_writable":false,"name":"sim/operation/failures/rel_otto","value_type":"int"}]}`))
	}))
	defer srv.Close()

	xpc := newXPConnect(testConfig(srv.URL))
	if err := xpc.WriteDataref(context.Background(), "sim/operation/failures/rel_otto", 6); err == nil {
		t.Errorf("expected an error for a read-only dataref")
	}
}

func setupMockDatarefs() map[int]*xpapimodel.Dataref {
	m := make(map[int]*xpapimodel.Dataref)
	for i, dr := range simdata.SubscribeDatarefs {
		m[i+1] = &xpapimodel.Dataref{Name: dr.Name, DecodedDataType: dr.DecodedDataType}
	}
	return m
}

func TestProcessMessage(t *testing.T) {
	xpc := newXPConnect(config{})
	xpc.memDataRefIndexMap = setupMockDatarefs()

	xpc.processMessage([]byte(`{"type":"dataref_update_values","data":{"1":1,"2":0.2}}`))
	if _, err := xpc.GetTelemetry(); !errors.Is(err, ErrNoTelemetry) {
		t.Fatalf("partial update must not produce telemetry")
	}

	xpc.processMessage([]byte(`{"type":"dataref_update_values","data":{"3":0,"4":120.5,"5":0.1,"6":[0.92,0.91]}}`))
	tel, err := xpc.GetTelemetry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tel.OnGround || !tel.ThrottleTakeOff {
		t.Errorf("expected on ground with takeoff throttle, got %+v", tel)
	}

	xpc.processMessage([]byte(`{"type":"dataref_update_values","data":{"6":"garbage","99":1}}`))
	if tel, _ := xpc.GetTelemetry(); !tel.ThrottleTakeOff {
		t.Errorf("bad update should keep the previous throttle state")
	}

	xpc.processMessage([]byte(`{"req_id":3,"type":"result","success":false,"error_code":"invalid_id"}`))
	xpc.processMessage([]byte(`not json`))
}

func TestBuildURLWithFilters(t *testing.T) {
	got, err := buildURLWithFilters("http://localhost:8086/api/v2/datarefs", []xpapimodel.Dataref{
		{Name: simdata.DrefOnGround},
		{Name: simdata.DrefAGL},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "http://localhost:8086/api/v2/datarefs?filter%5Bname%5D=sim%2Fflightmodel%2Ffailures%2Fonground_any&filter%5Bname%5D=sim%2Fflightmodel%2Fposition%2Fy_agl"
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}
