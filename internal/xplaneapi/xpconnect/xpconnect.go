package xpconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/curbz/failure-niner/internal/simdata"
	xpapimodel "github.com/curbz/failure-niner/internal/xplaneapi/xpapimodel"
	util "github.com/curbz/failure-niner/pkg/util"
)

var (
	// ErrNoTelemetry is returned until the first subscribed update arrives.
	ErrNoTelemetry = errors.New("no telemetry received from x-plane yet")
	// ErrDisconnected is returned once the websocket reader has stopped.
	ErrDisconnected = errors.New("x-plane websocket disconnected")
)

const defaultTakeOffThrottleRatio = 0.9

type XPConnect struct {
	config config
	client *http.Client
	conn   *websocket.Conn
	done   chan struct{}
	// subscribed datarefs keyed by web api id
	memDataRefIndexMap map[int]*xpapimodel.Dataref
	memDataRefs        []xpapimodel.Dataref

	mu           sync.RWMutex
	telemetry    simdata.Telemetry
	received     bool
	disconnected bool

	// datarefs resolved for reads and writes, keyed by name
	refMu sync.Mutex
	refs  map[string]xpapimodel.DatarefInfo
}

type config struct {
	XPlane struct {
		RestBaseURL          string  `yaml:"web_api_http_url"`
		WebSocketURL         string  `yaml:"web_api_websocket_url"`
		TakeOffThrottleRatio float64 `yaml:"takeoff_throttle_ratio"`
	} `yaml:"xplane_api"`
}

func New(cfgPath string) (*XPConnect, error) {
	cfg, err := util.LoadConfig[config](cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}
	return newXPConnect(*cfg), nil
}

func newXPConnect(cfg config) *XPConnect {
	if cfg.XPlane.TakeOffThrottleRatio <= 0 {
		cfg.XPlane.TakeOffThrottleRatio = defaultTakeOffThrottleRatio
	}
	return &XPConnect{
		config:      cfg,
		client:      &http.Client{Timeout: 10 * time.Second},
		memDataRefs: simdata.SubscribeDatarefs,
		refs:        make(map[string]xpapimodel.DatarefInfo),
	}
}

var requestCounter atomic.Int64

// Start resolves the own-ship datarefs, connects the websocket and
// subscribes. Updates are processed in the background until Stop.
func (xpc *XPConnect) Start(ctx context.Context) error {
	log.Println("get own-ship dataref indices from x-plane web api")
	var err error
	xpc.memDataRefIndexMap, err = xpc.getDataRefIndices(ctx, xpc.memDataRefs)
	if err != nil {
		return fmt.Errorf("failed to retrieve dataref indices via REST: %w", err)
	}
	for id, dr := range xpc.memDataRefIndexMap {
		log.Printf("  - %-50s -> ID: %d", dr.Name, id)
	}
	if len(xpc.memDataRefIndexMap) != len(xpc.memDataRefs) {
		return fmt.Errorf("only %d of %d dataref indices were received", len(xpc.memDataRefIndexMap), len(xpc.memDataRefs))
	}

	log.Println("connecting to x-plane websocket")
	u, err := url.Parse(xpc.config.XPlane.WebSocketURL)
	if err != nil {
		return fmt.Errorf("error parsing websocket url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not connect to x-plane websocket: %w", err)
	}
	log.Println("websocket connection established")

	xpc.mu.Lock()
	xpc.received = false
	xpc.disconnected = false
	xpc.mu.Unlock()

	xpc.conn = conn
	done := make(chan struct{})
	xpc.done = done
	go func() {
		defer close(done)
		defer xpc.markDisconnected()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Println("websocket connection closed")
				} else {
					log.Println("websocket read error:", err)
				}
				return
			}
			xpc.processMessage(message)
		}
	}()

	if err := xpc.sendDatarefSubscription(); err != nil {
		xpc.Stop()
		return err
	}
	return nil
}

// Stop closes the websocket and waits for the reader to finish.
func (xpc *XPConnect) Stop() {
	if xpc.conn == nil {
		return
	}
	err := xpc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Printf("error sending websocket close: %v", err)
	}
	select {
	case <-xpc.done:
	case <-time.After(2 * time.Second):
	}
	xpc.conn.Close()
	xpc.conn = nil
}

// markDisconnected drops the snapshot so that no tick runs on stale data.
func (xpc *XPConnect) markDisconnected() {
	xpc.mu.Lock()
	defer xpc.mu.Unlock()
	xpc.received = false
	xpc.disconnected = true
}

// GetTelemetry returns the latest own-ship snapshot.
func (xpc *XPConnect) GetTelemetry() (simdata.Telemetry, error) {
	xpc.mu.RLock()
	defer xpc.mu.RUnlock()
	if xpc.disconnected {
		return simdata.Telemetry{}, ErrDisconnected
	}
	if !xpc.received {
		return simdata.Telemetry{}, ErrNoTelemetry
	}
	return xpc.telemetry, nil
}

// WriteDataref sets a dataref through the REST api, resolving and caching
// its id on first use.
func (xpc *XPConnect) WriteDataref(ctx context.Context, name string, value any) error {
	info, err := xpc.resolve(ctx, name)
	if err != nil {
		return err
	}
	if !info.IsWritable {
		return fmt.Errorf("dataref %s is not writable", name)
	}
	id := info.ID

	body, err := json.Marshal(xpapimodel.DatarefValueWrite{Data: value})
	if err != nil {
		return fmt.Errorf("error encoding value for %s: %w", name, err)
	}
	fullURL := fmt.Sprintf("%s/datarefs/%d/value", xpc.config.XPlane.RestBaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, fullURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := xpc.client.Do(req)
	if err != nil {
		return fmt.Errorf("error performing HTTP PATCH to %s: %w", fullURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("received non-OK status code %d from X-Plane REST API. Response: %s", resp.StatusCode, string(body))
	}
	return nil
}

// ReadDataref fetches the current value of a numeric dataref through the
// REST api.
func (xpc *XPConnect) ReadDataref(ctx context.Context, name string) (float64, error) {
	info, err := xpc.resolve(ctx, name)
	if err != nil {
		return 0, err
	}

	fullURL := fmt.Sprintf("%s/datarefs/%d/value", xpc.config.XPlane.RestBaseURL, info.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := xpc.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error performing HTTP GET to %s: %w", fullURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("received non-OK status code %d from X-Plane REST API. Response: %s", resp.StatusCode, string(body))
	}

	var response xpapimodel.APIResponseDatarefValue
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("error decoding response body: %w", err)
	}
	f, ok := response.Data.(float64)
	if !ok {
		return 0, fmt.Errorf("dataref %s has no numeric value (%T)", name, response.Data)
	}
	return f, nil
}

// resolve looks up a dataref by name, caching the result.
func (xpc *XPConnect) resolve(ctx context.Context, name string) (xpapimodel.DatarefInfo, error) {
	xpc.refMu.Lock()
	defer xpc.refMu.Unlock()
	if info, ok := xpc.refs[name]; ok {
		return info, nil
	}
	m, err := xpc.getDataRefIndices(ctx, []xpapimodel.Dataref{{Name: name}})
	if err != nil {
		return xpapimodel.DatarefInfo{}, err
	}
	dr := xpc.getMemDataRefByName(m, name)
	if dr == nil {
		return xpapimodel.DatarefInfo{}, fmt.Errorf("dataref %s not found in x-plane", name)
	}
	xpc.refs[name] = dr.APIInfo
	return dr.APIInfo, nil
}

// getDataRefIndices fetches the integer indices for the named datarefs via HTTP GET.
func (xpc *XPConnect) getDataRefIndices(ctx context.Context, drefs []xpapimodel.Dataref) (map[int]*xpapimodel.Dataref, error) {
	m := make(map[int]*xpapimodel.Dataref)

	response, err := xpc.webGetDatarefIndices(ctx, drefs)
	if err != nil {
		return nil, fmt.Errorf("error retrieving dataref indices from web api: %w", err)
	}

	for _, dataref := range response.Data {
		for _, dr := range drefs {
			if dr.Name == dataref.Name {
				m[dataref.ID] = &xpapimodel.Dataref{
					Name:            dr.Name,
					APIInfo:         dataref,
					DecodedDataType: dr.DecodedDataType,
				}
				break
			}
		}
	}
	return m, nil
}

func (xpc *XPConnect) webGetDatarefIndices(ctx context.Context, drefs []xpapimodel.Dataref) (xpapimodel.APIResponseDatarefs, error) {
	var response xpapimodel.APIResponseDatarefs

	fullURL, err := buildURLWithFilters(xpc.config.XPlane.RestBaseURL+"/datarefs", drefs)
	if err != nil {
		return response, err
	}
	log.Printf("querying web api: %s", fullURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return response, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := xpc.client.Do(req)
	if err != nil {
		return response, fmt.Errorf("error performing HTTP GET to %s: %w", fullURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return response, fmt.Errorf("received non-OK status code %d from X-Plane REST API. Response: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return response, fmt.Errorf("error decoding response body: %w", err)
	}
	return response, nil
}

// sendDatarefSubscription subscribes to every resolved dataref.
func (xpc *XPConnect) sendDatarefSubscription() error {
	reqID := requestCounter.Add(1)

	paramDatarefs := make([]xpapimodel.SubDataref, 0, len(xpc.memDataRefIndexMap))
	for index := range xpc.memDataRefIndexMap {
		paramDatarefs = append(paramDatarefs, xpapimodel.SubDataref{Id: index})
	}

	request := xpapimodel.DatarefSubscriptionRequest{
		RequestID: reqID,
		Type:      "dataref_subscribe_values",
		Params:    xpapimodel.ParamDatarefs{Datarefs: paramDatarefs},
	}
	if err := util.SendJSON(xpc.conn, request); err != nil {
		return fmt.Errorf("error sending dataref subscription: %w", err)
	}
	log.Printf("-> sent request id %d: subscribing to %d datarefs", reqID, len(paramDatarefs))
	return nil
}

// processMessage handles and dispatches the incoming JSON data from X-Plane.
func (xpc *XPConnect) processMessage(message []byte) {
	var response xpapimodel.SubscriptionResponse
	if err := json.Unmarshal(message, &response); err != nil {
		log.Printf("error unmarshaling top-level response: %v. Raw: %s", err, string(message))
		return
	}

	switch response.Type {
	case "dataref_update_values":
		xpc.handleSubscribedDatarefUpdate(response.Data)
	case "result":
		if response.Success {
			log.Printf("<- received response id %d: success", response.RequestID)
		} else {
			log.Printf("<- received response id %d: failure %s %s", response.RequestID, response.ErrorCode, response.ErrorMessage)
		}
	default:
		log.Printf("[UNKNOWN] req id %d, type: %s, payload: %s", response.RequestID, response.Type, string(message))
	}
}

func (xpc *XPConnect) handleSubscribedDatarefUpdate(datarefs map[string]any) {
	xpc.mu.Lock()
	defer xpc.mu.Unlock()

	for id, value := range datarefs {
		idInt, err := strconv.Atoi(id)
		if err != nil {
			log.Printf("error converting dataref ID %s to int: %v", id, err)
			continue
		}
		dr, exists := xpc.memDataRefIndexMap[idInt]
		if !exists {
			log.Printf("unable to update dataref id %d - not subscribed", idInt)
			continue
		}
		if err := updateMemDatarefValue(dr, value); err != nil {
			log.Printf("error updating dataref ID %d value: %v", idInt, err)
		}
	}
	xpc.updateTelemetry()
}

func updateMemDatarefValue(dr *xpapimodel.Dataref, value any) error {
	switch dr.DecodedDataType {
	case "float_array":
		elems, ok := value.([]any)
		if !ok {
			return fmt.Errorf("dataref %s: expected array, got %T", dr.Name, value)
		}
		floatArray := make([]float64, len(elems))
		for i, elem := range elems {
			f, ok := elem.(float64)
			if !ok {
				return fmt.Errorf("dataref %s: element %d is %T", dr.Name, i, elem)
			}
			floatArray[i] = f
		}
		dr.Value = floatArray
	default:
		dr.Value = value
	}
	return nil
}

// updateTelemetry rebuilds the snapshot from the stored values. Callers hold mu.
func (xpc *XPConnect) updateTelemetry() {
	onGround, errG := xpc.getMemFloat(simdata.DrefOnGround)
	gs, errS := xpc.getMemFloat(simdata.DrefGroundSpeed)
	ias, errI := xpc.getMemFloat(simdata.DrefIndicatedAS)
	elev, errE := xpc.getMemFloat(simdata.DrefElevation)
	agl, errA := xpc.getMemFloat(simdata.DrefAGL)
	throttle, errT := xpc.getMemMax(simdata.DrefThrottleRatio)
	if errG != nil || errS != nil || errI != nil || errE != nil || errA != nil || errT != nil {
		if !xpc.received {
			// partial first update, wait for the rest
			return
		}
		logErrors(errG, errS, errI, errE, errA, errT)
		return
	}

	xpc.telemetry = simdata.Telemetry{
		OnGround:          onGround != 0,
		ThrottleTakeOff:   throttle >= xpc.config.XPlane.TakeOffThrottleRatio,
		GroundSpeed:       gs * simdata.MpsToKnots,
		IndicatedAirspeed: ias,
		AltitudeMSL:       elev * simdata.MetresToFeet,
		AltitudeAGL:       agl * simdata.MetresToFeet,
		Received:          time.Now(),
	}
	xpc.received = true
}

func (xpc *XPConnect) getMemFloat(name string) (float64, error) {
	dr := xpc.getMemDataRefByName(xpc.memDataRefIndexMap, name)
	if dr == nil {
		return 0, fmt.Errorf("error: dataref %s not found in map", name)
	}
	f, ok := dr.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("error: dataref %s has no numeric value (%T)", name, dr.Value)
	}
	return f, nil
}

// getMemMax returns the largest element of an array dataref.
func (xpc *XPConnect) getMemMax(name string) (float64, error) {
	dr := xpc.getMemDataRefByName(xpc.memDataRefIndexMap, name)
	if dr == nil {
		return 0, fmt.Errorf("error: dataref %s not found in map", name)
	}
	values, ok := dr.Value.([]float64)
	if !ok || len(values) == 0 {
		return 0, fmt.Errorf("error: dataref %s is not a non-empty []float64", name)
	}
	m := values[0]
	for _, v := range values[1:] {
		m = max(m, v)
	}
	return m, nil
}

// getMemDataRefByName retrieves the Dataref struct by its name.
func (xpc *XPConnect) getMemDataRefByName(datarefIndicesMap map[int]*xpapimodel.Dataref, s string) *xpapimodel.Dataref {
	for _, dr := range datarefIndicesMap {
		if dr.Name == s {
			return dr
		}
	}
	return nil
}

// buildURLWithFilters constructs the complete URL with filter[name]=... parameters.
func buildURLWithFilters(urlStr string, drefs []xpapimodel.Dataref) (string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}
	q := u.Query()
	for _, dataref := range drefs {
		q.Add("filter[name]", dataref.Name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func logErrors(errs ...error) {
	for _, e := range errs {
		if e != nil {
			log.Println(e)
		}
	}
}
