// Package mockserver is a stand-in for the X-Plane 12 Web API. It serves
// dataref index lookups, value reads and writes, and a websocket that pushes
// subscribed own-ship values.
package mockserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/curbz/failure-niner/internal/simdata"
	"github.com/curbz/failure-niner/internal/xplaneapi/xpapimodel"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Server struct {
	// UpdateInterval is the period between pushed value updates.
	UpdateInterval time.Duration

	mu     sync.Mutex
	nextID int
	ids    map[string]int
	names  map[int]string
	values map[int]any
	writes map[string][]any
}

func New() *Server {
	s := &Server{
		UpdateInterval: 250 * time.Millisecond,
		nextID:         1000,
		ids:            make(map[string]int),
		names:          make(map[int]string),
		values:         make(map[int]any),
		writes:         make(map[string][]any),
	}
	s.Set(simdata.DrefOnGround, 1)
	s.Set(simdata.DrefGroundSpeed, 0.0)
	s.Set(simdata.DrefIndicatedAS, 0.0)
	s.Set(simdata.DrefElevation, 100.0)
	s.Set(simdata.DrefAGL, 0.0)
	s.Set(simdata.DrefThrottleRatio, []float64{0, 0})
	return s
}

// idFor returns a stable id per dataref name. Callers hold mu.
func (s *Server) idFor(name string) int {
	if id, ok := s.ids[name]; ok {
		return id
	}
	id := s.nextID
	s.nextID++
	s.ids[name] = id
	s.names[id] = name
	return id
}

// Set changes the value pushed for a dataref.
func (s *Server) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[s.idFor(name)] = value
}

// Writes returns every value PATCHed to the dataref so far.
func (s *Server) Writes(name string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.writes[name]...)
}

// Handler routes the Web API endpoints under /api/v2.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/datarefs", s.datarefsHandler)
	mux.HandleFunc("GET /api/v2/datarefs/{id}/value", s.valueHandler)
	mux.HandleFunc("PATCH /api/v2/datarefs/{id}/value", s.writeHandler)
	mux.HandleFunc("/api/v2", s.wsHandler)
	return mux
}

// Start serves the mock on the given port (e.g. "8086") until the returned
// server is shut down.
func Start(port string) (*Server, *http.Server) {
	s := New()
	srv := &http.Server{Addr: ":" + port, Handler: s.Handler()}
	go func() {
		log.Printf("mockserver: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("mockserver: ListenAndServe error: %v", err)
		}
	}()
	return s, srv
}

func (s *Server) datarefsHandler(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["filter[name]"]

	s.mu.Lock()
	data := make([]xpapimodel.DatarefInfo, 0, len(names))
	for _, name := range names {
		id := s.idFor(name)
		data = append(data, xpapimodel.DatarefInfo{ID: id, Name: name, IsWritable: true, ValueType: valueType(s.values[id])})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, xpapimodel.APIResponseDatarefs{Data: data})
}

func valueType(v any) string {
	switch v.(type) {
	case []float64:
		return "float_array"
	case int:
		return "int"
	}
	return "float"
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_id", "error_message": err.Error()})
		return 0, "", false
	}
	s.mu.Lock()
	name, ok := s.names[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": "dataref_not_found", "error_message": r.PathValue("id")})
		return 0, "", false
	}
	return id, name, true
}

func (s *Server) valueHandler(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	v := s.values[id]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, xpapimodel.APIResponseDatarefValue{Data: v})
}

func (s *Server) writeHandler(w http.ResponseWriter, r *http.Request) {
	id, name, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body xpapimodel.DatarefValueWrite
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "invalid_body", "error_message": err.Error()})
		return
	}
	s.mu.Lock()
	s.values[id] = body.Data
	s.writes[name] = append(s.writes[name], body.Data)
	s.mu.Unlock()
	log.Printf("mockserver: %s set to %v", name, body.Data)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("mockserver: error encoding response: %v", err)
	}
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("mockserver: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	var wmu sync.Mutex
	send := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}
	done := make(chan struct{})
	defer close(done)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("mockserver: read error: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var req xpapimodel.DatarefSubscriptionRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Printf("mockserver: invalid JSON: %v", err)
			continue
		}

		switch req.Type {
		case "dataref_subscribe_values":
			ids := make([]int, 0, len(req.Params.Datarefs))
			for _, d := range req.Params.Datarefs {
				ids = append(ids, d.Id)
			}
			if err := send(xpapimodel.SubscriptionResponse{RequestID: req.RequestID, Type: "result", Success: true}); err != nil {
				return
			}
			go s.push(ids, send, done)
		default:
			send(xpapimodel.SubscriptionResponse{
				RequestID:    req.RequestID,
				Type:         "result",
				ErrorCode:    "invalid_request",
				ErrorMessage: "unsupported request type " + req.Type,
			})
		}
	}
}

// push sends the subscribed values now and on every UpdateInterval.
func (s *Server) push(ids []int, send func(any) error, done <-chan struct{}) {
	ticker := time.NewTicker(s.UpdateInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		payload := make(map[string]any, len(ids))
		for _, id := range ids {
			if v, ok := s.values[id]; ok {
				payload[strconv.Itoa(id)] = v
			}
		}
		s.mu.Unlock()

		if err := send(xpapimodel.SubscriptionResponse{Type: "dataref_update_values", Data: payload}); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// FlyTakeOff animates a takeoff roll and climb out. After a short taxi hold
// the throttle goes to takeoff power, the aircraft lifts off at rotation
// speed and reduces power at the acceleration altitude.
func (s *Server) FlyTakeOff(ctx context.Context, step time.Duration) {
	const (
		hold         = 10.0  // s
		accel        = 2.0   // m/s²
		rotate       = 75.0  // m/s
		climbRate    = 10.0  // m/s
		accelAlt     = 450.0 // m AGL
		fieldElev    = 100.0 // m
		climbPower   = 0.8
		takeOffPower = 0.95
	)
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	elapsed, gs, agl := 0.0, 0.0, 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		dt := step.Seconds()
		elapsed += dt

		throttle := 0.0
		if elapsed > hold {
			throttle = takeOffPower
			gs += accel * dt
		}
		if gs >= rotate {
			agl += climbRate * dt
		}
		if agl >= accelAlt {
			throttle = climbPower
		}
		onGround := 0
		if agl <= 0 {
			onGround = 1
		}

		s.Set(simdata.DrefOnGround, onGround)
		s.Set(simdata.DrefGroundSpeed, gs)
		s.Set(simdata.DrefIndicatedAS, gs*simdata.MpsToKnots)
		s.Set(simdata.DrefAGL, agl)
		s.Set(simdata.DrefElevation, fieldElev+agl)
		s.Set(simdata.DrefThrottleRatio, []float64{throttle, throttle})
	}
}
