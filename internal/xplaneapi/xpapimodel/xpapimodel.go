// Package xpapimodel holds the JSON shapes of the X-Plane 12 Web API.
package xpapimodel

type APIResponseDatarefs struct {
	Data []DatarefInfo `json:"data"`
}

type APIResponseDatarefValue struct {
	Data any `json:"data"`
}

type DatarefInfo struct {
	ID         int    `json:"id"`
	IsWritable bool   `json:"is_writable"`
	Name       string `json:"name"`
	ValueType  string `json:"value_type"`
}

// Dataref is a dataref known to the connector together with its last value.
type Dataref struct {
	Name            string
	APIInfo         DatarefInfo
	Value           any
	DecodedDataType string
}

// DatarefValueWrite is the PATCH body used to set a dataref value.
type DatarefValueWrite struct {
	Data any `json:"data"`
}

type DatarefSubscriptionRequest struct {
	RequestID int64         `json:"req_id"`
	Type      string        `json:"type"`
	Params    ParamDatarefs `json:"params"`
}

type ParamDatarefs struct {
	Datarefs []SubDataref `json:"datarefs"`
}

type SubDataref struct {
	Id int `json:"id"`
}

// SubscriptionResponse is any message received on the websocket. Failed
// requests carry the error fields.
type SubscriptionResponse struct {
	RequestID    int64          `json:"req_id"`
	Type         string         `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
	Success      bool           `json:"success,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
