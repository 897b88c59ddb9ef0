// Package envelope implements the wire codec for the bridge channel. Calls,
// results, and events all travel as frames whose payload is a flat mapping
// of string keys to tagged variant values (string, number, bool, null, list,
// nested mapping), carried as a structpb.Struct.
package envelope

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quartzpay/nativebridge/internal/bridgeerr"
)

// Kind discriminates the three frame shapes multiplexed on the channel.
type Kind string

const (
	KindCall   Kind = "call"
	KindResult Kind = "result"
	KindEvent  Kind = "event"
)

// Call names carried on the channel (front end to native).
const (
	MethodInitCardView    = "initCardView"
	MethodValidateCard    = "validateCard"
	MethodTokenizeCard    = "tokenizeCard"
	MethodGetSessionData  = "getSessionData"
	MethodInitGooglePay   = "initGooglePay"
	MethodCheckGooglePay  = "checkGooglePayAvailability"
	MethodLaunchGooglePay = "launchGooglePaySheet"
	MethodDispose         = "dispose"
)

// Event kinds carried on the channel (native to front end).
const (
	EventCardTokenized    = "cardTokenized"
	EventPaymentSuccess   = "paymentSuccess"
	EventPaymentError     = "paymentError"
	EventSessionDataReady = "sessionDataReady"
)

// Provisional acknowledgement statuses.
const (
	StatusProcessing = "processing"
	StatusLaunched   = "launched"
)

// Frame is one unit on the channel.
type Frame struct {
	Kind     Kind
	Name     string // method name for calls/results, event kind for events
	CallID   string
	Accepted bool // marks a provisional result; the authoritative outcome follows as an event
	Payload  *structpb.Struct
	Err      *bridgeerr.Error // set on failed results
}

// NewCall builds a call frame from a payload mapping.
func NewCall(id, method string, payload map[string]any) (Frame, error) {
	s, err := toStruct(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindCall, Name: method, CallID: id, Payload: s}, nil
}

// NewResult builds a terminal success result for the given call.
func NewResult(callID, method string, payload map[string]any) (Frame, error) {
	s, err := toStruct(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindResult, Name: method, CallID: callID, Payload: s}, nil
}

// NewAcceptedResult builds a provisional acknowledgement result carrying a
// status field. The authoritative outcome arrives later as an event.
func NewAcceptedResult(callID, method, status string) Frame {
	s, _ := toStruct(map[string]any{"status": status})
	return Frame{Kind: KindResult, Name: method, CallID: callID, Accepted: true, Payload: s}
}

// NewErrorResult builds a failed result for the given call. err is mapped to
// a (code, message) pair; no raw fault crosses the channel.
func NewErrorResult(callID, method string, err error) Frame {
	return Frame{Kind: KindResult, Name: method, CallID: callID, Err: bridgeerr.From(err)}
}

// NewEvent builds an event frame from a payload mapping.
func NewEvent(name string, payload map[string]any) (Frame, error) {
	s, err := toStruct(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: KindEvent, Name: name, Payload: s}, nil
}

func toStruct(payload map[string]any) (*structpb.Struct, error) {
	if payload == nil {
		return nil, nil
	}
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, bridgeerr.Decode("unsupported payload value: %v", err)
	}
	return s, nil
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireFrame struct {
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	CallID   string          `json:"callId,omitempty"`
	Accepted bool            `json:"accepted,omitempty"`
	Error    *wireError      `json:"error,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Marshal encodes a frame for transmission.
func Marshal(f Frame) ([]byte, error) {
	w := wireFrame{
		Kind:     string(f.Kind),
		Name:     f.Name,
		CallID:   f.CallID,
		Accepted: f.Accepted,
	}
	if f.Err != nil {
		w.Error = &wireError{Code: string(f.Err.Code), Message: f.Err.Message}
	}
	if f.Payload != nil {
		raw, err := protojson.Marshal(f.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal frame payload: %w", err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// Unmarshal decodes a frame received from the channel. Malformed frames fail
// with a decode error rather than a runtime cast failure downstream.
func Unmarshal(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, bridgeerr.Decode("malformed frame: %v", err)
	}
	switch Kind(w.Kind) {
	case KindCall, KindResult, KindEvent:
	default:
		return Frame{}, bridgeerr.Decode("unknown frame kind %q", w.Kind)
	}
	f := Frame{
		Kind:     Kind(w.Kind),
		Name:     w.Name,
		CallID:   w.CallID,
		Accepted: w.Accepted,
	}
	if w.Error != nil {
		f.Err = &bridgeerr.Error{Code: bridgeerr.Code(w.Error.Code), Message: w.Error.Message}
	}
	if len(w.Payload) > 0 {
		s := &structpb.Struct{}
		if err := protojson.Unmarshal(w.Payload, s); err != nil {
			return Frame{}, bridgeerr.Decode("malformed frame payload: %v", err)
		}
		f.Payload = s
	}
	return f, nil
}
