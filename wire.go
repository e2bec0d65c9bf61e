// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

// FlowControl is the two-valued control carried by ControlStream.
type FlowControl int

const (
	StartStream FlowControl = iota
	StopStream
)

// ServerToProviderKind tags which case of ServerToProvider is populated.
type ServerToProviderKind int

const (
	KindDescribe ServerToProviderKind = iota
	KindControlStream
	KindGetSnapshot
	KindGetFlow
)

// ServerToProvider is the envelope payload a remote server sends inward.
type ServerToProvider struct {
	Kind ServerToProviderKind

	// Describe
	Active bool

	// ControlStream / GetSnapshot
	Path    Path
	Control FlowControl
}

func DescribeMessage(active bool) ServerToProvider {
	return ServerToProvider{Kind: KindDescribe, Active: active}
}

func ControlStreamMessage(path Path, control FlowControl) ServerToProvider {
	return ServerToProvider{Kind: KindControlStream, Path: path, Control: control}
}

func GetSnapshotMessage(path Path) ServerToProvider {
	return ServerToProvider{Kind: KindGetSnapshot, Path: path}
}

func GetFlowMessage(path Path) ServerToProvider {
	return ServerToProvider{Kind: KindGetFlow, Path: path}
}

func (k ServerToProviderKind) String() string {
	switch k {
	case KindDescribe:
		return "describe"
	case KindControlStream:
		return "control_stream"
	case KindGetSnapshot:
		return "get_snapshot"
	case KindGetFlow:
		return "get_flow"
	default:
		return "unknown"
	}
}

// ProviderToServerKind tags which case of ProviderToServer is populated.
type ProviderToServerKind int

const (
	KindDeclare ProviderToServerKind = iota
	KindDescription
	KindEntries
	KindState
	KindData
	KindEndStream
	KindError
)

// EntryType classifies a node in the Declare/Entries directory handshake.
type EntryType struct {
	IsStream   bool
	StreamType StreamType
}

// ProviderToServer is the envelope payload this provider sends outward.
type ProviderToServer struct {
	Kind ProviderToServerKind

	EntryID EntryId                  // Declare
	List    []Description            // Description
	Entries map[EntryId]EntryType    // Entries
	State   PackedState               // State
	Delta   PackedDelta               // Data
	Reason  string                    // Error
}

func DeclareMessage(id EntryId) ProviderToServer {
	return ProviderToServer{Kind: KindDeclare, EntryID: id}
}

func DescriptionMessage(list []Description) ProviderToServer {
	return ProviderToServer{Kind: KindDescription, List: list}
}

func EntriesMessage(entries map[EntryId]EntryType) ProviderToServer {
	return ProviderToServer{Kind: KindEntries, Entries: entries}
}

func StateMessage(state PackedState) ProviderToServer {
	return ProviderToServer{Kind: KindState, State: state}
}

func DataMessage(delta PackedDelta) ProviderToServer {
	return ProviderToServer{Kind: KindData, Delta: delta}
}

func EndStreamMessage() ProviderToServer {
	return ProviderToServer{Kind: KindEndStream}
}

func ErrorMessage(reason string) ProviderToServer {
	return ProviderToServer{Kind: KindError, Reason: reason}
}

// Envelope wraps a ServerToProvider request with the subscriber identity
// that sent it, exactly as the inbound side of the binary protocol does.
type Envelope struct {
	ID      ProviderReqId
	Payload ServerToProvider
}

// WideEnvelope wraps an outbound ProviderToServer response with the
// Direction that targets it.
type WideEnvelope struct {
	Direction Direction
	Payload   ProviderToServer
}

// RecorderRequestKind tags which case of RecorderRequest is populated.
type RecorderRequestKind int

const (
	KindControlStreamRequest RecorderRequestKind = iota
	KindGetSnapshotAction
	KindGetFlowAction
	KindDoEventAction
)

// RecorderRequest is the message shape the Worker routes to a Recorder
// once it has resolved the target Path to an address.
type RecorderRequest struct {
	Kind    RecorderRequestKind
	Control FlowControl  // KindControlStreamRequest
	Event   PackedAction // KindDoEventAction
}

func ControlStreamRequest(control FlowControl) RecorderRequest {
	return RecorderRequest{Kind: KindControlStreamRequest, Control: control}
}

func GetSnapshotRequest() RecorderRequest {
	return RecorderRequest{Kind: KindGetSnapshotAction}
}

func GetFlowRequest() RecorderRequest {
	return RecorderRequest{Kind: KindGetFlowAction}
}

func DoEventRequest(packed PackedAction) RecorderRequest {
	return RecorderRequest{Kind: KindDoEventAction, Event: packed}
}
