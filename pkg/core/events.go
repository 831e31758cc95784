package core

import "time"

// ControlEvent is one control frame applied from a peer.
type ControlEvent struct {
	PeerID string    `json:"peerId"`
	Time   time.Time `json:"time"`
	Value1 float32   `json:"value1"`
	Value2 float32   `json:"value2"`
}

// PeerEvent records a peer connecting or disconnecting.
type PeerEvent struct {
	PeerID     string    `json:"peerId"`
	RemoteAddr string    `json:"remoteAddr"`
	Connected  bool      `json:"connected"`
	Time       time.Time `json:"time"`
}
