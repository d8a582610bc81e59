package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/window"
)

// ErrUnsupportedRequest is returned for inbound messages that match no known shape
var ErrUnsupportedRequest = errors.New("unsupported request")

// Request is a decoded unit of inbound work
type Request interface {
	// TableName is the target table, empty for the default
	TableName() string
}

// BroadcastRequest fans out one message per configured geography of Table
type BroadcastRequest struct {
	Table string
}

// TableName implements Request
func (r BroadcastRequest) TableName() string { return r.Table }

// HarvestRequest runs one table for one geography and optional explicit range
type HarvestRequest struct {
	Table string
	Geo   *string
	Start *time.Time
	End   *time.Time
}

// TableName implements Request
func (r HarvestRequest) TableName() string { return r.Table }

type envelope struct {
	Message *struct {
		// Data is base64 in JSON, decoded by encoding/json
		Data []byte `json:"data"`
	} `json:"message"`
}

// DecodeEnvelope unwraps a push envelope {"message":{"data":"<base64 JSON>"}}
func DecodeEnvelope(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", ErrUnsupportedRequest, err)
	}

	if env.Message == nil || len(env.Message.Data) == 0 {
		return nil, fmt.Errorf("%w: envelope has no message data", ErrUnsupportedRequest)
	}

	return env.Message.Data, nil
}

type message struct {
	Broadcast *string `json:"broadcast"`
	Table     string  `json:"table"`
	Geo       *string `json:"geo"`
	Start     *string `json:"start"`
	End       *string `json:"end"`
}

// ParseRequest decodes a message. {"broadcast": t} is a broadcast; a message with geo,
// or with both start and end, is a harvest. table selects the table, else defaultTable.
func ParseRequest(raw []byte, defaultTable string) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var msg message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRequest, err)
	}

	table := msg.Table
	if table == "" {
		table = defaultTable
	}

	if msg.Broadcast != nil {
		if *msg.Broadcast == "" {
			return nil, fmt.Errorf("%w: broadcast needs a table name", ErrUnsupportedRequest)
		}

		return BroadcastRequest{Table: *msg.Broadcast}, nil
	}

	if (msg.Start == nil) != (msg.End == nil) {
		return nil, fmt.Errorf("%w: start and end must be given together", ErrUnsupportedRequest)
	}

	if msg.Geo == nil && msg.Start == nil {
		return nil, fmt.Errorf("%w: expected broadcast, geo or start/end", ErrUnsupportedRequest)
	}

	req := HarvestRequest{Table: table, Geo: msg.Geo}

	if msg.Start != nil {
		start, err := window.ParseDate(*msg.Start)
		if err != nil {
			return nil, err
		}

		end, err := window.ParseDate(*msg.End)
		if err != nil {
			return nil, err
		}

		req.Start = &start
		req.End = &end
	}

	return req, nil
}
