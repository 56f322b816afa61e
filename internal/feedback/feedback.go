// SPDX-License-Identifier: LGPL-2.1-only

// Package feedback builds the DDI feedback/attribute payloads sent back to
// the hawkBit server, the Go counterpart of json_build_status in
// hawkbit-client.c.
package feedback

import (
	"encoding/json"
	"time"
)

// Finished values for status.result.finished.
const (
	FinishedNone    = "none"
	FinishedSuccess = "success"
	FinishedFailure = "failure"
)

// Execution values for status.execution.
const (
	ExecutionProceeding = "proceeding"
	ExecutionClosed     = "closed"
	ExecutionRejected   = "rejected"
)

type result struct {
	Finished string `json:"finished"`
}

type status struct {
	Result    result   `json:"result"`
	Execution string   `json:"execution"`
	Details   []string `json:"details,omitempty"`
}

// Payload is the JSON body posted to a deploymentBase/cancelAction
// feedback endpoint or put to configData.
type Payload struct {
	ID     string            `json:"id,omitempty"`
	Time   string            `json:"time"`
	Status status            `json:"status"`
	Data   map[string]string `json:"data,omitempty"`
}

// timeNow is overridable by tests.
var timeNow = time.Now

func timestamp() string {
	return timeNow().UTC().Format("20060102T150405")
}

// Build constructs a feedback payload. detail is optional; pass "" to omit
// status.details entirely (a single detail line is all the protocol ever
// carries — spec.md §4.2).
func Build(actionID, finished, execution, detail string) Payload {
	p := Payload{
		ID:   actionID,
		Time: timestamp(),
		Status: status{
			Result:    result{Finished: finished},
			Execution: execution,
		},
	}
	if detail != "" {
		p.Status.Details = []string{detail}
	}
	return p
}

// BuildIdentify constructs the configData identification payload carrying
// the device attribute map.
func BuildIdentify(attrs map[string]string) Payload {
	p := Build("", FinishedSuccess, ExecutionClosed, "")
	p.Data = attrs
	return p
}

// Marshal serializes the payload for the REST client.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Progress builds a none/proceeding progress feedback payload with a
// single detail line, e.g. "Download complete. 1.23 MB/s".
func Progress(actionID, detail string) Payload {
	return Build(actionID, FinishedNone, ExecutionProceeding, detail)
}

// Success builds a success/closed terminal feedback payload.
func Success(actionID, detail string) Payload {
	return Build(actionID, FinishedSuccess, ExecutionClosed, detail)
}

// Failure builds a failure/closed terminal feedback payload.
func Failure(actionID, detail string) Payload {
	return Build(actionID, FinishedFailure, ExecutionClosed, detail)
}

// CancelAcknowledged builds a success/closed cancel-feedback payload, sent
// when the action was canceled, or the stopId was unknown/not in progress.
func CancelAcknowledged(actionID, detail string) Payload {
	return Build(actionID, FinishedSuccess, ExecutionClosed, detail)
}

// CancelRejected builds a success/rejected cancel-feedback payload, sent
// when installation had already started.
func CancelRejected(actionID, detail string) Payload {
	return Build(actionID, FinishedSuccess, ExecutionRejected, detail)
}
