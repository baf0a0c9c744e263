package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"printdesign-server/core"
	"printdesign-server/export/geometry"
	"printdesign-server/export/persist"
	"printdesign-server/export/render"
)

const (
	MsgZoneNotDetected = "print area not detected, exported full canvas instead"
	MsgFileTooLarge    = "export failed: file too large"
	MsgSessionExpired  = "export failed: session expired, please log in again"
)

// StageError says where a view export stopped and why. For rendering
// failures Strategies lists every attempt.
type StageError struct {
	Stage      State
	Code       core.ErrorCode
	Strategies []render.StrategyError
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Code, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is the text shown to the designer.
func (e *StageError) Message() string {
	switch e.Code {
	case core.CodePayloadTooLarge:
		return MsgFileTooLarge
	case core.CodeAuthExpired:
		return MsgSessionExpired
	}
	return e.Error()
}

type strategyReport struct {
	Strategy render.Strategy `json:"strategy"`
	Error    string          `json:"error"`
}

func (e *StageError) MarshalJSON() ([]byte, error) {
	attempts := make([]strategyReport, 0, len(e.Strategies))
	for _, s := range e.Strategies {
		attempts = append(attempts, strategyReport{Strategy: s.Strategy, Error: s.Err.Error()})
	}
	return json.Marshal(struct {
		Stage      State            `json:"stage"`
		Code       core.ErrorCode   `json:"code"`
		Message    string           `json:"message"`
		Strategies []strategyReport `json:"strategies,omitempty"`
	}{e.Stage, e.Code, e.Message(), attempts})
}

func renderError(err error) *StageError {
	se := &StageError{Stage: Rendering, Code: core.CodeInternal, Err: err}
	var all *render.AllStrategiesFailedError
	switch {
	case errors.As(err, &all):
		se.Code = core.CodeAllStrategiesFailed
		se.Strategies = all.Attempts
	case errors.Is(err, geometry.ErrInvalidMultiplier):
		se.Code = core.CodeInvalidMultiplier
	}
	return se
}

func persistError(err error) *StageError {
	se := &StageError{Stage: Persisting, Code: core.CodeNetworkUnavailable, Err: err}
	if code, ok := persist.CodeOf(err); ok {
		se.Code = code
	}
	return se
}
