package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vrui-vr/networkviewer/internal/apierr"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

// ParameterService exposes the shared parameter sets over HTTP. Changes
// made here carry no client ID, so the resulting notifications reach
// every connected client.
type ParameterService interface {
	SimulationParameters() protocol.SimulationParameters
	SetSimulationParameters(clientID string, p protocol.SimulationParameters) error
	RenderingParameters() protocol.RenderingParameters
	SetRenderingParameters(clientID string, p protocol.RenderingParameters) error
}

// GetSimulationParameters returns the current solver parameters as JSON.
func GetSimulationParameters(svc ParameterService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.SimulationParameters())
	}
}

// PutSimulationParameters replaces the solver parameters. Fields left
// out of the body fall back to their current values.
func PutSimulationParameters(svc ParameterService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := svc.SimulationParameters()
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
			return
		}
		if err := svc.SetSimulationParameters("", p); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("simulation", err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GetRenderingParameters returns the current rendering parameters as JSON.
func GetRenderingParameters(svc ParameterService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.RenderingParameters())
	}
}

// PutRenderingParameters replaces the rendering parameters. Fields left
// out of the body fall back to their current values.
func PutRenderingParameters(svc ParameterService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := svc.RenderingParameters()
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
			return
		}
		if err := svc.SetRenderingParameters("", p); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("rendering", err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
