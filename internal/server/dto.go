package server

import (
	"encoding/json"

	"projectdesk/internal/events"
)

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  *int64         `json:"project_id,omitempty"`
	Generation uint64         `json:"generation"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type EventListResponse struct {
	Items []EventResponse `json:"items"`
}

func eventResponse(e events.Event) EventResponse {
	var payload map[string]any
	_ = json.Unmarshal([]byte(e.Payload), &payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		Generation: e.Generation,
		From:       e.From,
		To:         e.To,
		Payload:    payload,
	}
}

func mapEvents(items []events.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}
