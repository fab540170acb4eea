package main

import (
	"time"

	"github.com/google/uuid"
)

// ListItem is a single entry of the list.
type ListItem struct {
	ID           uuid.UUID `json:"id"`
	Text         string    `json:"text"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
}

// OperationResult wraps the outcome of a single-item service call.
type OperationResult struct {
	Found bool
	Item  ListItem
}

var notFound = OperationResult{}

func found(item ListItem) OperationResult {
	return OperationResult{Found: true, Item: item}
}

// BulkResult wraps the outcome of a service call over several items.
type BulkResult struct {
	Found bool
	Items []ListItem
}

// ItemPayload is the body accepted by POST /items, PUT /items/{id} and each
// element of PUT /items. The id is kept as text so that an empty id and a
// malformed id can be told apart during validation.
type ItemPayload struct {
	ID           string     `json:"id" validate:"omitempty,identifier"`
	Text         string     `json:"text" validate:"notblank"`
	Created      *time.Time `json:"created,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
}

// parsedID returns the payload id, or uuid.Nil when the payload carries none.
func (p *ItemPayload) parsedID() uuid.UUID {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
