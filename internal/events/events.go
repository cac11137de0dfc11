// Package events publishes catalog change notifications to RabbitMQ.
package events

import (
	"context"
	"time"
)

// Type names a catalog change.
type Type string

const (
	FilmCreated Type = "film.created"
	FilmUpdated Type = "film.updated"
	FilmDeleted Type = "film.deleted"
)

// Change is the JSON body of one published message.
type Change struct {
	Type   Type      `json:"type"`
	FilmID int64     `json:"film_id"`
	Title  string    `json:"title,omitempty"`
	Field  string    `json:"field,omitempty"`
	UserID int64     `json:"user_id,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher delivers changes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
	Close() error
}

// Nop discards every change. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

func (Nop) Close() error { return nil }
