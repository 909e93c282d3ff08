// Package resource holds the users/posts REST clients and their wire types.
package resource

import (
	"strings"
	"time"
)

type User struct {
	ID       string `json:"id" msgpack:"id" cbor:"id"`
	Name     string `json:"name" msgpack:"name" cbor:"name"`
	Username string `json:"username" msgpack:"username" cbor:"username"`
	Email    string `json:"email" msgpack:"email" cbor:"email"`
	Phone    string `json:"phone" msgpack:"phone" cbor:"phone"`
	Street   string `json:"street,omitempty" msgpack:"street,omitempty" cbor:"street,omitempty"`
	City     string `json:"city,omitempty" msgpack:"city,omitempty" cbor:"city,omitempty"`
	State    string `json:"state,omitempty" msgpack:"state,omitempty" cbor:"state,omitempty"`
	Zipcode  string `json:"zipcode,omitempty" msgpack:"zipcode,omitempty" cbor:"zipcode,omitempty"`
	Address  string `json:"address,omitempty" msgpack:"address,omitempty" cbor:"address,omitempty"`
}

// FormattedAddress joins the non-empty address parts as
// "street, state, city, zipcode".
func (u User) FormattedAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{u.Street, u.State, u.City, u.Zipcode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Post struct {
	ID        string `json:"id" msgpack:"id" cbor:"id"`
	UserID    string `json:"user_id" msgpack:"user_id" cbor:"user_id"`
	Title     string `json:"title" msgpack:"title" cbor:"title"`
	Body      string `json:"body" msgpack:"body" cbor:"body"`
	CreatedAt string `json:"created_at" msgpack:"created_at" cbor:"created_at"`
}

// Created parses CreatedAt as RFC 3339.
func (p Post) Created() (time.Time, error) {
	return time.Parse(time.RFC3339, p.CreatedAt)
}

// CreatePostRequest is the POST /posts body. Field names match the API.
type CreatePostRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"userId"`
}
