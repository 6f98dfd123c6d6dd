package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// User is the profile record returned by the identity endpoints. The bearer
// token is deliberately not part of the record; it lives in the token store
// and nowhere else.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

// AuthResult is the response body of the login and register endpoints.
type AuthResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// Post mirrors the record shape the backend produces for post listings.
type Post struct {
	ID         string    `json:"_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// UnmarshalJSON accepts both plain JSON and the Mongo extended-JSON forms the
// backend emits: `_id` arrives as {"$oid": "<hex>"} and `created_at` as
// {"$date": {"$numberLong": "<ms>"}}. The id is normalized to the bare hex
// string so callers compare and build paths with it directly.
func (p *Post) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID         json.RawMessage `json:"_id"`
		Title      string          `json:"title"`
		Content    string          `json:"content"`
		AuthorName string          `json:"author_name"`
		CreatedAt  json.RawMessage `json:"created_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := decodeObjectID(aux.ID)
	if err != nil {
		return err
	}
	createdAt, err := decodeDate(aux.CreatedAt)
	if err != nil {
		return err
	}

	p.ID = id
	p.Title = aux.Title
	p.Content = aux.Content
	p.AuthorName = aux.AuthorName
	p.CreatedAt = createdAt
	return nil
}

func decodeObjectID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil
	}

	var extended struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &extended); err == nil && extended.OID != "" {
		return extended.OID, nil
	}

	return "", fmt.Errorf("unrecognized _id value %s", raw)
}

func decodeDate(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, nil
	}

	var plain time.Time
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil
	}

	var extended struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(raw, &extended); err != nil || len(extended.Date) == 0 {
		return time.Time{}, fmt.Errorf("unrecognized created_at value %s", raw)
	}

	// $date carries either an ISO string or {"$numberLong": "<ms>"}.
	var iso time.Time
	if err := json.Unmarshal(extended.Date, &iso); err == nil {
		return iso, nil
	}

	var long struct {
		NumberLong string `json:"$numberLong"`
	}
	if err := json.Unmarshal(extended.Date, &long); err == nil && long.NumberLong != "" {
		ms, err := strconv.ParseInt(long.NumberLong, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized created_at millis %q", long.NumberLong)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized created_at value %s", raw)
}

// CreatePostRequest is the payload for POST /posts.
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdatePostRequest is the partial payload for PATCH /posts/:id. Nil fields
// are left untouched by the backend.
type UpdatePostRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e errorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
