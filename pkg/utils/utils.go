// Package utils holds the JSON envelope helpers shared by the HTTP handlers.
package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmptyBody is returned by ReadJSON when the request carries no JSON at all.
var ErrEmptyBody = errors.New("request body is empty")

type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type SuccessBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// ReadJSON decodes a single JSON object and rejects unknown fields.
func ReadJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if decoder.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// DecodeStrict is ReadJSON for JSON carried inside another payload, such as a
// multipart form field.
func DecodeStrict(data string, dst any) error {
	decoder := json.NewDecoder(strings.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func ErrorResponse(w http.ResponseWriter, status int, message string, fields map[string]string) {
	_ = WriteJSON(w, status, ErrorBody{
		Error:   http.StatusText(status),
		Message: message,
		Fields:  fields,
	})
}

func SuccessResponse(w http.ResponseWriter, status int, data any) {
	_ = WriteJSON(w, status, SuccessBody{Success: true, Data: data})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
