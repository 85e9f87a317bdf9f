package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON value into v. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{err: errors.New("empty body")}
		}
		return &badRequestError{err: err}
	}
	if dec.More() {
		return &badRequestError{err: errors.New("body must contain a single JSON value")}
	}
	return nil
}

// decodeOneOrMany accepts either a single object or an array of them.
func decodeOneOrMany[T any](w http.ResponseWriter, r *http.Request) ([]T, error) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, err
	}

	dec := func(b []byte, v any) error {
		d := json.NewDecoder(bytes.NewReader(b))
		d.DisallowUnknownFields()
		if err := d.Decode(v); err != nil {
			return &badRequestError{err: err}
		}
		return nil
	}

	if firstNonSpace(raw) == '[' {
		var many []T
		if err := dec(raw, &many); err != nil {
			return nil, err
		}
		if len(many) == 0 {
			return nil, &badRequestError{err: errors.New("at least one element is required")}
		}
		return many, nil
	}
	var one T
	if err := dec(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
