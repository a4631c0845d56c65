package web

import (
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps the size of a request body the framework will read.
const maxBodyBytes = 5 * 1024 * 1024

// ReadBody reads the full request body, bounded by maxBodyBytes.
func ReadBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
	}

	return body, nil
}
