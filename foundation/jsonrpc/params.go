package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Bind decodes the positional parameters of the call into the targets. The
// first required targets must be present, the rest are optional and keep
// their zero value when absent.
func (c Call) Bind(required int, targets ...any) error {
	params, err := c.positional()
	if err != nil {
		return err
	}

	if len(params) > len(targets) {
		return InvalidParams("too many arguments, want at most %d", len(targets))
	}

	if len(params) < required {
		return InvalidParams("missing value for required argument %d", len(params))
	}

	for i, raw := range params {
		if err := json.Unmarshal(raw, targets[i]); err != nil {
			return InvalidParams("invalid argument %d: %s", i, err)
		}
	}

	return nil
}

// RawParams returns the positional parameters without decoding them.
func (c Call) RawParams() ([]json.RawMessage, error) {
	return c.positional()
}

func (c Call) positional() ([]json.RawMessage, error) {
	raw := bytes.TrimSpace(c.Params)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return nil, nil
	}

	if raw[0] != '[' {
		return nil, InvalidParams("non-array args")
	}

	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, InvalidParams("%s", err)
	}

	return params, nil
}
