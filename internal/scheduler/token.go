package scheduler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roach88/railyard/internal/ir"
)

// Token is the continuation handed from Probe to Execute. It names the hub
// and the generation the probe observed.
type Token struct {
	Hub        ir.HubID `json:"hub"`
	Generation uint64   `json:"generation"`
}

// Encode renders t as base64url (unpadded) canonical JSON.
func (t Token) Encode() (string, error) {
	data, err := ir.MarshalCanonical(ir.Attrs{
		"hub":        t.Hub,
		"generation": t.Generation,
	})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by Encode.
func DecodeToken(s string) (Token, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var t Token
	if err := dec.Decode(&t); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	if t.Hub == 0 {
		return Token{}, fmt.Errorf("decode token: missing hub")
	}
	return t, nil
}
