package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type responseKind int

const (
	responseEmpty responseKind = iota
	responseAddresses
	responseEmbedded
)

func (k responseKind) String() string {
	switch k {
	case responseAddresses:
		return "addresses"
	case responseEmbedded:
		return "embedded"
	default:
		return "empty"
	}
}

// lookupResponse is the part of the portlet payload we read. Everything else
// the portal sends is ignored.
type lookupResponse struct {
	Direcciones []struct {
		CodPostal json.RawMessage `json:"codPostal"`
	} `json:"direcciones"`
	CurrentDir json.RawMessage `json:"currentDir"`
}

type decodedResponse struct {
	kind responseKind
	code string
}

// decodeResponse classifies a lookup body. The portal sometimes returns the
// object serialized inside a JSON string, and currentDir is itself a JSON
// document encoded as a string.
func decodeResponse(body []byte) (decodedResponse, error) {
	raw, err := unwrapString(bytes.TrimSpace(body))
	if err != nil {
		return decodedResponse{}, fmt.Errorf("decode lookup body: %w", err)
	}
	if len(raw) == 0 {
		return decodedResponse{kind: responseEmpty}, nil
	}

	var resp lookupResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return decodedResponse{}, fmt.Errorf("decode lookup body: %w", err)
	}
	if len(resp.Direcciones) > 0 {
		if code := codeFrom(resp.Direcciones[0].CodPostal); code != "" {
			return decodedResponse{kind: responseAddresses, code: code}, nil
		}
	}

	current, err := unwrapString(bytes.TrimSpace(resp.CurrentDir))
	if err != nil {
		return decodedResponse{}, fmt.Errorf("decode currentDir: %w", err)
	}
	if len(current) > 0 && !bytes.Equal(current, []byte("null")) {
		var dir struct {
			CodPostal json.RawMessage `json:"codPostal"`
		}
		if err := json.Unmarshal(current, &dir); err != nil {
			return decodedResponse{}, fmt.Errorf("decode currentDir: %w", err)
		}
		if code := codeFrom(dir.CodPostal); code != "" {
			return decodedResponse{kind: responseEmbedded, code: code}, nil
		}
	}
	return decodedResponse{kind: responseEmpty}, nil
}

// unwrapString returns the contents of a JSON string literal, or raw as is.
func unwrapString(raw []byte) ([]byte, error) {
	if len(raw) == 0 || raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return bytes.TrimSpace([]byte(s)), nil
}

// codeFrom accepts codPostal as either a string or a number.
func codeFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
