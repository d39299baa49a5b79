package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/fundforge/fundforge/internal/domain"
)

func init() {
	// TimeSlice carries domain.BaseData as an interface; gob needs every
	// concrete variant registered before it will encode/decode one.
	gob.Register(&domain.Tick{})
	gob.Register(&domain.Quote{})
	gob.Register(&domain.Candle{})
	gob.Register(&domain.QuoteBar{})
	gob.Register(&domain.Fundamental{})
}

// MarshalRequest serializes a DataServerRequest for one wire frame.
func MarshalRequest(req DataServerRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return nil, fmt.Errorf("codec: marshal request: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRequest decodes one wire frame into a DataServerRequest.
func UnmarshalRequest(payload []byte) (DataServerRequest, error) {
	var req DataServerRequest
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&req); err != nil {
		return DataServerRequest{}, fmt.Errorf("codec: unmarshal request: %w", err)
	}
	return req, nil
}

// MarshalResponse serializes a DataServerResponse for one wire frame.
func MarshalResponse(resp DataServerResponse) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		return nil, fmt.Errorf("codec: marshal response: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalResponse decodes one wire frame into a DataServerResponse.
func UnmarshalResponse(payload []byte) (DataServerResponse, error) {
	var resp DataServerResponse
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&resp); err != nil {
		return DataServerResponse{}, fmt.Errorf("codec: unmarshal response: %w", err)
	}
	return resp, nil
}
