package api

import (
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/ctf"
	"github.com/ssargent/bitctf/pkg/registry"
	"github.com/ssargent/bitctf/pkg/schema"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// DecodeRequest is the JSON body of a decode call. ByteOrder and BitOffset
// fall back to the server defaults.
type DecodeRequest struct {
	PayloadHex string `json:"payload_hex"`
	ByteOrder  string `json:"byte_order,omitempty"`
	BitOffset  int    `json:"bit_offset,omitempty"`
}

// DecodeResponse carries a decoded record
type DecodeResponse struct {
	Schema    string      `json:"schema"`
	ByteOrder string      `json:"byte_order"`
	Bits      int         `json:"bits"`
	Value     interface{} `json:"value"`
	Text      string      `json:"text"`
	Timestamp *time.Time  `json:"captured_at,omitempty"`
}

// EncodeRequest is the JSON body of an encode call
type EncodeRequest struct {
	Value interface{} `json:"value"`
}

// EncodeResponse carries an encoded payload
type EncodeResponse struct {
	Schema     string `json:"schema"`
	PayloadHex string `json:"payload_hex"`
	Bytes      int    `json:"bytes"`
}

// SchemaResponse describes a stored schema
type SchemaResponse struct {
	registry.Summary
	Declaration string               `json:"declaration"`
	MaximumSize int                  `json:"maximum_size_bits"`
	Headers     []schema.HeaderMatch `json:"event_headers"`
	Document    string               `json:"document,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port             int
	Bind             string
	APIKey           string
	MaxPayloadSize   int // bytes accepted in a request body
	DefaultByteOrder bitbuf.ByteOrder
}

// ISchemaStore defines the schema registry operations used by the handlers
type ISchemaStore interface {
	Put(data []byte) (ksuid.KSUID, error)
	Update(id ksuid.KSUID, data []byte) error
	Get(id ksuid.KSUID) (*registry.Entry, error)
	Resolve(ref string) (ksuid.KSUID, error)
	Declaration(id ksuid.KSUID) (ctf.Declaration, error)
	Delete(id ksuid.KSUID) error
	List() ([]registry.Summary, error)
}
