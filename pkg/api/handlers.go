package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/codec"
	"github.com/ssargent/bitctf/pkg/registry"
	"github.com/ssargent/bitctf/pkg/schema"
)

// Server holds the API server state
type Server struct {
	store   ISchemaStore
	config  ServerConfig
	metrics *Metrics
	logger  logrus.FieldLogger
	codec   *codec.SampleCodec
}

// NewServer creates a new API server
func NewServer(store ISchemaStore, config ServerConfig, metrics *Metrics, logger logrus.FieldLogger) *Server {
	if config.MaxPayloadSize <= 0 {
		config.MaxPayloadSize = 1 << 20
	}
	if !config.DefaultByteOrder.Valid() {
		config.DefaultByteOrder = bitbuf.BigEndian
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		store:   store,
		config:  config,
		metrics: metrics,
		logger:  logger,
		codec:   codec.NewSampleCodec(),
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.store.List()
	if err != nil {
		s.metrics.RecordHealthCheck(false)
		entryFrom(r).WithError(err).Error("health check failed")
		sendError(w, "Schema registry unavailable", http.StatusServiceUnavailable)
		return
	}
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]interface{}{
		"status":  "healthy",
		"schemas": len(schemas),
		"time":    time.Now().UTC(),
	})
}

// handleCreateSchema stores the YAML document in the request body
func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	id, err := s.store.Put(body)
	s.metrics.RecordSchemaOperation("put", err == nil)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	resp, err := s.describe(id, false)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	entryFrom(r).WithFields(logrus.Fields{"schema_id": id.String(), "schema": resp.Name}).Info("schema stored")
	sendCreated(w, resp)
}

// handleUpdateSchema replaces a stored document
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	err := s.store.Update(id, body)
	s.metrics.RecordSchemaOperation("update", err == nil)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	resp, err := s.describe(id, false)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendSuccess(w, resp)
}

// handleGetSchema returns a stored schema with its document
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	resp, err := s.describe(id, true)
	s.metrics.RecordSchemaOperation("get", err == nil)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendSuccess(w, resp)
}

// handleListSchemas lists stored schemas
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.store.List()
	s.metrics.RecordSchemaOperation("list", err == nil)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	if schemas == nil {
		schemas = []registry.Summary{}
	}
	sendSuccess(w, map[string]interface{}{
		"schemas": schemas,
		"count":   len(schemas),
	})
}

// handleDeleteSchema removes a stored schema
func (s *Server) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	err := s.store.Delete(id)
	s.metrics.RecordSchemaOperation("delete", err == nil)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	sendSuccess(w, map[string]string{
		"id":      id.String(),
		"message": "Schema deleted successfully",
	})
}

// handleClassify reports the event headers found in a schema
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	decl, err := s.store.Declaration(id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	headers := schema.FindEventHeaders(decl)
	if headers == nil {
		headers = []schema.HeaderMatch{}
	}
	sendSuccess(w, map[string]interface{}{
		"id":            id.String(),
		"event_headers": headers,
	})
}

// handleDecode decodes one record. The body is either a JSON DecodeRequest or,
// with Content-Type application/octet-stream, an encoded sample.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	decl, err := s.store.Declaration(id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	sample, err := s.parseSample(r, body)
	if err != nil {
		s.metrics.RecordDecode(nil, 0, 0, err)
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	def, bits, err := sample.Decode(decl, nil)
	s.metrics.RecordDecode(def, bits, time.Since(start), err)
	if err != nil {
		entryFrom(r).WithError(err).WithField("schema_id", id.String()).Debug("decode failed")
		sendError(w, "Failed to decode payload: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	resp := DecodeResponse{
		Schema:    id.String(),
		ByteOrder: sample.ByteOrder().String(),
		Bits:      bits,
		Value:     schema.Export(def),
		Text:      def.String(),
	}
	if isOctetStream(r) {
		t := sample.Time().UTC()
		resp.Timestamp = &t
	}
	sendSuccess(w, resp)
}

// handleEncode builds a payload from a JSON value
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolve(w, r)
	if !ok {
		return
	}
	decl, err := s.store.Declaration(id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req EncodeRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	payload, err := codec.Encode(decl, req.Value)
	s.metrics.RecordEncode(err == nil)
	if err != nil {
		sendError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	sendSuccess(w, EncodeResponse{
		Schema:     id.String(),
		PayloadHex: hex.EncodeToString(payload),
		Bytes:      len(payload),
	})
}

func (s *Server) parseSample(r *http.Request, body []byte) (*codec.Sample, error) {
	if isOctetStream(r) {
		sample, err := s.codec.Decode(body)
		if err != nil {
			return nil, err
		}
		if err := sample.Validate(); err != nil {
			return nil, err
		}
		return sample, nil
	}

	var req DecodeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(req.PayloadHex, " ", ""))
	if err != nil {
		return nil, errors.Wrap(err, "invalid payload_hex")
	}
	order := s.config.DefaultByteOrder
	if req.ByteOrder != "" {
		if order, err = bitbuf.ParseByteOrder(req.ByteOrder); err != nil {
			return nil, err
		}
	}
	return codec.NewSample(order, req.BitOffset, payload)
}

// resolve maps the {id} URL parameter, an id or a name, to a schema id
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	ref := chi.URLParam(r, "id")
	if ref == "" {
		sendError(w, "Schema id is required", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	id, err := s.store.Resolve(ref)
	if err != nil {
		s.sendStoreError(w, r, err)
		return ksuid.Nil, false
	}
	return id, true
}

// readBody reads at most MaxPayloadSize bytes
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.config.MaxPayloadSize)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) describe(id ksuid.KSUID, withDocument bool) (*SchemaResponse, error) {
	entry, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	decl, err := s.store.Declaration(id)
	if err != nil {
		return nil, err
	}
	resp := &SchemaResponse{
		Summary: registry.Summary{
			ID:          id.String(),
			Name:        entry.Name,
			Description: entry.Document.Description,
			Created:     entry.Created,
		},
		Declaration: decl.String(),
		MaximumSize: decl.MaximumSize(),
		Headers:     schema.FindEventHeaders(decl),
	}
	if resp.Headers == nil {
		resp.Headers = []schema.HeaderMatch{}
	}
	if withDocument {
		resp.Document = string(entry.Raw)
	}
	return resp, nil
}

func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrSchemaNotFound):
		sendError(w, "Schema not found", http.StatusNotFound)
	case errors.Is(err, schema.ErrInvalidSchema):
		sendError(w, err.Error(), http.StatusBadRequest)
	default:
		entryFrom(r).WithError(err).Error("schema registry error")
		sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func isOctetStream(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/octet-stream"
}

var _ ISchemaStore = (*registry.Registry)(nil)
