// Package server exposes a model's key resolver over HTTP: batch key
// resolution plus a health check, namespaced by the model identity.
package server

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"

	"oasisrun/internal/lookup"
	"oasisrun/internal/model"
)

// Context carries everything a request handler needs. It is built once at
// startup and never mutated afterwards; a failed constructor means the
// service must not start.
type Context struct {
	identity model.ModelIdentity
	lookup   lookup.Lookup
	compress bool
	logger   *log.Logger
}

// NewContext loads the model identity and resolver from the configured
// paths. Any failure is returned to the caller, which must abort startup:
// a lookup service that cannot resolve keys has nothing to serve.
func NewContext(cfg *Config, logger *log.Logger) (*Context, error) {
	id, lk, err := lookup.CreateFromPaths(cfg.KeysDataPath, cfg.ModelVersionFile, cfg.LookupPackagePath)
	if err != nil {
		return nil, fmt.Errorf("initialize lookup service: %w", err)
	}
	return &Context{
		identity: id,
		lookup:   lk,
		compress: cfg.CompressResponse,
		logger:   logger,
	}, nil
}

// Identity returns the model identity the service resolves keys for.
func (c *Context) Identity() model.ModelIdentity {
	return c.identity
}

// NewHandler routes requests for the context's model. Unknown routes get
// the mux default 404.
func NewHandler(c *Context) http.Handler {
	mux := http.NewServeMux()
	base := fmt.Sprintf("/%s/%s/%s", c.identity.SupplierID, c.identity.ModelID, c.identity.ModelVersion)
	mux.HandleFunc("POST "+base+"/get_keys", c.handleGetKeys)
	mux.HandleFunc("GET "+base+"/healthcheck", c.handleHealthcheck)
	return mux
}

func (c *Context) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "OK")
}

// keysResponse is the get_keys wire format.
type keysResponse struct {
	Status string            `json:"status"`
	Items  []model.KeyRecord `json:"items"`
}

// handleGetKeys resolves a batch of exposure locations. Every failure mode
// is a 5xx with an empty body: clients get the complete result set or
// nothing.
func (c *Context) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	records, err := c.decodeExposures(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	items := make([]model.KeyRecord, 0, len(records))
	for rec := range c.lookup.ProcessLocations(r.Context(), model.StreamRecords(r.Context(), records)) {
		items = append(items, rec)
	}

	body, err := json.Marshal(keysResponse{Status: "success", Items: items})
	if err != nil {
		c.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !c.compress {
		w.Write(body)
		c.logRequest(r, len(records), len(items))
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(body); err != nil {
		if c.logger != nil {
			c.logger.Printf("get_keys: write response: %v", err)
		}
		return
	}
	if err := gz.Close(); err != nil {
		if c.logger != nil {
			c.logger.Printf("get_keys: flush response: %v", err)
		}
		return
	}
	c.logRequest(r, len(records), len(items))
}

func (c *Context) decodeExposures(r *http.Request) ([]model.ExposureRecord, error) {
	body := io.Reader(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip request body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("content type: %w", err)
	}
	switch mediaType {
	case "text/csv":
		return model.DecodeExposuresCSV(body)
	case "application/json":
		return model.DecodeExposuresJSON(body)
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (c *Context) fail(w http.ResponseWriter, r *http.Request, err error) {
	if c.logger != nil {
		c.logger.Printf("get_keys %s: %v", r.RemoteAddr, err)
	}
	w.WriteHeader(http.StatusInternalServerError)
}

func (c *Context) logRequest(r *http.Request, locations, items int) {
	if c.logger != nil {
		c.logger.Printf("get_keys %s: %d locations, %d key records", r.RemoteAddr, locations, items)
	}
}
