package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Schema Registry error codes for a subject or schema that is not registered.
const (
	registryCodeSubjectNotFound = 40401
	registryCodeSchemaNotFound  = 40403
)

// RegistryError is an error response from Schema Registry.
type RegistryError struct {
	StatusCode int
	Code       int    `json:"error_code"`
	Message    string `json:"message"`
}

func (e *RegistryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("schema registry: status %d", e.StatusCode)
	}
	return fmt.Sprintf("schema registry: %s (status %d, code %d)", e.Message, e.StatusCode, e.Code)
}

func (e *RegistryError) notRegistered() bool {
	return e.StatusCode == http.StatusNotFound &&
		(e.Code == 0 || e.Code == registryCodeSubjectNotFound || e.Code == registryCodeSchemaNotFound)
}

// SchemaRegistryClient resolves Schema Registry ids for the JSON schemas of
// carbon tracker events.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id schema has under subject, registering it as a
// new version when the registry does not know it yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.lookup(ctx, subject, schema)
	var regErr *RegistryError
	if errors.As(err, &regErr) && regErr.notRegistered() {
		return c.register(ctx, subject, schema)
	}
	return id, err
}

// RegisterEventSchemas ensures the schema of every outbox event type is
// registered under its topic's subject and returns the ids by event type.
func (c *SchemaRegistryClient) RegisterEventSchemas(ctx context.Context) (map[string]int, error) {
	eventTypes := make([]string, 0, len(schemaCatalog))
	for eventType := range schemaCatalog {
		eventTypes = append(eventTypes, eventType)
	}
	sort.Strings(eventTypes)

	ids := make(map[string]int, len(eventTypes))
	var errs []error
	for _, eventType := range eventTypes {
		entry := schemaCatalog[eventType]
		id, err := c.EnsureSchema(ctx, entry.Subject(), entry.Schema)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eventType, err))
			continue
		}
		ids[eventType] = id
	}
	return ids, errors.Join(errs...)
}

// lookup asks whether schema is already a version of subject.
func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
	if err != nil {
		return 0, fmt.Errorf("register schema for %s: %w", subject, err)
	}
	return id, nil
}

func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(map[string]string{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		regErr := &RegistryError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, regErr) != nil {
			regErr.Message = strings.TrimSpace(string(data))
		}
		return 0, regErr
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return payload.ID, nil
}
