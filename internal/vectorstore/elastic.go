package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	defaultIndexName = "resumes"
	maxNumCandidates = 10000
)

var errNoBuild = errors.New("no index build in progress")

// ElasticConfig points the store at an Elasticsearch cluster.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	IndexName string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Elastic keeps documents in an Elasticsearch index with a dense_vector
// field and queries it with approximate kNN. The configured index name is an
// alias. Each build writes a new physical index named <alias>-<unix nanos>
// and moves the alias only once every document is in.
type Elastic struct {
	client *elasticsearch.Client
	index  string

	// building is the physical index written by the current build.
	building string
	model    string
	dims     int
}

type esDocument struct {
	DocID  string    `json:"doc_id"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

type indexMeta struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

type indexMapping struct {
	Mappings struct {
		Meta indexMeta `json:"_meta"`
	} `json:"mappings"`
}

// NewElastic creates a store client without touching the cluster.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	index := strings.TrimSpace(cfg.IndexName)
	if index == "" {
		index = defaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Elastic{client: client, index: index}, nil
}

// OpenElastic connects to an existing index for querying with the given
// embedding model.
func OpenElastic(ctx context.Context, cfg ElasticConfig, model string) (*Elastic, error) {
	s, err := NewElastic(cfg)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Indices.GetMapping(
		s.client.Indices.GetMapping.WithContext(ctx),
		s.client.Indices.GetMapping.WithIndex(s.index),
	)
	if err != nil {
		return nil, &LoadError{Location: s.index, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, &LoadError{Location: s.index, Err: ErrIndexMissing}
	}
	if res.IsError() {
		return nil, &LoadError{Location: s.index, Err: responseError(res)}
	}

	var mappings map[string]indexMapping
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return nil, &LoadError{Location: s.index, Err: fmt.Errorf("decode mapping: %w", err)}
	}

	// The alias resolves to exactly one physical index.
	if len(mappings) == 0 {
		return nil, &LoadError{Location: s.index, Err: ErrIndexMissing}
	}
	if len(mappings) > 1 {
		return nil, &LoadError{Location: s.index, Err: fmt.Errorf("alias points at %d indices", len(mappings))}
	}
	var mapping indexMapping
	for _, m := range mappings {
		mapping = m
	}

	if err := checkModel(s.index, mapping.Mappings.Meta.Model, model); err != nil {
		return nil, err
	}

	s.model = mapping.Mappings.Meta.Model
	s.dims = mapping.Mappings.Meta.Dimensions
	return s, nil
}

// Reset creates a new physical index with a cosine dense_vector mapping.
// The alias keeps serving the previous index until Flush succeeds.
func (s *Elastic) Reset(ctx context.Context, model string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid vector dimensions %d", dims)
	}
	if s.building != "" {
		s.abort(ctx)
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"_meta": indexMeta{Model: model, Dimensions: dims},
			"properties": map[string]any{
				"doc_id": map[string]any{"type": "keyword"},
				"text":   map[string]any{"type": "text"},
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	name := fmt.Sprintf("%s-%d", s.index, time.Now().UnixNano())

	res, err := s.client.Indices.Create(
		name,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %w", name, responseError(res))
	}

	s.building = name
	s.model = model
	s.dims = dims
	return nil
}

// Upsert sends one bulk request per call into the index being built.
func (s *Elastic) Upsert(ctx context.Context, docs []Document) error {
	if s.building == "" {
		return errNoBuild
	}
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		if len(doc.Vector) != s.dims {
			s.abort(ctx)
			return fmt.Errorf("%w: document %s has %d, index has %d", ErrDimensionMismatch, doc.ID, len(doc.Vector), s.dims)
		}
	}

	if err := s.bulk(ctx, docs); err != nil {
		s.abort(ctx)
		return err
	}
	return nil
}

func (s *Elastic) bulk(ctx context.Context, docs []Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{"_index": s.building, "_id": doc.ID}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(esDocument{DocID: doc.ID, Text: doc.Text, Vector: doc.Vector}); err != nil {
			return fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
	}

	req := esapi.BulkRequest{
		Index: s.building,
		Body:  &buf,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %w", responseError(res))
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string          `json:"_id"`
			Error json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulk.Errors {
		for _, item := range bulk.Items {
			for _, result := range item {
				if len(result.Error) > 0 {
					return fmt.Errorf("bulk index document %s: %s", result.ID, result.Error)
				}
			}
		}
		return errors.New("bulk index reported errors")
	}
	return nil
}

// Flush refreshes the new index and points the alias at it in one atomic
// update. Indices the alias no longer needs are deleted afterwards.
func (s *Elastic) Flush(ctx context.Context) error {
	if s.building == "" {
		return errNoBuild
	}

	previous, err := s.swap(ctx)
	if err != nil {
		s.abort(ctx)
		return err
	}

	// A failed delete leaves an old version behind for the next build to drop.
	for _, name := range sortedKeys(previous) {
		if name != s.building {
			s.deleteIndex(ctx, name)
		}
	}
	s.building = ""
	return nil
}

// swap returns the versions that existed before the alias moved.
func (s *Elastic) swap(ctx context.Context) (map[string]bool, error) {
	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.building),
	)
	if err != nil {
		return nil, fmt.Errorf("refresh index %s: %w", s.building, err)
	}
	res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("refresh index %s: %s", s.building, res.Status())
	}

	previous, err := s.versions(ctx)
	if err != nil {
		return nil, err
	}

	var actions []map[string]any
	aliased := false
	for _, name := range sortedKeys(previous) {
		if name != s.building && previous[name] {
			aliased = true
			actions = append(actions, map[string]any{"remove": map[string]any{"index": name, "alias": s.index}})
		}
	}
	if !aliased {
		// An index created under the alias name itself has to go in the same
		// update, otherwise the alias cannot be added.
		concrete, err := s.exists(ctx, s.index)
		if err != nil {
			return nil, err
		}
		if concrete {
			actions = append(actions, map[string]any{"remove_index": map[string]any{"index": s.index}})
		}
	}
	actions = append(actions, map[string]any{"add": map[string]any{"index": s.building, "alias": s.index}})

	body, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return nil, fmt.Errorf("encode alias update: %w", err)
	}

	res, err = s.client.Indices.UpdateAliases(
		bytes.NewReader(body),
		s.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("swap alias %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("swap alias %s: %w", s.index, responseError(res))
	}
	return previous, nil
}

// versions lists the physical indices behind the alias name and whether
// each one currently carries the alias.
func (s *Elastic) versions(ctx context.Context) (map[string]bool, error) {
	res, err := s.client.Indices.GetAlias(
		s.client.Indices.GetAlias.WithContext(ctx),
		s.client.Indices.GetAlias.WithIndex(s.index+"-*"),
	)
	if err != nil {
		return nil, fmt.Errorf("list indices for %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return map[string]bool{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("list indices for %s: %w", s.index, responseError(res))
	}

	var indices map[string]struct {
		Aliases map[string]json.RawMessage `json:"aliases"`
	}
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("decode aliases: %w", err)
	}

	out := make(map[string]bool, len(indices))
	for name, idx := range indices {
		_, ok := idx.Aliases[s.index]
		out[name] = ok
	}
	return out, nil
}

func (s *Elastic) exists(ctx context.Context, name string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{name}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, fmt.Errorf("check index %s: %s", name, res.Status())
	}
	return true, nil
}

// abort drops the index being built. The live alias is never touched.
func (s *Elastic) abort(ctx context.Context) {
	s.deleteIndex(context.WithoutCancel(ctx), s.building)
	s.building = ""
}

func (s *Elastic) deleteIndex(ctx context.Context, name string) {
	res, err := s.client.Indices.Delete([]string{name}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return
	}
	res.Body.Close()
}

func (s *Elastic) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.dims > 0 && len(vector) != s.dims {
		return nil, &LoadError{
			Location: s.index,
			Err:      fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), s.dims),
		}
	}

	query := map[string]any{
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates(k),
		},
		"size":    k,
		"_source": []string{"doc_id", "text"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("encode knn query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("knn search: %w", responseError(res))
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Text: h.Source.Text, Score: h.Score})
	}
	return hits, nil
}

func (s *Elastic) Model() string { return s.model }

func numCandidates(k int) int {
	n := k * 10
	if n < 100 {
		n = 100
	}
	if n > maxNumCandidates {
		n = maxNumCandidates
	}
	if n < k {
		n = k
	}
	return n
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func responseError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), strings.TrimSpace(string(body)))
}
