// internal/showcase/elastic.go
package showcase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/endorsement"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	DefaultIndexName = "endorsement-showcase"
	searchPageSize   = 500
)

// IndexMapping keeps filterable fields as keywords and searchable fields as
// text with a keyword sub-field for substring matching.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":                  {"type": "keyword"},
      "organization_name":   {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "contact_person_name": {"type": "keyword", "index": false},
      "country":             {"type": "keyword"},
      "endorser_category":   {"type": "keyword"},
      "endorsement_type":    {"type": "keyword"},
      "endorsement_tier":    {"type": "keyword"},
      "headline":            {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "statement":           {"type": "text", "fields": {"keyword": {"type": "keyword", "ignore_above": 8191}}},
      "logo_ref":            {"type": "keyword", "index": false},
      "video_link":          {"type": "keyword", "index": false},
      "website":             {"type": "keyword", "index": false},
      "status":              {"type": "keyword"},
      "verified":            {"type": "boolean"},
      "featured":            {"type": "boolean"},
      "approved_at":         {"type": "date"}
    }
  }
}`

// document is the indexed projection. It holds public fields only.
type document struct {
	ID                string     `json:"id"`
	OrganizationName  string     `json:"organization_name"`
	ContactPersonName string     `json:"contact_person_name"`
	Country           string     `json:"country"`
	EndorserCategory  string     `json:"endorser_category"`
	EndorsementType   string     `json:"endorsement_type"`
	EndorsementTier   string     `json:"endorsement_tier,omitempty"`
	Headline          string     `json:"headline"`
	Statement         string     `json:"statement"`
	LogoRef           string     `json:"logo_ref,omitempty"`
	VideoLink         string     `json:"video_link,omitempty"`
	Website           string     `json:"website,omitempty"`
	Status            string     `json:"status"`
	Verified          bool       `json:"verified"`
	Featured          bool       `json:"featured"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
}

func toDocument(e *endorsement.Endorsement) document {
	return document{
		ID:                e.ID,
		OrganizationName:  e.OrganizationName,
		ContactPersonName: e.ContactPersonName,
		Country:           e.Country,
		EndorserCategory:  e.EndorserCategory,
		EndorsementType:   string(e.EndorsementType),
		EndorsementTier:   e.EndorsementTier,
		Headline:          e.Headline,
		Statement:         e.Statement,
		LogoRef:           e.LogoRef,
		VideoLink:         e.VideoLink,
		Website:           e.Website,
		Status:            string(e.Status),
		Verified:          e.Verified,
		Featured:          e.Featured,
		ApprovedAt:        e.ApprovedAt,
	}
}

func (d document) endorsement() *endorsement.Endorsement {
	return &endorsement.Endorsement{
		ID:                d.ID,
		OrganizationName:  d.OrganizationName,
		ContactPersonName: d.ContactPersonName,
		Country:           d.Country,
		EndorserCategory:  d.EndorserCategory,
		EndorsementType:   endorsement.EndorsementType(d.EndorsementType),
		EndorsementTier:   d.EndorsementTier,
		Headline:          d.Headline,
		Statement:         d.Statement,
		LogoRef:           d.LogoRef,
		VideoLink:         d.VideoLink,
		Website:           d.Website,
		Status:            endorsement.Status(d.Status),
		Verified:          d.Verified,
		Featured:          d.Featured,
		ApprovedAt:        d.ApprovedAt,
	}
}

// Index mirrors approved endorsements into Elasticsearch and serves showcase
// searches from it.
type Index struct {
	client   *elasticsearch.Client
	name     string
	pageSize int
}

var (
	_ endorsement.Searcher           = (*Index)(nil)
	_ endorsement.TransitionListener = (*Index)(nil)
)

func NewIndex(client *elasticsearch.Client, name string) *Index {
	if name == "" {
		name = DefaultIndexName
	}
	return &Index{client: client, name: name, pageSize: searchPageSize}
}

func (i *Index) Name() string { return i.name }

// Put indexes e, replacing any previous version of the document.
func (i *Index) Put(ctx context.Context, e *endorsement.Endorsement) error {
	body, err := json.Marshal(toDocument(e))
	if err != nil {
		return fmt.Errorf("encode showcase document: %w", err)
	}

	res, err := i.client.Index(
		i.name,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(e.ID),
		i.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return apperrors.NewSearchFailedError(i.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewSearchFailedError(i.name, fmt.Errorf("index document %s: %s", e.ID, res.Status()))
	}
	return nil
}

// OnTransition keeps the index in step with committed moderation changes.
func (i *Index) OnTransition(ctx context.Context, e *endorsement.Endorsement, kind endorsement.MutationKind) error {
	if !affectsShowcase(kind) || e.Status != endorsement.StatusApproved {
		return nil
	}
	return i.Put(ctx, e)
}

// Reindex copies every approved endorsement from src into the index.
func (i *Index) Reindex(ctx context.Context, src endorsement.Searcher) (int, error) {
	all, err := src.SearchApproved(ctx, endorsement.ShowcaseQuery{})
	if err != nil {
		return 0, err
	}
	for n, e := range all {
		if err := i.Put(ctx, e); err != nil {
			return n, err
		}
	}
	return len(all), nil
}

type searchHit struct {
	Source document      `json:"_source"`
	Sort   []interface{} `json:"sort"`
}

// SearchApproved returns every match, walking the result set page by page
// with search_after on the showcase sort key.
func (i *Index) SearchApproved(ctx context.Context, q endorsement.ShowcaseQuery) ([]*endorsement.Endorsement, error) {
	q = q.Normalize()
	query := buildSearchQuery(q)
	query["size"] = i.pageSize

	var out []*endorsement.Endorsement
	for {
		hits, err := i.searchPage(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			out = append(out, hit.Source.endorsement())
		}
		if len(hits) < i.pageSize || len(hits[len(hits)-1].Sort) == 0 {
			break
		}
		query["search_after"] = hits[len(hits)-1].Sort
	}
	if out == nil {
		out = []*endorsement.Endorsement{}
	}
	return out, nil
}

func (i *Index) searchPage(ctx context.Context, query map[string]interface{}) ([]searchHit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode showcase query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{i.name},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, apperrors.NewSearchFailedError(i.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, apperrors.NewSearchFailedError(i.name, fmt.Errorf("%s: %s", res.Status(), msg))
	}

	var parsed struct {
		Hits struct {
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
	}
	// Sort values go back verbatim in search_after; keep longs exact.
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchFailedError(i.name, fmt.Errorf("decode response: %w", err))
	}
	return parsed.Hits.Hits, nil
}

func buildSearchQuery(q endorsement.ShowcaseQuery) map[string]interface{} {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": string(endorsement.StatusApproved)}},
	}
	if q.Category != "" {
		filter = append(filter, caseInsensitiveTerm("endorser_category", q.Category))
	}
	if q.Country != "" {
		filter = append(filter, caseInsensitiveTerm("country", q.Country))
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if q.Search != "" {
		pattern := "*" + escapeWildcard(q.Search) + "*"
		should := make([]interface{}, 0, 3)
		for _, field := range []string{"organization_name.keyword", "headline.keyword", "statement.keyword"} {
			should = append(should, map[string]interface{}{
				"wildcard": map[string]interface{}{
					field: map[string]interface{}{"value": pattern, "case_insensitive": true},
				},
			})
		}
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{"featured": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"approved_at": map[string]interface{}{"order": "desc", "missing": "_last"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		},
	}
}

func caseInsensitiveTerm(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{
			field: map[string]interface{}{"value": value, "case_insensitive": true},
		},
	}
}

func escapeWildcard(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r == '*' || r == '?' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
