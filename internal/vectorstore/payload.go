package vectorstore

import (
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/paperscope/paperscope/internal/core"
)

// Embedding provenance recorded alongside every point.
const (
	embeddingModelVersion = "sentence-transformers/all-MiniLM-L6-v2"
	embeddingDistance     = "cosine"
)

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func intValue(n int) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(n)}}
}

func boolValue(b bool) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
}

func listValue(values []*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func structValue(fields map[string]*qdrant.Value) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
}

func stringList[T ~string](items []T) *qdrant.Value {
	values := make([]*qdrant.Value, 0, len(items))
	for _, item := range items {
		values = append(values, stringValue(string(item)))
	}
	return listValue(values)
}

func floatList(items []float32) *qdrant.Value {
	values := make([]*qdrant.Value, 0, len(items))
	for _, item := range items {
		values = append(values, &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(item)}})
	}
	return listValue(values)
}

// encodePayload nests the paper fields under "metadata" and keeps a copy of
// the vector under "embedding".
func encodePayload(p core.StoredPaper, id string, vectorSize int) map[string]*qdrant.Value {
	paperID := p.PaperID
	if paperID == "" {
		paperID = id
	}
	storedAt := p.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	metadata := map[string]*qdrant.Value{
		"paper_id":                stringValue(paperID),
		"title":                   stringValue(p.Title),
		"abstract":                stringValue(p.Abstract),
		"authors":                 stringList(p.Authors),
		"published_date":          stringValue(p.PublishedDate),
		"topics":                  stringList(p.Topics),
		"summary":                 stringList(p.Summary),
		"paper_type":              stringValue(string(p.PaperType)),
		"modalities":              stringList(p.Modalities),
		"embedding_source":        stringList([]string{"title", "abstract"}),
		"embedding_size":          intValue(vectorSize),
		"embedding_model_version": stringValue(embeddingModelVersion),
		"embedding_distance":      stringValue(embeddingDistance),
		"source":                  stringValue(p.Source),
		"url":                     stringValue(p.URL),
		"code_repository":         stringValue(p.CodeRepository),
		"star":                    boolValue(p.Star),
		"feed_type":               stringValue(string(p.FeedType)),
		"is_relevant":             boolValue(p.IsRelevant),
		"relevance_score":         intValue(p.RelevanceScore),
		"relevance_reason":        stringValue(p.RelevanceReason),
		"cited_by_count":          intValue(p.CitedByCount),
		"publication_type":        stringValue(p.PublicationType),
		"stored_at":               stringValue(storedAt.Format(time.RFC3339)),
	}
	return map[string]*qdrant.Value{
		"metadata":  structValue(metadata),
		"embedding": floatList(p.Vector),
	}
}

// decodePayload reverses encodePayload. Missing fields stay zero.
func decodePayload(payload map[string]*qdrant.Value) core.StoredPaper {
	fields := payload["metadata"].GetStructValue().GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }
	num := func(key string) int {
		v := fields[key]
		if d, ok := v.GetKind().(*qdrant.Value_DoubleValue); ok {
			return int(d.DoubleValue)
		}
		return int(v.GetIntegerValue())
	}
	list := func(key string) []string {
		values := fields[key].GetListValue().GetValues()
		if len(values) == 0 {
			return nil
		}
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, v.GetStringValue())
		}
		return out
	}

	p := core.StoredPaper{
		Paper: core.Paper{
			Title:           str("title"),
			Abstract:        str("abstract"),
			URL:             str("url"),
			PublishedDate:   str("published_date"),
			Authors:         list("authors"),
			Source:          str("source"),
			PaperID:         str("paper_id"),
			CitedByCount:    num("cited_by_count"),
			PublicationType: str("publication_type"),
			CodeRepository:  str("code_repository"),
		},
		FeedType:        core.FeedType(str("feed_type")),
		IsRelevant:      fields["is_relevant"].GetBoolValue(),
		Topics:          list("topics"),
		RelevanceScore:  num("relevance_score"),
		RelevanceReason: str("relevance_reason"),
		PaperType:       core.PaperType(str("paper_type")),
		Summary:         list("summary"),
		Star:            fields["star"].GetBoolValue(),
	}
	// Points written by older tooling lack is_relevant; everything stored was accepted.
	if _, ok := fields["is_relevant"]; !ok {
		p.IsRelevant = true
	}
	for _, m := range list("modalities") {
		p.Modalities = append(p.Modalities, core.Modality(m))
	}
	if ts, err := time.Parse(time.RFC3339, str("stored_at")); err == nil {
		p.StoredAt = ts
	}
	return p
}
