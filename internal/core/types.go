package core

import (
	"strings"
	"time"
)

// FeedType selects the subject matter a classification run focuses on.
type FeedType string

const (
	FeedAISecurity   FeedType = "ai-security"
	FeedWeb3Security FeedType = "web3-security"
)

// FeedTypes lists the supported feeds in display order.
var FeedTypes = []FeedType{FeedAISecurity, FeedWeb3Security}

// ParseFeedType resolves a feed name, accepting underscores and mixed case.
func ParseFeedType(value string) (FeedType, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-")
	switch FeedType(normalized) {
	case FeedAISecurity, "":
		return FeedAISecurity, true
	case FeedWeb3Security:
		return FeedWeb3Security, true
	default:
		return "", false
	}
}

// Collection returns the default storage collection for the feed.
func (f FeedType) Collection() string {
	if f == FeedWeb3Security {
		return "web3_security_papers"
	}
	return "ai_security_papers"
}

// Title returns the human-readable digest title for the feed.
func (f FeedType) Title() string {
	if f == FeedWeb3Security {
		return "Web3 Security Paper Digest"
	}
	return "AI Security Paper Digest"
}

// Subject is the topic phrase substituted into classification prompts.
func (f FeedType) Subject() string {
	if f == FeedWeb3Security {
		return "Web3, blockchain, and smart contract security"
	}
	return "AI security, safety, or red teaming"
}

// PaperType is the closed set of paper categories the detailed stage may assign.
type PaperType string

const (
	PaperTypeResearch  PaperType = "Research Paper"
	PaperTypeSurvey    PaperType = "Survey/Review"
	PaperTypeBenchmark PaperType = "Benchmarking"
	PaperTypePosition  PaperType = "Position Paper"
	PaperTypeOther     PaperType = "Other"
)

// PaperTypes lists every valid paper type.
var PaperTypes = []PaperType{PaperTypeResearch, PaperTypeSurvey, PaperTypeBenchmark, PaperTypePosition, PaperTypeOther}

// NormalizePaperType maps free text onto the closed set, defaulting to Other.
func NormalizePaperType(value string) PaperType {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, pt := range PaperTypes {
		if strings.ToLower(string(pt)) == trimmed {
			return pt
		}
	}
	switch {
	case strings.Contains(trimmed, "survey"), strings.Contains(trimmed, "review"):
		return PaperTypeSurvey
	case strings.Contains(trimmed, "benchmark"):
		return PaperTypeBenchmark
	case strings.Contains(trimmed, "position"):
		return PaperTypePosition
	case strings.Contains(trimmed, "research"):
		return PaperTypeResearch
	}
	return PaperTypeOther
}

// Modality is the closed set of data modalities a paper may cover.
type Modality string

const (
	ModalityText       Modality = "text"
	ModalityImage      Modality = "image"
	ModalityVideo      Modality = "video"
	ModalityAudio      Modality = "audio"
	ModalityMultimodal Modality = "multimodal"
	ModalityOther      Modality = "other"
)

// Modalities lists every valid modality.
var Modalities = []Modality{ModalityText, ModalityImage, ModalityVideo, ModalityAudio, ModalityMultimodal, ModalityOther}

// NormalizeModalities lowercases, deduplicates and maps unknown labels to other.
func NormalizeModalities(values []string) []Modality {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[Modality]bool, len(values))
	out := make([]Modality, 0, len(values))
	for _, raw := range values {
		m := Modality(strings.ToLower(strings.TrimSpace(raw)))
		if m == "" {
			continue
		}
		valid := false
		for _, known := range Modalities {
			if m == known {
				valid = true
				break
			}
		}
		if !valid {
			m = ModalityOther
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Paper is a candidate paper pulled from a source.
type Paper struct {
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	URL             string   `json:"url"`
	PublishedDate   string   `json:"published_date,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	Source          string   `json:"source,omitempty"`
	PaperID         string   `json:"paper_id,omitempty"`
	CitedByCount    int      `json:"cited_by_count,omitempty"`
	PublicationType string   `json:"publication_type,omitempty"`
	CodeRepository  string   `json:"code_repository,omitempty"`
}

// AssessmentText renders the text submitted to the detailed stage.
// ACL entries carry author lists in their summaries, so only the title is used.
func (p Paper) AssessmentText() string {
	if p.Source == "acl" || strings.TrimSpace(p.Abstract) == "" {
		return "Title: " + p.Title
	}
	return "Title: " + p.Title + "\n\nAbstract: " + p.Abstract
}

// ScreeningText renders the text submitted to the quick stage.
func (p Paper) ScreeningText() string {
	return "Title: " + p.Title + "\nAbstract: " + p.Abstract + "\nURL: " + p.URL
}

// ClassificationResult is the verdict produced by the classifier.
type ClassificationResult struct {
	Relevant       bool       `json:"relevant"`
	RelevanceScore int        `json:"relevance_score,omitempty"`
	Summary        []string   `json:"summary,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	PaperType      PaperType  `json:"paper_type,omitempty"`
	Modalities     []Modality `json:"modalities,omitempty"`
}

// QualityAssessment scores a paper along four review dimensions.
type QualityAssessment struct {
	Clarity        int    `json:"clarity"`
	Novelty        int    `json:"novelty"`
	Significance   int    `json:"significance"`
	TryWorthiness  bool   `json:"try_worthiness"`
	Justification  string `json:"justification"`
	CodeRepository string `json:"code_repository,omitempty"`
}

// StoredPaper is the record written to a paper store.
type StoredPaper struct {
	Paper
	FeedType        FeedType   `json:"feed_type"`
	IsRelevant      bool       `json:"is_relevant"`
	Topics          []string   `json:"topics,omitempty"`
	RelevanceScore  int        `json:"relevance_score"`
	RelevanceReason string     `json:"relevance_reason,omitempty"`
	PaperType       PaperType  `json:"paper_type"`
	Modalities      []Modality `json:"modalities,omitempty"`
	Summary         []string   `json:"summary,omitempty"`
	Star            bool       `json:"star"`
	Vector          []float32  `json:"-"`
	StoredAt        time.Time  `json:"stored_at"`
}

// NewStoredPaper merges a paper with its accepted classification.
func NewStoredPaper(p Paper, feed FeedType, result ClassificationResult) StoredPaper {
	row := StoredPaper{
		Paper:     p,
		FeedType:  feed,
		PaperType: PaperTypeOther,
	}
	if result.Relevant {
		row.IsRelevant = true
		row.Topics = result.Tags
		row.RelevanceScore = result.RelevanceScore
		row.RelevanceReason = result.Reason
		row.PaperType = result.PaperType
		row.Modalities = result.Modalities
		row.Summary = result.Summary
		if row.PaperType == "" {
			row.PaperType = PaperTypeResearch
		}
	}
	if row.CodeRepository == "None" {
		row.CodeRepository = ""
	}
	return row
}
