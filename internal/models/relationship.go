package models

import (
	"fmt"
	"strings"
)

// RelKind is one of the ten typed relationship kinds
type RelKind string

const (
	RelMentionsPerson       RelKind = "MentionsPerson"
	RelAboutPerson          RelKind = "AboutPerson"
	RelInvolvedPerson       RelKind = "InvolvedPerson"
	RelMentionsOrganisation RelKind = "MentionsOrganisation"
	RelAboutOrganisation    RelKind = "AboutOrganisation"
	RelInvolvedOrganisation RelKind = "InvolvedOrganisation"
	RelSourcedFrom          RelKind = "SourcedFrom"
	RelMentionsEvent        RelKind = "MentionsEvent"
	RelOccurredIn           RelKind = "OccurredIn"
	RelMentionsLocation     RelKind = "MentionsLocation"
)

// RelSpec is one row of the relationship typing table
type RelSpec struct {
	Kind     RelKind
	Source   Kind
	Target   Kind
	Evidence bool   // evidence text is persisted on the edge
	Label    string // edge type in the graph
}

// Edge labels
const (
	LabelMentions    = "MENTIONS"
	LabelAbout       = "ABOUT"
	LabelInvolves    = "INVOLVES"
	LabelSourcedFrom = "SOURCED_FROM"
	LabelOccurredIn  = "OCCURRED_IN"
)

var relTable = []RelSpec{
	{RelMentionsPerson, KindArticle, KindPerson, true, LabelMentions},
	{RelAboutPerson, KindKnowledge, KindPerson, false, LabelAbout},
	{RelInvolvedPerson, KindEvent, KindPerson, false, LabelInvolves},
	{RelMentionsOrganisation, KindArticle, KindOrganisation, true, LabelMentions},
	{RelAboutOrganisation, KindKnowledge, KindOrganisation, false, LabelAbout},
	{RelInvolvedOrganisation, KindEvent, KindOrganisation, false, LabelInvolves},
	{RelSourcedFrom, KindKnowledge, KindArticle, false, LabelSourcedFrom},
	{RelMentionsEvent, KindArticle, KindEvent, false, LabelMentions},
	{RelOccurredIn, KindEvent, KindLocation, false, LabelOccurredIn},
	{RelMentionsLocation, KindArticle, KindLocation, false, LabelMentions},
}

var relByName = func() map[string]RelSpec {
	m := make(map[string]RelSpec, len(relTable)+1)
	for _, spec := range relTable {
		m[strings.ToLower(string(spec.Kind))] = spec
	}
	// extractor prompts in the wild still emit the misspelt form
	m["occuredin"] = m[strings.ToLower(string(RelOccurredIn))]
	return m
}()

// RelTable returns a copy of the typing table
func RelTable() []RelSpec {
	return append([]RelSpec(nil), relTable...)
}

// Spec returns the typing row for k
func (k RelKind) Spec() (RelSpec, bool) {
	key := strings.ToLower(strings.TrimSpace(string(k)))
	spec, ok := relByName[strings.TrimSuffix(key, "relationship")]
	return spec, ok
}

// ParseRelKind resolves a relationship kind name. Matching ignores case and
// an optional "Relationship" suffix.
func ParseRelKind(name string) (RelKind, error) {
	spec, ok := RelKind(name).Spec()
	if !ok {
		return "", fmt.Errorf("unknown relationship kind %q", name)
	}
	return spec.Kind, nil
}

// Accepts reports whether an edge from a source of kind src to a target of
// kind dst satisfies this row.
func (s RelSpec) Accepts(src, dst Kind) bool {
	return s.Source == src && s.Target == dst
}

// Relationship is a candidate edge between two ephemeral ids of one batch
type Relationship struct {
	Kind        RelKind `json:"kind"`
	StartNodeID string  `json:"start_node_id"`
	EndNodeID   string  `json:"end_node_id"`
	Evidence    *string `json:"evidence,omitempty"`
}
