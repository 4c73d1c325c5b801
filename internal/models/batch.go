package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Candidate is an entity tagged with the ephemeral id the extractor gave it.
// The id is only meaningful within its batch.
type Candidate struct {
	ID     string
	Entity Entity
}

type ArticleCandidate struct {
	ID string `json:"id,omitempty"`
	Article
}

type PersonCandidate struct {
	ID string `json:"id,omitempty"`
	Person
}

type OrganisationCandidate struct {
	ID string `json:"id,omitempty"`
	Organisation
}

type LocationCandidate struct {
	ID string `json:"id,omitempty"`
	Location
}

type EventCandidate struct {
	ID string `json:"id,omitempty"`
	Event
}

type KnowledgeCandidate struct {
	ID string `json:"id,omitempty"`
	Knowledge
}

// Batch is everything extracted from one article
type Batch struct {
	Article       *ArticleCandidate       `json:"article"`
	People        []PersonCandidate       `json:"people,omitempty"`
	Organisations []OrganisationCandidate `json:"organisations,omitempty"`
	Locations     []LocationCandidate     `json:"locations,omitempty"`
	Events        []EventCandidate        `json:"events,omitempty"`
	Knowledge     []KnowledgeCandidate    `json:"knowledge,omitempty"`
	Relationships []Relationship          `json:"relationships,omitempty"`
}

// Validate checks the structural requirements of a batch
func (b *Batch) Validate() error {
	if b.Article == nil {
		return fmt.Errorf("batch has no article")
	}
	for i, p := range b.People {
		if key, _ := p.DedupKey(); key == "" {
			return fmt.Errorf("person %d (id %q) has no name", i, p.ID)
		}
	}
	for i, o := range b.Organisations {
		if o.Name == "" {
			return fmt.Errorf("organisation %d (id %q) has no name", i, o.ID)
		}
	}
	for i, l := range b.Locations {
		if l.Name == "" {
			return fmt.Errorf("location %d (id %q) has no name", i, l.ID)
		}
	}
	return nil
}

// Deduplicated returns persons, organisations and locations in batch order
func (b *Batch) Deduplicated() []Candidate {
	out := make([]Candidate, 0, len(b.People)+len(b.Organisations)+len(b.Locations))
	for _, p := range b.People {
		out = append(out, Candidate{ID: p.ID, Entity: p.Person})
	}
	for _, o := range b.Organisations {
		out = append(out, Candidate{ID: o.ID, Entity: o.Organisation})
	}
	for _, l := range b.Locations {
		out = append(out, Candidate{ID: l.ID, Entity: l.Location})
	}
	return out
}

// Fresh returns events and knowledge in batch order
func (b *Batch) Fresh() []Candidate {
	out := make([]Candidate, 0, len(b.Events)+len(b.Knowledge))
	for _, e := range b.Events {
		out = append(out, Candidate{ID: e.ID, Entity: e.Event})
	}
	for _, k := range b.Knowledge {
		out = append(out, Candidate{ID: k.ID, Entity: k.Knowledge})
	}
	return out
}

// DecodeBatch reads a batch document
func DecodeBatch(r io.Reader) (*Batch, error) {
	var b Batch
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadBatch reads a batch document from disk
func LoadBatch(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch %s: %w", path, err)
	}
	defer f.Close()

	b, err := DecodeBatch(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
