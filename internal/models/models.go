package models

import (
	"strings"
)

// Kind identifies one of the six entity labels stored in the graph
type Kind string

const (
	KindPerson       Kind = "Person"
	KindOrganisation Kind = "Organisation"
	KindLocation     Kind = "Location"
	KindEvent        Kind = "Event"
	KindKnowledge    Kind = "Knowledge"
	KindArticle      Kind = "Article"
)

// AllKinds lists every entity kind in materialization order
func AllKinds() []Kind {
	return []Kind{KindArticle, KindPerson, KindOrganisation, KindLocation, KindEvent, KindKnowledge}
}

// Deduplicated reports whether records of this kind are matched by name
// instead of always being created fresh.
func (k Kind) Deduplicated() bool {
	switch k {
	case KindPerson, KindOrganisation, KindLocation:
		return true
	default:
		return false
	}
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DedupProperty is the property holding the dedup key for deduplicated kinds
const DedupProperty = "name"

// Handle is the opaque identifier the store assigns to a persisted record
type Handle string

// Entity is a candidate record for one of the six kinds.
// The set of implementations is closed to this package.
type Entity interface {
	Kind() Kind
	// DedupKey returns the identity key and true for deduplicated kinds.
	DedupKey() (string, bool)
	// Properties returns the attributes that carry a value. Absent
	// attributes are omitted so that merging never clears stored data.
	Properties() map[string]any
	isEntity()
}

// Person is a named individual
type Person struct {
	Name          string   `json:"name,omitempty"`
	FirstName     string   `json:"first_name,omitempty"`
	LastName      string   `json:"last_name,omitempty"`
	Nicknames     []string `json:"nicknames,omitempty"`
	DateOfBirth   *Date    `json:"dob,omitempty"`
	Nationalities []string `json:"nationalities,omitempty"`
	Height        *int     `json:"height,omitempty"` // cm
	Weight        *int     `json:"weight,omitempty"` // kg
	Gender        *string  `json:"gender,omitempty"`
	Occupations   []string `json:"occupations,omitempty"`
}

func (Person) Kind() Kind { return KindPerson }
func (Person) isEntity() {}

// DedupKey uses the full name, falling back to "first last" when the
// extractor only supplied the split form.
func (p Person) DedupKey() (string, bool) {
	if p.Name != "" {
		return p.Name, true
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName), true
}

func (p Person) Properties() map[string]any {
	props := make(map[string]any)
	if key, _ := p.DedupKey(); key != "" {
		props["name"] = key
	}
	putString(props, "firstName", p.FirstName)
	putString(props, "lastName", p.LastName)
	putStrings(props, "nicknames", p.Nicknames)
	if p.DateOfBirth != nil {
		props["dob"] = *p.DateOfBirth
	}
	putStrings(props, "nationalities", p.Nationalities)
	if p.Height != nil {
		props["height"] = int64(*p.Height)
	}
	if p.Weight != nil {
		props["weight"] = int64(*p.Weight)
	}
	putStringPtr(props, "gender", p.Gender)
	putStrings(props, "occupations", p.Occupations)
	return props
}

// Organisation is a company, institution or other named body
type Organisation struct {
	Name        string  `json:"name"`
	DateFounded *Date   `json:"dateFounded,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (Organisation) Kind() Kind { return KindOrganisation }
func (Organisation) isEntity() {}
func (o Organisation) DedupKey() (string, bool) { return o.Name, true }

func (o Organisation) Properties() map[string]any {
	props := make(map[string]any)
	putString(props, "name", o.Name)
	if o.DateFounded != nil {
		props["dateFounded"] = *o.DateFounded
	}
	putStringPtr(props, "description", o.Description)
	return props
}

// Location is a named place, optionally with a postal address and coordinates
type Location struct {
	Name      string   `json:"name"`
	Number    *string  `json:"number,omitempty"`
	Street    *string  `json:"street,omitempty"`
	City      *string  `json:"city,omitempty"`
	Country   *string  `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func (Location) Kind() Kind { return KindLocation }
func (Location) isEntity() {}
func (l Location) DedupKey() (string, bool) { return l.Name, true }

func (l Location) Properties() map[string]any {
	props := make(map[string]any)
	putString(props, "name", l.Name)
	putStringPtr(props, "number", l.Number)
	putStringPtr(props, "street", l.Street)
	putStringPtr(props, "city", l.City)
	putStringPtr(props, "country", l.Country)
	if l.Latitude != nil {
		props["latitude"] = *l.Latitude
	}
	if l.Longitude != nil {
		props["longitude"] = *l.Longitude
	}
	return props
}

// Event is something that happened, always stored as a new record
type Event struct {
	Description string     `json:"description"`
	StartDate   *Date      `json:"startDate,omitempty"`
	StartTime   *TimeOfDay `json:"startTime,omitempty"`
	EndDate     *Date      `json:"endDate,omitempty"`
	EndTime     *TimeOfDay `json:"endTime,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Outcome     *string    `json:"outcome,omitempty"`
	Impact      *string    `json:"impact,omitempty"`
}

func (Event) Kind() Kind { return KindEvent }
func (Event) isEntity() {}
func (Event) DedupKey() (string, bool) { return "", false }

func (e Event) Properties() map[string]any {
	props := make(map[string]any)
	putString(props, "description", e.Description)
	if e.StartDate != nil {
		props["startDate"] = *e.StartDate
	}
	if e.StartTime != nil {
		props["startTime"] = *e.StartTime
	}
	if e.EndDate != nil {
		props["endDate"] = *e.EndDate
	}
	if e.EndTime != nil {
		props["endTime"] = *e.EndTime
	}
	putStringPtr(props, "category", e.Category)
	putStringPtr(props, "status", e.Status)
	putStringPtr(props, "outcome", e.Outcome)
	putStringPtr(props, "impact", e.Impact)
	return props
}

// Knowledge is a single extracted fact
type Knowledge struct {
	Fact       string  `json:"fact"`
	Category   *string `json:"category,omitempty"`
	DateOfFact *Date   `json:"dateOfFact,omitempty"`
}

func (Knowledge) Kind() Kind { return KindKnowledge }
func (Knowledge) isEntity() {}
func (Knowledge) DedupKey() (string, bool) { return "", false }

func (k Knowledge) Properties() map[string]any {
	props := make(map[string]any)
	putString(props, "fact", k.Fact)
	putStringPtr(props, "category", k.Category)
	if k.DateOfFact != nil {
		props["dateOfFact"] = *k.DateOfFact
	}
	return props
}

// Article is the source document a batch was extracted from
type Article struct {
	Title           string    `json:"title"`
	URL             *string   `json:"url,omitempty"`
	Content         string    `json:"content"`
	Language        *string   `json:"language,omitempty"`
	Summary         *string   `json:"summary,omitempty"`
	PublishDateTime *DateTime `json:"publishDateTime,omitempty"`
	ScrapeDateTime  *DateTime `json:"scrapeDateTime,omitempty"`
	AgentProcessID  *string   `json:"agentProcessId,omitempty"`
	Sentiment       *string   `json:"sentiment,omitempty"`
}

func (Article) Kind() Kind { return KindArticle }
func (Article) isEntity() {}
func (Article) DedupKey() (string, bool) { return "", false }

func (a Article) Properties() map[string]any {
	props := make(map[string]any)
	putString(props, "title", a.Title)
	putStringPtr(props, "url", a.URL)
	putString(props, "content", a.Content)
	putStringPtr(props, "language", a.Language)
	putStringPtr(props, "summary", a.Summary)
	if a.PublishDateTime != nil {
		props["publishDateTime"] = *a.PublishDateTime
	}
	if a.ScrapeDateTime != nil {
		props["scrapeDateTime"] = *a.ScrapeDateTime
	}
	putStringPtr(props, "agentProcessId", a.AgentProcessID)
	putStringPtr(props, "sentiment", a.Sentiment)
	return props
}

func putString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func putStringPtr(props map[string]any, key string, value *string) {
	if value != nil {
		props[key] = *value
	}
}

func putStrings(props map[string]any, key string, values []string) {
	if values != nil {
		props[key] = append([]string(nil), values...)
	}
}
