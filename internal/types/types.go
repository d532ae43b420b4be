package types

import (
	"fmt"
	"sort"
)

// TrackID identifies an annotation track on the server.
type TrackID string

// FeatureID is the server-assigned unique name of a feature.
type FeatureID string

// Strand is the genomic strand of a feature.
type Strand int8

const (
	StrandUnknown Strand = 0
	StrandForward Strand = 1
	StrandReverse Strand = -1
)

// IsReverse reports whether the feature sits on the minus strand.
func (s Strand) IsReverse() bool { return s == StrandReverse }

func (s Strand) String() string {
	switch s {
	case StrandForward:
		return "+"
	case StrandReverse:
		return "-"
	default:
		return "."
	}
}

// Kind is the sequence ontology term of a feature.
type Kind string

const (
	KindGene       Kind = "gene"
	KindTranscript Kind = "transcript"
	KindMRNA       Kind = "mRNA"
	KindExon       Kind = "exon"
	KindCDS        Kind = "CDS"
	KindWholeCDS   Kind = "wholeCDS"
)

// DBXref is a non-primary cross reference of a feature.
type DBXref struct {
	DB        string `json:"db"`
	Accession string `json:"accession"`
}

// Property is a non-reserved tag/value attribute.
type Property struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Feature is one annotation or sub-annotation held by an annotation store.
// Start and End are half-open genome coordinates.
type Feature struct {
	ID       FeatureID
	Kind     Kind
	Start    int64
	End      int64
	Strand   Strand
	ParentID FeatureID
	Children []FeatureID

	Name        string
	Symbol      string
	Description string
	Status      string
	Comments    []string
	DBXrefs     []DBXref
	Attributes  map[string]string

	ManuallySetTranslationStart bool
	ReadThroughStopCodon        bool
}

// Len returns the number of bases covered by the feature.
func (f Feature) Len() int64 { return f.End - f.Start }

// Validate checks the invariants every stored feature must hold.
func (f Feature) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("feature missing id")
	}
	if f.Start > f.End {
		return fmt.Errorf("feature %s: start %d after end %d", f.ID, f.Start, f.End)
	}
	if f.ParentID == f.ID {
		return fmt.Errorf("feature %s: parent of itself", f.ID)
	}
	return nil
}

// Clone returns a deep copy so callers never share slices or maps with a store.
func (f Feature) Clone() Feature {
	out := f
	if f.Children != nil {
		out.Children = append([]FeatureID(nil), f.Children...)
	}
	if f.Comments != nil {
		out.Comments = append([]string(nil), f.Comments...)
	}
	if f.DBXrefs != nil {
		out.DBXrefs = append([]DBXref(nil), f.DBXrefs...)
	}
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// ByLocation orders features by start, then end.
type ByLocation []Feature

func (a ByLocation) Len() int      { return len(a) }
func (a ByLocation) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByLocation) Less(i, j int) bool {
	if a[i].Start != a[j].Start {
		return a[i].Start < a[j].Start
	}
	return a[i].End < a[j].End
}

// SortByLocation stably sorts features by start ascending, then end ascending.
func SortByLocation(features []Feature) {
	sort.Stable(ByLocation(features))
}
