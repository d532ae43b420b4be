package types

import (
	"fmt"
	"sort"
)

// CVTerm names a controlled vocabulary term on the wire.
type CVTerm struct {
	Name string `json:"name"`
	CV   struct {
		Name string `json:"name"`
	} `json:"cv"`
}

// NewCVTerm returns a sequence ontology term for kind.
func NewCVTerm(kind Kind) *CVTerm {
	t := &CVTerm{Name: string(kind)}
	t.CV.Name = "sequence"
	return t
}

// Location is the wire location of a feature.
type Location struct {
	Fmin   int64  `json:"fmin"`
	Fmax   int64  `json:"fmax"`
	Strand Strand `json:"strand"`
}

// FeatureData is the JSON representation of a feature exchanged with the
// annotation server.
type FeatureData struct {
	UniqueName  string        `json:"uniquename,omitempty"`
	Type        *CVTerm       `json:"type,omitempty"`
	Location    *Location     `json:"location,omitempty"`
	ParentID    string        `json:"parent_id,omitempty"`
	Children    []FeatureData `json:"children,omitempty"`
	Name        string        `json:"name,omitempty"`
	Symbol      string        `json:"symbol,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status,omitempty"`
	Comments    []string      `json:"comments,omitempty"`
	DBXrefs     []DBXref      `json:"dbxrefs,omitempty"`
	Properties  []Property    `json:"non_reserved_properties,omitempty"`

	ManuallySetTranslationStart bool `json:"manually_set_translation_start,omitempty"`
	ReadThroughStopCodon        bool `json:"readthrough_stop_codon,omitempty"`
}

// Flatten converts a wire feature tree into store features in pre-order. The
// root keeps the parent id carried on the wire; descendants point at their
// enclosing feature.
func Flatten(data FeatureData) ([]Feature, error) {
	var out []Feature
	if err := flatten(data, FeatureID(data.ParentID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(data FeatureData, parent FeatureID, out *[]Feature) error {
	if data.UniqueName == "" {
		return fmt.Errorf("flatten feature: missing uniquename")
	}
	if data.Location == nil {
		return fmt.Errorf("flatten feature %s: missing location", data.UniqueName)
	}

	f := Feature{
		ID:          FeatureID(data.UniqueName),
		Start:       data.Location.Fmin,
		End:         data.Location.Fmax,
		Strand:      data.Location.Strand,
		ParentID:    parent,
		Name:        data.Name,
		Symbol:      data.Symbol,
		Description: data.Description,
		Status:      data.Status,
		Comments:    append([]string(nil), data.Comments...),
		DBXrefs:     append([]DBXref(nil), data.DBXrefs...),

		ManuallySetTranslationStart: data.ManuallySetTranslationStart,
		ReadThroughStopCodon:        data.ReadThroughStopCodon,
	}
	if data.Type != nil {
		f.Kind = Kind(data.Type.Name)
	}
	if len(data.Properties) > 0 {
		f.Attributes = make(map[string]string, len(data.Properties))
		for _, p := range data.Properties {
			f.Attributes[p.Tag] = p.Value
		}
	}
	if err := f.Validate(); err != nil {
		return err
	}

	idx := len(*out)
	*out = append(*out, f)
	for _, child := range data.Children {
		(*out)[idx].Children = append((*out)[idx].Children, FeatureID(child.UniqueName))
		if err := flatten(child, f.ID, out); err != nil {
			return err
		}
	}
	return nil
}

// ToData converts a feature back into wire form. children supplies the
// already-resolved sub-features; pass nil to omit them.
func ToData(f Feature, children []Feature) FeatureData {
	data := FeatureData{
		UniqueName:  string(f.ID),
		Location:    &Location{Fmin: f.Start, Fmax: f.End, Strand: f.Strand},
		ParentID:    string(f.ParentID),
		Name:        f.Name,
		Symbol:      f.Symbol,
		Description: f.Description,
		Status:      f.Status,
		Comments:    f.Comments,
		DBXrefs:     f.DBXrefs,

		ManuallySetTranslationStart: f.ManuallySetTranslationStart,
		ReadThroughStopCodon:        f.ReadThroughStopCodon,
	}
	if f.Kind != "" {
		data.Type = NewCVTerm(f.Kind)
	}
	if len(f.Attributes) > 0 {
		tags := make([]string, 0, len(f.Attributes))
		for tag := range f.Attributes {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			data.Properties = append(data.Properties, Property{Tag: tag, Value: f.Attributes[tag]})
		}
	}
	for _, c := range children {
		data.Children = append(data.Children, ToData(c, nil))
	}
	return data
}
