package operation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/example/annotation-sync/internal/types"
)

// Location overrides the coordinates of a referenced feature. Unset bounds
// are omitted from the request.
type Location struct {
	Fmin *int64 `json:"fmin,omitempty"`
	Fmax *int64 `json:"fmax,omitempty"`
}

// Span builds a location with both bounds set.
func Span(fmin, fmax int64) *Location {
	return &Location{Fmin: &fmin, Fmax: &fmax}
}

// At builds a location with only fmin set.
func At(fmin int64) *Location {
	return &Location{Fmin: &fmin}
}

// FeatureRef is one element of an edit request's feature list: a feature id
// plus the parameters the operation needs. When Feature is set the ref is
// encoded as that full feature instead.
type FeatureRef struct {
	ID                   types.FeatureID `json:"uniquename,omitempty"`
	Location             *Location       `json:"location,omitempty"`
	ReadthroughStopCodon *bool           `json:"readthrough_stop_codon,omitempty"`

	Name        *string `json:"name,omitempty"`
	Symbol      *string `json:"symbol,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`

	Comments    []string `json:"comments,omitempty"`
	OldComments []string `json:"old_comments,omitempty"`
	NewComments []string `json:"new_comments,omitempty"`

	DBXrefs    []types.DBXref `json:"dbxrefs,omitempty"`
	OldDBXrefs []types.DBXref `json:"old_dbxrefs,omitempty"`
	NewDBXrefs []types.DBXref `json:"new_dbxrefs,omitempty"`

	Properties    []types.Property `json:"non_reserved_properties,omitempty"`
	OldProperties []types.Property `json:"old_non_reserved_properties,omitempty"`
	NewProperties []types.Property `json:"new_non_reserved_properties,omitempty"`

	Feature *types.FeatureData `json:"-"`
}

type featureRefAlias FeatureRef

// MarshalJSON implements json.Marshaler.
func (r FeatureRef) MarshalJSON() ([]byte, error) {
	if r.Feature != nil {
		return json.Marshal(r.Feature)
	}
	return json.Marshal(featureRefAlias(r))
}

// Ref references a feature by id only.
func Ref(id types.FeatureID) FeatureRef {
	return FeatureRef{ID: id}
}

// Refs references each id in order.
func Refs(ids ...types.FeatureID) []FeatureRef {
	out := make([]FeatureRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, Ref(id))
	}
	return out
}

// WithFeature wraps full feature data.
func WithFeature(data types.FeatureData) FeatureRef {
	return FeatureRef{ID: types.FeatureID(data.UniqueName), Feature: &data}
}

// EditOperation is a named, parameterised command for one track.
type EditOperation struct {
	Name     Name
	Track    types.TrackID
	Features []FeatureRef
	Confirm  bool
}

// New builds an operation.
func New(name Name, track types.TrackID, refs ...FeatureRef) EditOperation {
	return EditOperation{Name: name, Track: track, Features: refs}
}

// IDs returns the referenced feature ids, skipping refs without one.
func (op EditOperation) IDs() []types.FeatureID {
	out := make([]types.FeatureID, 0, len(op.Features))
	for _, r := range op.Features {
		if r.ID != "" {
			out = append(out, r.ID)
		}
	}
	return out
}

// Confirmed returns a copy flagged for resubmission after the user agreed to
// a confirmation prompt. The feature list is reused unchanged.
func (op EditOperation) Confirmed() EditOperation {
	op.Confirm = true
	return op
}

type requestWire struct {
	Track     types.TrackID `json:"track"`
	Features  []FeatureRef  `json:"features"`
	Operation Name          `json:"operation"`
	Confirm   bool          `json:"confirm,omitempty"`
}

// MarshalJSON encodes the request body sent to the editor service.
func (op EditOperation) MarshalJSON() ([]byte, error) {
	if err := op.Name.Validate(); err != nil {
		return nil, err
	}
	features := op.Features
	if features == nil {
		features = []FeatureRef{}
	}
	return json.Marshal(requestWire{
		Track:     op.Track,
		Features:  features,
		Operation: op.Name,
		Confirm:   op.Confirm,
	})
}

// UnmarshalJSON decodes a request body; used by tools that inspect traffic.
func (op *EditOperation) UnmarshalJSON(data []byte) error {
	var wire struct {
		Track     types.TrackID     `json:"track"`
		Features  []json.RawMessage `json:"features"`
		Operation Name              `json:"operation"`
		Confirm   bool              `json:"confirm"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode edit operation: %w", err)
	}
	refs := make([]FeatureRef, 0, len(wire.Features))
	for _, raw := range wire.Features {
		var ref featureRefAlias
		if err := json.Unmarshal(raw, &ref); err != nil {
			return fmt.Errorf("decode feature ref: %w", err)
		}
		refs = append(refs, FeatureRef(ref))
	}
	*op = EditOperation{Name: wire.Operation, Track: wire.Track, Features: refs, Confirm: wire.Confirm}
	return nil
}

// Response is the editor service's reply.
type Response struct {
	Alert    string              `json:"alert,omitempty"`
	Confirm  string              `json:"confirm,omitempty"`
	Error    string              `json:"error,omitempty"`
	Features []types.FeatureData `json:"features,omitempty"`
}

// DecodeResponse parses a response body; an empty body is a bare success.
func DecodeResponse(body []byte) (Response, error) {
	var resp Response
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return resp, nil
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return Response{}, fmt.Errorf("decode editor response: %w", err)
	}
	return resp, nil
}
