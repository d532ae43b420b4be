package operation

import (
	"errors"
	"fmt"
)

// ErrUnknownOperation is returned when encoding an operation without a known
// name.
var ErrUnknownOperation = errors.New("unknown edit operation")

// Name is the closed set of operations the annotation editor service accepts.
type Name int

const (
	Unknown Name = iota

	DeleteFeature
	MergeExons
	MergeTranscripts
	SplitExon
	SplitTranscript
	AddExon
	AddTranscript
	MakeIntron
	SetTranslationStart
	SetLongestORF
	SetReadthroughStopCodon
	FlipStrand
	SetExonBoundaries
	Undo
	Redo

	SetName
	SetSymbol
	SetDescription
	SetStatus
	DeleteStatus
	AddComments
	DeleteComments
	UpdateComments
	AddDBXrefs
	DeleteDBXrefs
	UpdateDBXrefs
	AddAttributes
	DeleteAttributes
	UpdateAttributes

	GetFeatures
	GetComments
	GetCannedComments
	GetDBXrefs
	GetAttributes
	GetHistory

	nameCount
)

var wireNames = [nameCount]string{
	Unknown:                 "",
	DeleteFeature:           "delete_feature",
	MergeExons:              "merge_exons",
	MergeTranscripts:        "merge_transcripts",
	SplitExon:               "split_exon",
	SplitTranscript:         "split_transcript",
	AddExon:                 "add_exon",
	AddTranscript:           "add_transcript",
	MakeIntron:              "make_intron",
	SetTranslationStart:     "set_translation_start",
	SetLongestORF:           "set_longest_orf",
	SetReadthroughStopCodon: "set_readthrough_stop_codon",
	FlipStrand:              "flip_strand",
	SetExonBoundaries:       "set_exon_boundaries",
	Undo:                    "undo",
	Redo:                    "redo",
	SetName:                 "set_name",
	SetSymbol:               "set_symbol",
	SetDescription:          "set_description",
	SetStatus:               "set_status",
	DeleteStatus:            "delete_status",
	AddComments:             "add_comments",
	DeleteComments:          "delete_comments",
	UpdateComments:          "update_comments",
	AddDBXrefs:              "add_non_primary_dbxrefs",
	DeleteDBXrefs:           "delete_non_primary_dbxrefs",
	UpdateDBXrefs:           "update_non_primary_dbxrefs",
	AddAttributes:           "add_non_reserved_properties",
	DeleteAttributes:        "delete_non_reserved_properties",
	UpdateAttributes:        "update_non_reserved_properties",
	GetFeatures:             "get_features",
	GetComments:             "get_comments",
	GetCannedComments:       "get_canned_comments",
	GetDBXrefs:              "get_non_primary_dbxrefs",
	GetAttributes:           "get_non_reserved_properties",
	GetHistory:              "get_history_for_features",
}

var byWireName = func() map[string]Name {
	m := make(map[string]Name, nameCount)
	for n := Name(1); n < nameCount; n++ {
		m[wireNames[n]] = n
	}
	return m
}()

func (n Name) String() string {
	if n <= Unknown || n >= nameCount {
		return "unknown"
	}
	return wireNames[n]
}

// ParseName maps a wire name onto the closed set; unrecognised names yield
// Unknown.
func ParseName(s string) Name {
	return byWireName[s]
}

// Names lists every known operation in declaration order.
func Names() []Name {
	out := make([]Name, 0, nameCount-1)
	for n := Name(1); n < nameCount; n++ {
		out = append(out, n)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	if n <= Unknown || n >= nameCount {
		return nil, ErrUnknownOperation
	}
	return []byte(wireNames[n]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// Unknown rather than failing.
func (n *Name) UnmarshalText(b []byte) error {
	*n = ParseName(string(b))
	return nil
}

// IsQuery reports whether the operation only reads server state.
func (n Name) IsQuery() bool {
	return n >= GetFeatures && n < nameCount
}

// Validate reports an error for names outside the closed set.
func (n Name) Validate() error {
	if n <= Unknown || n >= nameCount {
		return fmt.Errorf("operation %d: %w", int(n), ErrUnknownOperation)
	}
	return nil
}
