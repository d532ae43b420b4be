package types

import (
	"encoding/json"
	"testing"
)

func TestFlattenPreservesTreeShape(t *testing.T) {
	data := FeatureData{
		UniqueName: "T1",
		Type:       NewCVTerm(KindMRNA),
		Location:   &Location{Fmin: 100, Fmax: 400, Strand: StrandForward},
		Children: []FeatureData{
			{UniqueName: "A", Type: NewCVTerm(KindExon), Location: &Location{Fmin: 100, Fmax: 200, Strand: StrandForward}},
			{UniqueName: "B", Type: NewCVTerm(KindExon), Location: &Location{Fmin: 300, Fmax: 400, Strand: StrandForward}},
		},
		Properties: []Property{{Tag: "source", Value: "manual"}},
	}

	features, err := Flatten(data)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}
	root := features[0]
	if root.ID != "T1" || root.ParentID != "" || root.Kind != KindMRNA {
		t.Fatalf("unexpected root %+v", root)
	}
	if len(root.Children) != 2 || root.Children[0] != "A" || root.Children[1] != "B" {
		t.Fatalf("unexpected children %v", root.Children)
	}
	if features[1].ParentID != "T1" || features[2].ParentID != "T1" {
		t.Fatalf("children should point at T1: %+v %+v", features[1], features[2])
	}
	if root.Attributes["source"] != "manual" {
		t.Fatalf("expected attribute to survive flatten, got %v", root.Attributes)
	}
}

func TestFlattenRejectsInvertedInterval(t *testing.T) {
	_, err := Flatten(FeatureData{UniqueName: "X", Location: &Location{Fmin: 10, Fmax: 5}})
	if err == nil {
		t.Fatalf("expected error for start after end")
	}
}

func TestFlattenRejectsMissingLocation(t *testing.T) {
	if _, err := Flatten(FeatureData{UniqueName: "X"}); err == nil {
		t.Fatalf("expected error for missing location")
	}
}

func TestToDataRoundTripsThroughFlatten(t *testing.T) {
	exon := Feature{ID: "A", Kind: KindExon, Start: 1, End: 5, Strand: StrandReverse, ParentID: "T"}
	tx := Feature{ID: "T", Kind: KindTranscript, Start: 1, End: 5, Strand: StrandReverse, Children: []FeatureID{"A"}}

	features, err := Flatten(ToData(tx, []Feature{exon}))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(features) != 2 || features[1].ID != "A" || features[1].ParentID != "T" {
		t.Fatalf("unexpected features %+v", features)
	}
}

func TestDecodeChangeEventsHeartbeat(t *testing.T) {
	for _, body := range []string{"", "null", "  null\n", "[]"} {
		events, err := DecodeChangeEvents([]byte(body))
		if err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
		if len(events) != 0 {
			t.Fatalf("decode %q: expected no events, got %d", body, len(events))
		}
	}
}

func TestDecodeChangeEventsKeepsOrderAndUnknown(t *testing.T) {
	body := `[
		{"operation":"ADD","features":[{"uniquename":"X","location":{"fmin":1,"fmax":2,"strand":1}}]},
		{"operation":"RENAME","features":[]},
		{"operation":"DELETE","sequenceAlterationEvent":true,"features":[{"uniquename":"X"}]}
	]`
	events, err := DecodeChangeEvents([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Operation != EventAdd || events[1].Operation != EventUnknown || events[2].Operation != EventDelete {
		t.Fatalf("unexpected operations %v %v %v", events[0].Operation, events[1].Operation, events[2].Operation)
	}
	if events[1].RawOperation != "RENAME" {
		t.Fatalf("expected raw name to be kept, got %q", events[1].RawOperation)
	}
	if !events[2].SequenceAlteration {
		t.Fatalf("expected sequence alteration flag")
	}

	encoded, err := json.Marshal(events[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"operation":"RENAME","features":[]}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestSortByLocationIsStable(t *testing.T) {
	features := []Feature{
		{ID: "c", Start: 10, End: 30},
		{ID: "a", Start: 5, End: 8},
		{ID: "b", Start: 10, End: 20},
		{ID: "d", Start: 10, End: 20},
	}
	SortByLocation(features)
	got := ""
	for _, f := range features {
		got += string(f.ID)
	}
	if got != "abdc" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestListenerStateLive(t *testing.T) {
	if !Connecting.Live() || !Connected.Live() {
		t.Fatalf("connecting and connected must be live")
	}
	if Disconnected.Live() || FatallyFailed.Live() {
		t.Fatalf("terminal states must not be live")
	}
}
