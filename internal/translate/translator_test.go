package translate

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/store"
	"github.com/example/annotation-sync/internal/types"
)

const track = types.TrackID("Annotations-chr1")

func transcript(id string, strand types.Strand, exons map[string][2]int64, order ...string) types.FeatureData {
	data := types.FeatureData{
		UniqueName: id,
		Type:       types.NewCVTerm(types.KindMRNA),
		Location:   &types.Location{Strand: strand},
	}
	for i, exonID := range order {
		span := exons[exonID]
		if i == 0 || span[0] < data.Location.Fmin {
			data.Location.Fmin = span[0]
		}
		if span[1] > data.Location.Fmax {
			data.Location.Fmax = span[1]
		}
		data.Children = append(data.Children, types.FeatureData{
			UniqueName: exonID,
			Type:       types.NewCVTerm(types.KindExon),
			Location:   &types.Location{Fmin: span[0], Fmax: span[1], Strand: strand},
		})
	}
	return data
}

// fixture holds T1 (E1, E2, E3) and T2 (F1) on the forward strand and T3 (R1)
// on the reverse strand.
func fixture(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(track)
	trees := []types.FeatureData{
		transcript("T1", types.StrandForward, map[string][2]int64{"E1": {100, 200}, "E2": {300, 400}, "E3": {500, 600}}, "E1", "E2", "E3"),
		transcript("T2", types.StrandForward, map[string][2]int64{"F1": {700, 800}}, "F1"),
		transcript("T3", types.StrandReverse, map[string][2]int64{"R1": {100, 200}}, "R1"),
	}
	for _, data := range trees {
		nodes, err := types.Flatten(data)
		if err != nil {
			t.Fatalf("flatten %s: %v", data.UniqueName, err)
		}
		st.InsertTree(nodes)
	}
	return st
}

func selected(t *testing.T, st *store.Store, ids ...types.FeatureID) []Record {
	t.Helper()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		f, ok := st.Get(id)
		if !ok {
			t.Fatalf("fixture missing %s", id)
		}
		out = append(out, Record{Feature: f, Track: track})
	}
	return out
}

func wire(t *testing.T, op operation.EditOperation) string {
	t.Helper()
	b, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func coord(v int64) *int64 { return &v }

type prompts struct {
	answer bool
	seen   []string
}

func (p *prompts) Confirm(prompt string) bool {
	p.seen = append(p.seen, prompt)
	return p.answer
}

func TestMergeExonsOfOneTranscript(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Merge(selected(t, st, "E2", "E1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"E1"},{"uniquename":"E2"}],"operation":"merge_exons"}`)
}

func TestMergeExtremesOnly(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Merge(selected(t, st, "E3", "E1", "E2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeExons)
	assert.Equal(t, op.IDs(), []types.FeatureID{"E1", "E3"})
}

func TestMergeAcrossTranscripts(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Merge(selected(t, st, "F1", "E3"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeTranscripts)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1", "T2"})

	op, ok = tr.Merge(selected(t, st, "T1", "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeTranscripts)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1", "T2"})
}

func TestMergeNeedsTwoFeaturesOnOneStrand(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	_, ok := tr.Merge(selected(t, st, "E1"))
	assert.Equal(t, ok, false)
	_, ok = tr.Merge(selected(t, st, "E1", "R1"))
	assert.Equal(t, ok, false)
}

func TestMergeIgnoresOtherTracks(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	records := selected(t, st, "E1")
	records = append(records, Record{Feature: types.Feature{ID: "X", Start: 10, End: 20, Strand: types.StrandForward}, Track: "blat"})
	_, ok := tr.Merge(records)
	assert.Equal(t, ok, false)
}

func TestSplitExonLeavesOneBaseGap(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Split(selected(t, st, "E1"), coord(150))
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"E1","location":{"fmin":151,"fmax":150}}],"operation":"split_exon"}`)

	_, ok = tr.Split(selected(t, st, "E1"), nil)
	assert.Equal(t, ok, false)
}

func TestSplitTranscriptBetweenSiblings(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Split(selected(t, st, "E2", "E1"), nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.SplitTranscript)
	assert.Equal(t, op.IDs(), []types.FeatureID{"E1", "E2"})

	_, ok = tr.Split(selected(t, st, "E1", "F1"), nil)
	assert.Equal(t, ok, false)
}

func TestSplitOfThreeIsNoop(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	_, ok := tr.Split(selected(t, st, "E1", "E2", "E3"), coord(150))
	assert.Equal(t, ok, false)
}

func TestMakeIntronNeedsSubfeature(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.MakeIntron(selected(t, st, "E2"), coord(350))
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"E2","location":{"fmin":350}}],"operation":"make_intron"}`)

	_, ok = tr.MakeIntron(selected(t, st, "T1"), coord(350))
	assert.Equal(t, ok, false)
}

func TestSetTranslationStartTargetsTranscript(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.SetTranslationStart(selected(t, st, "E1"), coord(120))
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"T1","location":{"fmin":120}}],"operation":"set_translation_start"}`)
}

func TestFlipStrandDeduplicatesTopLevel(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.FlipStrand(selected(t, st, "F1", "E1", "E2", "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.FlipStrand)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T2", "T1"})

	op, _ = tr.Undo(selected(t, st, "E3"))
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1"})
	op, _ = tr.History(selected(t, st, "R1", "E1"))
	assert.Equal(t, op.Name, operation.GetHistory)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T3", "T1"})
}

func TestReadthroughTogglesRootFlag(t *testing.T) {
	st := fixture(t)
	root, _ := st.Get("T2")
	root.ReadThroughStopCodon = true
	st.Replace(root)
	tr := New(track, st, nil)

	op, ok := tr.SetReadthroughStopCodon(selected(t, st, "E1", "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"T1","readthrough_stop_codon":true},{"uniquename":"T2","readthrough_stop_codon":false}],"operation":"set_readthrough_stop_codon"}`)
}

func TestDeleteConfirmsTopLevel(t *testing.T) {
	st := fixture(t)
	declined := &prompts{answer: false}
	tr := New(track, st, declined)

	op, ok := tr.Delete(selected(t, st, "T2", "E1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.IDs(), []types.FeatureID{"E1"})
	assert.Equal(t, len(declined.seen), 1)

	_, ok = tr.Delete(selected(t, st, "T2"))
	assert.Equal(t, ok, false)

	tr = New(track, st, &prompts{answer: true})
	op, ok = tr.Delete(selected(t, st, "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T2"})
}

func TestDuplicateCopiesTreesAndGathersLooseExons(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Duplicate(selected(t, st, "T2", "E3", "E1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.AddTranscript)
	assert.Equal(t, len(op.Features), 2)

	whole := op.Features[0].Feature
	assert.Equal(t, whole.UniqueName, "")
	assert.Equal(t, whole.Type.Name, string(types.KindTranscript))
	assert.Equal(t, len(whole.Children), 1)
	assert.Equal(t, whole.Children[0].UniqueName, "")

	loose := op.Features[1].Feature
	assert.Equal(t, *loose.Location, types.Location{Fmin: 100, Fmax: 600, Strand: types.StrandForward})
	assert.Equal(t, len(loose.Children), 2)
}

func evidenceParent() *types.Feature {
	return &types.Feature{ID: "match1", Kind: "match", Start: 1000, End: 2000, Strand: types.StrandForward, Name: "est-42"}
}

func TestCreateFromEvidenceGroupsByParent(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)
	parent := evidenceParent()

	evidence := []Record{
		{Feature: types.Feature{ID: "hsp2", Kind: "match_part", Start: 1500, End: 1600, Strand: types.StrandForward, ParentID: "match1"}, Track: "est", Parent: parent},
		{Feature: types.Feature{ID: "hsp1", Kind: "match_part", Start: 1100, End: 1200, Strand: types.StrandForward, ParentID: "match1"}, Track: "est", Parent: parent},
		{Feature: types.Feature{ID: "gene9", Start: 3000, End: 3500, Strand: types.StrandReverse}, Track: "genes", Subfeatures: []types.Feature{{ID: "x", Start: 3000, End: 3100}}},
	}
	op, ok := tr.CreateFromEvidence(evidence)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.AddTranscript)
	assert.Equal(t, len(op.Features), 2)

	grouped := op.Features[0].Feature
	assert.Equal(t, *grouped.Location, types.Location{Fmin: 1100, Fmax: 1600, Strand: types.StrandForward})
	assert.Equal(t, grouped.Name, "est-42")
	assert.Equal(t, grouped.Type.Name, string(types.KindTranscript))
	assert.Equal(t, len(grouped.Children), 2)
	assert.Equal(t, grouped.Children[0].Location.Fmin, int64(1100))

	whole := op.Features[1].Feature
	assert.Equal(t, *whole.Location, types.Location{Fmin: 3000, Fmax: 3500, Strand: types.StrandReverse})
	assert.Equal(t, len(whole.Children), 0)
}

func TestCreateFromEvidenceMixedStrandsNeedsConsent(t *testing.T) {
	st := fixture(t)
	parent := evidenceParent()
	evidence := []Record{
		{Feature: types.Feature{ID: "hsp1", Start: 1100, End: 1200, Strand: types.StrandForward, ParentID: "match1"}, Track: "est", Parent: parent},
		{Feature: types.Feature{ID: "hsp2", Start: 1500, End: 1600, Strand: types.StrandReverse, ParentID: "match1"}, Track: "est", Parent: parent},
	}

	declined := &prompts{}
	_, ok := New(track, st, declined).CreateFromEvidence(evidence)
	assert.Equal(t, ok, false)
	assert.Equal(t, declined.seen, []string{promptMixedStrands})

	op, ok := New(track, st, &prompts{answer: true}).CreateFromEvidence(evidence)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Features[0].Feature.Location.Strand, types.StrandForward)
}

func TestAddToAnnotationOppositeStrand(t *testing.T) {
	st := fixture(t)
	annotations := selected(t, st, "E2")
	evidence := []Record{
		{Feature: types.Feature{ID: "m", Start: 900, End: 1000, Strand: types.StrandReverse}, Track: "est", Subfeatures: []types.Feature{
			{ID: "m2", Kind: "match_part", Start: 950, End: 1000, Strand: types.StrandReverse},
			{ID: "m1", Kind: "match_part", Start: 900, End: 920, Strand: types.StrandReverse},
			{ID: "mc", Kind: types.KindWholeCDS, Start: 900, End: 1000, Strand: types.StrandReverse},
		}},
	}

	declined := &prompts{}
	_, ok := New(track, st, declined).AddToAnnotation(annotations, evidence)
	assert.Equal(t, ok, false)
	assert.Equal(t, declined.seen, []string{promptOppositeStrand})

	op, ok := New(track, st, &prompts{answer: true}).AddToAnnotation(annotations, evidence)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.AddExon)
	assert.Equal(t, len(op.Features), 3)
	assert.Equal(t, op.Features[0].ID, types.FeatureID("T1"))
	for _, ref := range op.Features[1:] {
		assert.Equal(t, ref.Feature.Type.Name, string(types.KindExon))
		assert.Equal(t, ref.Feature.Location.Strand, types.StrandForward)
	}
	assert.Equal(t, op.Features[1].Feature.Location.Fmin, int64(900))
}

func TestAddToAnnotationTopLevelWithoutSubfeatures(t *testing.T) {
	st := fixture(t)
	confirm := &prompts{}
	evidence := []Record{{Feature: types.Feature{ID: "orf", Start: 420, End: 480, Strand: types.StrandForward}, Track: "orfs"}}

	op, ok := New(track, st, confirm).AddToAnnotation(selected(t, st, "E1"), evidence)
	assert.Equal(t, ok, true)
	assert.Equal(t, len(confirm.seen), 0)
	assert.Equal(t, *op.Features[1].Feature.Location, types.Location{Fmin: 420, Fmax: 480, Strand: types.StrandForward})
}

func TestSetEnds(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)
	parent := evidenceParent()

	forwardEv := []Record{{Feature: types.Feature{ID: "h", Start: 90, End: 150, Strand: types.StrandForward, ParentID: "match1"}, Track: "est", Parent: parent}}
	reverseEv := []Record{{Feature: types.Feature{ID: "h", Start: 50, End: 180, Strand: types.StrandReverse, ParentID: "match1"}, Track: "est", Parent: parent}}

	cases := []struct {
		name     string
		annot    types.FeatureID
		evidence []Record
		end      End
		fmin     int64
		fmax     int64
	}{
		{"five prime forward", "E1", forwardEv, FivePrime, 90, 200},
		{"three prime forward", "E1", forwardEv, ThreePrime, 100, 150},
		{"five prime reverse", "R1", reverseEv, FivePrime, 100, 180},
		{"three prime reverse", "R1", reverseEv, ThreePrime, 50, 200},
		{"both ends", "E1", forwardEv, BothEnds, 90, 150},
	}
	for _, c := range cases {
		op, ok := tr.SetEnd(selected(t, st, c.annot), c.evidence, c.end)
		if !ok {
			t.Fatalf("%s: expected operation", c.name)
		}
		assert.Equal(t, op.Name, operation.SetExonBoundaries)
		assert.Equal(t, op.Features[0].ID, c.annot)
		assert.Equal(t, *op.Features[0].Location.Fmin, c.fmin)
		assert.Equal(t, *op.Features[0].Location.Fmax, c.fmax)
	}

	_, ok := tr.SetFivePrimeEnd(selected(t, st, "E1"), reverseEv)
	assert.Equal(t, ok, false)
	_, ok = tr.SetFivePrimeEnd(selected(t, st, "T1"), forwardEv)
	assert.Equal(t, ok, false)
}

func TestResize(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Build(CmdResize, Input{Annotations: selected(t, st, "E2"), Resize: &Resize{Fmin: 280, Fmax: 410}})
	assert.Equal(t, ok, true)
	assert.Equal(t, wire(t, op), `{"track":"Annotations-chr1","features":[{"uniquename":"E2","location":{"fmin":280,"fmax":410}}],"operation":"set_exon_boundaries"}`)

	_, ok = tr.Build(CmdResize, Input{Annotations: selected(t, st, "E2"), Resize: &Resize{Fmin: 410, Fmax: 410}})
	assert.Equal(t, ok, false)
}

func TestBuildFromSelection(t *testing.T) {
	st := fixture(t)
	tr := New(track, st, nil)

	var sel Selection
	sel.Set(append(selected(t, st, "E1", "E2"), Record{Feature: types.Feature{ID: "ev"}, Track: "est"}))
	in := sel.Input(track, nil)
	assert.Equal(t, len(in.Annotations), 2)
	assert.Equal(t, len(in.Evidence), 1)

	op, ok := tr.Build(CmdMerge, in)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeExons)

	_, ok = tr.Build(CmdUnknown, in)
	assert.Equal(t, ok, false)

	sel.Clear()
	assert.Equal(t, len(sel.Records()), 0)
}

func TestParseCommand(t *testing.T) {
	for c, name := range commandNames {
		parsed, err := ParseCommand(name)
		assert.Equal(t, err, nil)
		assert.Equal(t, parsed, c)
	}
	_, err := ParseCommand("explode")
	assert.NotEqual(t, err, nil)
}

// geneFixture loads T1 and T2 the way the server sends them: as roots naming
// gene G1, which is never loaded into the store.
func geneFixture(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(track)
	for _, data := range []types.FeatureData{
		transcript("T1", types.StrandForward, map[string][2]int64{"E1": {100, 200}, "E2": {300, 400}}, "E1", "E2"),
		transcript("T2", types.StrandForward, map[string][2]int64{"F1": {700, 800}}, "F1"),
	} {
		data.ParentID = "G1"
		nodes, err := types.Flatten(data)
		if err != nil {
			t.Fatalf("flatten %s: %v", data.UniqueName, err)
		}
		st.InsertTree(nodes)
	}
	return st
}

func TestTranscriptsNamingUnloadedGeneAreTopLevel(t *testing.T) {
	st := geneFixture(t)
	tr := New(track, st, nil)

	op, ok := tr.Merge(selected(t, st, "T1", "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeTranscripts)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1", "T2"})

	op, ok = tr.Merge(selected(t, st, "T1", "F1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeTranscripts)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1", "T2"})

	op, ok = tr.Merge(selected(t, st, "E2", "E1"))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.Name, operation.MergeExons)

	op, ok = tr.SetTranslationStart(selected(t, st, "T1"), coord(150))
	assert.Equal(t, ok, true)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T1"})

	_, ok = tr.Split(selected(t, st, "T1", "T2"), nil)
	assert.Equal(t, ok, false)
	_, ok = tr.MakeIntron(selected(t, st, "T1"), coord(150))
	assert.Equal(t, ok, false)
	_, ok = tr.SetExonBoundaries(selected(t, st, "T2"), 650, 820)
	assert.Equal(t, ok, false)

	p := &prompts{answer: true}
	op, ok = New(track, st, p).Delete(selected(t, st, "T2"))
	assert.Equal(t, ok, true)
	assert.Equal(t, len(p.seen), 1)
	assert.Equal(t, op.IDs(), []types.FeatureID{"T2"})

	roots := st.Roots()
	assert.Equal(t, len(roots), 2)
	assert.Equal(t, roots[0].ID, types.FeatureID("T1"))
}

func TestSetEndRejectsTranscriptNamingUnloadedGene(t *testing.T) {
	st := geneFixture(t)
	tr := New(track, st, nil)
	parent := evidenceParent()
	ev := []Record{{Feature: types.Feature{ID: "h", Start: 90, End: 150, Strand: types.StrandForward, ParentID: "match1"}, Track: "est", Parent: parent}}

	_, ok := tr.SetEnd(selected(t, st, "T1"), ev, BothEnds)
	assert.Equal(t, ok, false)

	op, ok := tr.SetEnd(selected(t, st, "E1"), ev, BothEnds)
	assert.Equal(t, ok, true)
	assert.Equal(t, op.IDs(), []types.FeatureID{"E1"})

	loose := []Record{{Feature: types.Feature{ID: "h", Start: 90, End: 150, Strand: types.StrandForward, ParentID: "match1"}, Track: "est"}}
	_, ok = tr.SetEnd(selected(t, st, "E1"), loose, BothEnds)
	assert.Equal(t, ok, false)
}
