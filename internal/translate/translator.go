package translate

import (
	"fmt"

	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/types"
)

// Lookup resolves features of the translator's own track.
type Lookup interface {
	Get(id types.FeatureID) (types.Feature, bool)
	Children(id types.FeatureID) []types.Feature
	Root(id types.FeatureID) (types.Feature, bool)
}

// Confirmer asks the user to agree to a warning before an operation is built.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to a Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Record is one selected feature as the UI sees it. Parent and Subfeatures
// are filled for evidence tracks, whose features are not held in a store.
type Record struct {
	Feature     types.Feature
	Track       types.TrackID
	Parent      *types.Feature
	Subfeatures []types.Feature
}

// HasParent reports whether the record is a sub-feature. A wire parent id
// alone does not count: transcripts name their gene without the gene being
// loaded.
func (r Record) HasParent() bool {
	return r.Parent != nil
}

const (
	promptOppositeStrand = "Adding features of opposite strand. Continue?"
	promptMixedStrands   = "Creating annotation with features on both strands. Continue?"
)

// Translator turns a selection into edit operations for one track. It never
// performs network calls; every method returns ok=false when the selection
// does not qualify.
type Translator struct {
	track   types.TrackID
	lookup  Lookup
	confirm Confirmer
}

// New constructs a Translator. A nil Confirmer declines every prompt.
func New(track types.TrackID, lookup Lookup, confirm Confirmer) *Translator {
	return &Translator{track: track, lookup: lookup, confirm: confirm}
}

// Track returns the annotation track the translator builds operations for.
func (t *Translator) Track() types.TrackID { return t.track }

func (t *Translator) agree(prompt string) bool {
	return t.confirm != nil && t.confirm.Confirm(prompt)
}

// annotations keeps the features selected on the translator's track.
func (t *Translator) annotations(records []Record) []types.Feature {
	out := make([]types.Feature, 0, len(records))
	for _, r := range records {
		if r.Track == t.track {
			out = append(out, r.Feature)
		}
	}
	return out
}

func (t *Translator) op(name operation.Name, refs ...operation.FeatureRef) (operation.EditOperation, bool) {
	return operation.New(name, t.track, refs...), true
}

func noop() (operation.EditOperation, bool) {
	return operation.EditOperation{}, false
}

func sorted(features []types.Feature) []types.Feature {
	out := append([]types.Feature(nil), features...)
	types.SortByLocation(out)
	return out
}

func singleStrand(features []types.Feature) bool {
	for _, f := range features[1:] {
		if f.Strand != features[0].Strand {
			return false
		}
	}
	return true
}

// parent resolves the owning feature through the store. A parent id that
// the store does not hold leaves f top-level.
func (t *Translator) parent(f types.Feature) (types.Feature, bool) {
	if f.ParentID == "" {
		return types.Feature{}, false
	}
	return t.lookup.Get(f.ParentID)
}

func (t *Translator) hasParent(f types.Feature) bool {
	_, ok := t.parent(f)
	return ok
}

func (t *Translator) owner(f types.Feature) types.FeatureID {
	if p, ok := t.parent(f); ok {
		return p.ID
	}
	return f.ID
}

func (t *Translator) siblings(a, b types.Feature) bool {
	pa, ok := t.parent(a)
	if !ok {
		return false
	}
	pb, ok := t.parent(b)
	return ok && pa.ID == pb.ID
}

// Merge joins the outermost selected features. Exons of one transcript merge
// as exons; anything else merges the owning transcripts.
func (t *Translator) Merge(records []Record) (operation.EditOperation, bool) {
	features := t.annotations(records)
	if len(features) < 2 || !singleStrand(features) {
		return noop()
	}
	features = sorted(features)
	first, last := features[0], features[len(features)-1]
	if t.siblings(first, last) {
		return t.op(operation.MergeExons, operation.Refs(first.ID, last.ID)...)
	}
	return t.op(operation.MergeTranscripts, operation.Refs(t.owner(first), t.owner(last))...)
}

// Split cuts one exon at coord, or splits a transcript between two of its
// exons.
func (t *Translator) Split(records []Record, coord *int64) (operation.EditOperation, bool) {
	features := t.annotations(records)
	switch len(features) {
	case 1:
		if coord == nil {
			return noop()
		}
		// The gap left between the two new exons is [coord, coord+1).
		return t.op(operation.SplitExon, operation.FeatureRef{
			ID:       features[0].ID,
			Location: operation.Span(*coord+1, *coord),
		})
	case 2:
		features = sorted(features)
		if !t.siblings(features[0], features[1]) {
			return noop()
		}
		return t.op(operation.SplitTranscript, operation.Refs(features[0].ID, features[1].ID)...)
	}
	return noop()
}

// MakeIntron cuts an intron into a single exon at coord.
func (t *Translator) MakeIntron(records []Record, coord *int64) (operation.EditOperation, bool) {
	features := t.annotations(records)
	if len(features) != 1 || !t.hasParent(features[0]) || coord == nil {
		return noop()
	}
	return t.op(operation.MakeIntron, operation.FeatureRef{ID: features[0].ID, Location: operation.At(*coord)})
}

// SetTranslationStart moves the CDS start of the owning transcript to coord.
func (t *Translator) SetTranslationStart(records []Record, coord *int64) (operation.EditOperation, bool) {
	features := t.annotations(records)
	if len(features) != 1 || coord == nil {
		return noop()
	}
	return t.op(operation.SetTranslationStart, operation.FeatureRef{ID: t.owner(features[0]), Location: operation.At(*coord)})
}

// SetExonBoundaries resizes one sub-feature to [fmin, fmax).
func (t *Translator) SetExonBoundaries(records []Record, fmin, fmax int64) (operation.EditOperation, bool) {
	features := t.annotations(records)
	if len(features) != 1 || !t.hasParent(features[0]) || fmin >= fmax {
		return noop()
	}
	return t.op(operation.SetExonBoundaries, operation.FeatureRef{ID: features[0].ID, Location: operation.Span(fmin, fmax)})
}

// topLevel resolves each feature to its top-level ancestor in the store,
// de-duplicated in first-seen order. Features unknown to the store stand for
// themselves.
func (t *Translator) topLevel(features []types.Feature) []types.Feature {
	seen := make(map[types.FeatureID]struct{}, len(features))
	out := make([]types.Feature, 0, len(features))
	for _, f := range features {
		root, ok := t.lookup.Root(f.ID)
		if !ok {
			root = f
		}
		if _, dup := seen[root.ID]; dup {
			continue
		}
		seen[root.ID] = struct{}{}
		out = append(out, root)
	}
	return out
}

func (t *Translator) isTopLevel(f types.Feature) bool {
	return !t.hasParent(f)
}

func ids(features []types.Feature) []types.FeatureID {
	out := make([]types.FeatureID, 0, len(features))
	for _, f := range features {
		out = append(out, f.ID)
	}
	return out
}

func (t *Translator) onTopLevel(name operation.Name, records []Record) (operation.EditOperation, bool) {
	roots := t.topLevel(t.annotations(records))
	if len(roots) == 0 {
		return noop()
	}
	return t.op(name, operation.Refs(ids(roots)...)...)
}

func (t *Translator) SetLongestORF(records []Record) (operation.EditOperation, bool) {
	return t.onTopLevel(operation.SetLongestORF, records)
}

func (t *Translator) FlipStrand(records []Record) (operation.EditOperation, bool) {
	return t.onTopLevel(operation.FlipStrand, records)
}

func (t *Translator) Undo(records []Record) (operation.EditOperation, bool) {
	return t.onTopLevel(operation.Undo, records)
}

func (t *Translator) Redo(records []Record) (operation.EditOperation, bool) {
	return t.onTopLevel(operation.Redo, records)
}

func (t *Translator) History(records []Record) (operation.EditOperation, bool) {
	return t.onTopLevel(operation.GetHistory, records)
}

// SetReadthroughStopCodon toggles the readthrough flag of each top-level
// feature.
func (t *Translator) SetReadthroughStopCodon(records []Record) (operation.EditOperation, bool) {
	roots := t.topLevel(t.annotations(records))
	if len(roots) == 0 {
		return noop()
	}
	refs := make([]operation.FeatureRef, 0, len(roots))
	for _, root := range roots {
		flag := !root.ReadThroughStopCodon
		refs = append(refs, operation.FeatureRef{ID: root.ID, ReadthroughStopCodon: &flag})
	}
	return t.op(operation.SetReadthroughStopCodon, refs...)
}

// Delete removes the selected features. Deleting a top-level feature takes
// its whole tree with it and needs the user's consent.
func (t *Translator) Delete(records []Record) (operation.EditOperation, bool) {
	features := t.annotations(records)
	seen := make(map[types.FeatureID]struct{}, len(features))
	refs := make([]operation.FeatureRef, 0, len(features))
	for _, f := range features {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		if t.isTopLevel(f) && !t.agree(fmt.Sprintf("Delete %s and all of its sub-features?", label(f))) {
			continue
		}
		refs = append(refs, operation.Ref(f.ID))
	}
	if len(refs) == 0 {
		return noop()
	}
	return t.op(operation.DeleteFeature, refs...)
}

func label(f types.Feature) string {
	if f.Name != "" {
		return f.Name
	}
	return string(f.ID)
}

// detach strips server identity from a feature tree so it can be submitted
// as a new feature.
func detach(data types.FeatureData) types.FeatureData {
	data.UniqueName = ""
	data.ParentID = ""
	children := make([]types.FeatureData, 0, len(data.Children))
	for _, c := range data.Children {
		children = append(children, detach(c))
	}
	if len(children) == 0 {
		children = nil
	}
	data.Children = children
	return data
}

func bounds(features []types.Feature) (start, end int64) {
	start, end = features[0].Start, features[0].End
	for _, f := range features[1:] {
		if f.Start < start {
			start = f.Start
		}
		if f.End > end {
			end = f.End
		}
	}
	return start, end
}

// Duplicate copies the selection as new transcripts. Whole annotations keep
// their children; loose sub-features are gathered into one transcript.
func (t *Translator) Duplicate(records []Record) (operation.EditOperation, bool) {
	var refs []operation.FeatureRef
	var loose []types.Feature
	seen := make(map[types.FeatureID]struct{})
	for _, f := range t.annotations(records) {
		if !t.isTopLevel(f) {
			loose = append(loose, f)
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		copied := f
		copied.Kind = types.KindTranscript
		refs = append(refs, operation.WithFeature(detach(types.ToData(copied, t.lookup.Children(f.ID)))))
	}
	if len(loose) > 0 {
		start, end := bounds(loose)
		transcript := types.Feature{Kind: types.KindTranscript, Start: start, End: end, Strand: loose[0].Strand}
		refs = append(refs, operation.WithFeature(detach(types.ToData(transcript, loose))))
	}
	if len(refs) == 0 {
		return noop()
	}
	return t.op(operation.AddTranscript, refs...)
}

type evidenceGroup struct {
	parent   *types.Feature
	features []types.Feature
	whole    *Record
}

// CreateFromEvidence builds new transcripts from evidence features. Sibling
// sub-features are grouped under one transcript shaped like their parent;
// top-level evidence becomes a transcript of its own extent.
func (t *Translator) CreateFromEvidence(evidence []Record) (operation.EditOperation, bool) {
	var order []types.FeatureID
	groups := make(map[types.FeatureID]*evidenceGroup)
	for i := range evidence {
		r := evidence[i]
		if r.Parent == nil {
			if _, dup := groups[r.Feature.ID]; dup {
				continue
			}
			order = append(order, r.Feature.ID)
			groups[r.Feature.ID] = &evidenceGroup{whole: &evidence[i]}
			continue
		}
		g, ok := groups[r.Parent.ID]
		if !ok {
			order = append(order, r.Parent.ID)
			g = &evidenceGroup{parent: r.Parent}
			groups[r.Parent.ID] = g
		}
		g.features = append(g.features, r.Feature)
	}

	refs := make([]operation.FeatureRef, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.whole != nil {
			whole := g.whole.Feature
			whole.Kind = types.KindTranscript
			refs = append(refs, operation.WithFeature(detach(types.ToData(whole, nil))))
			continue
		}
		if !singleStrand(append([]types.Feature{*g.parent}, g.features...)) && !t.agree(promptMixedStrands) {
			continue
		}
		start, end := bounds(g.features)
		transcript := *g.parent
		transcript.Kind = types.KindTranscript
		transcript.Start, transcript.End = start, end
		refs = append(refs, operation.WithFeature(detach(types.ToData(transcript, sorted(g.features)))))
	}
	if len(refs) == 0 {
		return noop()
	}
	return t.op(operation.AddTranscript, refs...)
}

// AddToAnnotation adds evidence features as exons of the first selected
// annotation.
func (t *Translator) AddToAnnotation(annotations, evidence []Record) (operation.EditOperation, bool) {
	targets := t.topLevel(t.annotations(annotations))
	if len(targets) == 0 {
		return noop()
	}
	target := targets[0]

	var exons []types.Feature
	for _, r := range evidence {
		parts := []types.Feature{r.Feature}
		if r.Parent == nil && len(r.Subfeatures) > 0 {
			parts = r.Subfeatures
		}
		for _, p := range parts {
			if p.Kind == types.KindWholeCDS {
				continue
			}
			exons = append(exons, p)
		}
	}
	if len(exons) == 0 {
		return noop()
	}

	opposite := false
	for _, e := range exons {
		if e.Strand != target.Strand {
			opposite = true
			break
		}
	}
	if opposite && !t.agree(promptOppositeStrand) {
		return noop()
	}

	refs := make([]operation.FeatureRef, 0, len(exons)+1)
	refs = append(refs, operation.Ref(target.ID))
	for _, e := range sorted(exons) {
		e.Kind = types.KindExon
		e.Strand = target.Strand
		refs = append(refs, operation.WithFeature(detach(types.ToData(e, nil))))
	}
	return t.op(operation.AddExon, refs...)
}

// End selects which boundary of an exon is moved onto the evidence.
type End int

const (
	FivePrime End = iota + 1
	ThreePrime
	BothEnds
)

// SetEnd moves one or both boundaries of a selected exon onto those of an
// evidence feature on the same strand.
func (t *Translator) SetEnd(annotations, evidence []Record, end End) (operation.EditOperation, bool) {
	features := t.annotations(annotations)
	if len(features) != 1 || len(evidence) != 1 {
		return noop()
	}
	annot, ev := features[0], evidence[0]
	if !t.hasParent(annot) || !ev.HasParent() || annot.Strand != ev.Feature.Strand {
		return noop()
	}

	reverse := annot.Strand.IsReverse()
	var fmin, fmax int64
	switch {
	case end == BothEnds:
		fmin, fmax = ev.Feature.Start, ev.Feature.End
	case end == FivePrime && reverse, end == ThreePrime && !reverse:
		fmin, fmax = annot.Start, ev.Feature.End
	case end == FivePrime, end == ThreePrime:
		fmin, fmax = ev.Feature.Start, annot.End
	default:
		return noop()
	}
	return t.op(operation.SetExonBoundaries, operation.FeatureRef{ID: annot.ID, Location: operation.Span(fmin, fmax)})
}

func (t *Translator) SetFivePrimeEnd(annotations, evidence []Record) (operation.EditOperation, bool) {
	return t.SetEnd(annotations, evidence, FivePrime)
}

func (t *Translator) SetThreePrimeEnd(annotations, evidence []Record) (operation.EditOperation, bool) {
	return t.SetEnd(annotations, evidence, ThreePrime)
}

func (t *Translator) SetBothEnds(annotations, evidence []Record) (operation.EditOperation, bool) {
	return t.SetEnd(annotations, evidence, BothEnds)
}
