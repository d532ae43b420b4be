package operation

import "github.com/example/annotation-sync/internal/types"

// Metadata edits are issued from dialog collaborators with explicit values
// rather than derived from a selection.

func SetFeatureName(track types.TrackID, id types.FeatureID, name string) EditOperation {
	return New(SetName, track, FeatureRef{ID: id, Name: &name})
}

func SetFeatureSymbol(track types.TrackID, id types.FeatureID, symbol string) EditOperation {
	return New(SetSymbol, track, FeatureRef{ID: id, Symbol: &symbol})
}

func SetFeatureDescription(track types.TrackID, id types.FeatureID, description string) EditOperation {
	return New(SetDescription, track, FeatureRef{ID: id, Description: &description})
}

func SetFeatureStatus(track types.TrackID, id types.FeatureID, status string) EditOperation {
	return New(SetStatus, track, FeatureRef{ID: id, Status: &status})
}

func DeleteFeatureStatus(track types.TrackID, id types.FeatureID, status string) EditOperation {
	return New(DeleteStatus, track, FeatureRef{ID: id, Status: &status})
}

func AddFeatureComments(track types.TrackID, id types.FeatureID, comments ...string) EditOperation {
	return New(AddComments, track, FeatureRef{ID: id, Comments: comments})
}

func DeleteFeatureComments(track types.TrackID, id types.FeatureID, comments ...string) EditOperation {
	return New(DeleteComments, track, FeatureRef{ID: id, Comments: comments})
}

// UpdateFeatureComments replaces old comments with new ones pairwise.
func UpdateFeatureComments(track types.TrackID, id types.FeatureID, old, updated []string) EditOperation {
	return New(UpdateComments, track, FeatureRef{ID: id, OldComments: old, NewComments: updated})
}

func AddFeatureDBXrefs(track types.TrackID, id types.FeatureID, xrefs ...types.DBXref) EditOperation {
	return New(AddDBXrefs, track, FeatureRef{ID: id, DBXrefs: xrefs})
}

func DeleteFeatureDBXrefs(track types.TrackID, id types.FeatureID, xrefs ...types.DBXref) EditOperation {
	return New(DeleteDBXrefs, track, FeatureRef{ID: id, DBXrefs: xrefs})
}

func UpdateFeatureDBXrefs(track types.TrackID, id types.FeatureID, old, updated []types.DBXref) EditOperation {
	return New(UpdateDBXrefs, track, FeatureRef{ID: id, OldDBXrefs: old, NewDBXrefs: updated})
}

func AddFeatureAttributes(track types.TrackID, id types.FeatureID, props ...types.Property) EditOperation {
	return New(AddAttributes, track, FeatureRef{ID: id, Properties: props})
}

func DeleteFeatureAttributes(track types.TrackID, id types.FeatureID, props ...types.Property) EditOperation {
	return New(DeleteAttributes, track, FeatureRef{ID: id, Properties: props})
}

func UpdateFeatureAttributes(track types.TrackID, id types.FeatureID, old, updated []types.Property) EditOperation {
	return New(UpdateAttributes, track, FeatureRef{ID: id, OldProperties: old, NewProperties: updated})
}

// Queries.

func Features(track types.TrackID) EditOperation {
	return New(GetFeatures, track)
}

func Comments(track types.TrackID, id types.FeatureID) EditOperation {
	return New(GetComments, track, Ref(id))
}

func CannedComments(track types.TrackID) EditOperation {
	return New(GetCannedComments, track)
}

func DBXrefs(track types.TrackID, id types.FeatureID) EditOperation {
	return New(GetDBXrefs, track, Ref(id))
}

func Attributes(track types.TrackID, id types.FeatureID) EditOperation {
	return New(GetAttributes, track, Ref(id))
}

func History(track types.TrackID, ids ...types.FeatureID) EditOperation {
	return New(GetHistory, track, Refs(ids...)...)
}
