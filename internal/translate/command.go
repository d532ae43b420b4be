package translate

import (
	"fmt"
	"strings"

	"github.com/example/annotation-sync/internal/operation"
)

// Command is a user action that may produce an edit operation.
type Command int

const (
	CmdUnknown Command = iota
	CmdMerge
	CmdSplit
	CmdMakeIntron
	CmdSetTranslationStart
	CmdSetLongestORF
	CmdSetReadthroughStopCodon
	CmdFlipStrand
	CmdUndo
	CmdRedo
	CmdHistory
	CmdDelete
	CmdDuplicate
	CmdCreateFromEvidence
	CmdAddToAnnotation
	CmdSetFivePrimeEnd
	CmdSetThreePrimeEnd
	CmdSetBothEnds
	CmdResize
)

var commandNames = map[Command]string{
	CmdMerge:                   "merge",
	CmdSplit:                   "split",
	CmdMakeIntron:              "make-intron",
	CmdSetTranslationStart:     "set-translation-start",
	CmdSetLongestORF:           "set-longest-orf",
	CmdSetReadthroughStopCodon: "set-readthrough-stop-codon",
	CmdFlipStrand:              "flip-strand",
	CmdUndo:                    "undo",
	CmdRedo:                    "redo",
	CmdHistory:                 "history",
	CmdDelete:                  "delete",
	CmdDuplicate:               "duplicate",
	CmdCreateFromEvidence:      "create-from-evidence",
	CmdAddToAnnotation:         "add-to-annotation",
	CmdSetFivePrimeEnd:         "set-five-prime-end",
	CmdSetThreePrimeEnd:        "set-three-prime-end",
	CmdSetBothEnds:             "set-both-ends",
	CmdResize:                  "resize",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand looks a command up by its CLI name.
func ParseCommand(name string) (Command, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range commandNames {
		if n == name {
			return c, nil
		}
	}
	return CmdUnknown, fmt.Errorf("parse command %q: unknown command", name)
}

// Resize carries the new bounds of a drag-resize.
type Resize struct {
	Fmin int64
	Fmax int64
}

// Input is everything a command may draw on: the selected annotations, the
// selected evidence and the genome coordinate under the pointer.
type Input struct {
	Annotations []Record
	Evidence    []Record
	Coordinate  *int64
	Resize      *Resize
}

// OperationSource builds edit operations from user commands.
type OperationSource interface {
	Build(cmd Command, in Input) (operation.EditOperation, bool)
}

var _ OperationSource = (*Translator)(nil)

// Build dispatches cmd to the matching translation. ok is false when the
// input does not qualify.
func (t *Translator) Build(cmd Command, in Input) (operation.EditOperation, bool) {
	switch cmd {
	case CmdMerge:
		return t.Merge(in.Annotations)
	case CmdSplit:
		return t.Split(in.Annotations, in.Coordinate)
	case CmdMakeIntron:
		return t.MakeIntron(in.Annotations, in.Coordinate)
	case CmdSetTranslationStart:
		return t.SetTranslationStart(in.Annotations, in.Coordinate)
	case CmdSetLongestORF:
		return t.SetLongestORF(in.Annotations)
	case CmdSetReadthroughStopCodon:
		return t.SetReadthroughStopCodon(in.Annotations)
	case CmdFlipStrand:
		return t.FlipStrand(in.Annotations)
	case CmdUndo:
		return t.Undo(in.Annotations)
	case CmdRedo:
		return t.Redo(in.Annotations)
	case CmdHistory:
		return t.History(in.Annotations)
	case CmdDelete:
		return t.Delete(in.Annotations)
	case CmdDuplicate:
		return t.Duplicate(in.Annotations)
	case CmdCreateFromEvidence:
		return t.CreateFromEvidence(in.Evidence)
	case CmdAddToAnnotation:
		return t.AddToAnnotation(in.Annotations, in.Evidence)
	case CmdSetFivePrimeEnd:
		return t.SetFivePrimeEnd(in.Annotations, in.Evidence)
	case CmdSetThreePrimeEnd:
		return t.SetThreePrimeEnd(in.Annotations, in.Evidence)
	case CmdSetBothEnds:
		return t.SetBothEnds(in.Annotations, in.Evidence)
	case CmdResize:
		if in.Resize == nil {
			return noop()
		}
		return t.SetExonBoundaries(in.Annotations, in.Resize.Fmin, in.Resize.Fmax)
	}
	return noop()
}
