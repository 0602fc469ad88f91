package bids

import (
	"strings"

	"github.com/kleenlab/ucsfbids/errors"
)

// Namespace is the namespace of every built-in kind.
const Namespace = "ucsfbids"

// Level is the position of an entity in the hierarchy.
type Level int

const (
	LevelDataset Level = iota
	LevelSubject
	LevelSession
	LevelModality
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDataset:
		return "dataset"
	case LevelSubject:
		return "subject"
	case LevelSession:
		return "session"
	case LevelModality:
		return "modality"
	default:
		return "unknown"
	}
}

// Prefix returns the directory name prefix of the level.
func (l Level) Prefix() string {
	switch l {
	case LevelSubject:
		return "sub-"
	case LevelSession:
		return "ses-"
	default:
		return ""
	}
}

// metaKeys returns the metadata keys holding the namespace and type.
func (l Level) metaKeys() (string, string) {
	switch l {
	case LevelDataset:
		return "DatasetNamespace", "DatasetType"
	case LevelSubject:
		return "SubjectNamespace", "SubjectType"
	case LevelSession:
		return "SessionNamespace", "SessionType"
	default:
		return "ModalityNamespace", "ModalityType"
	}
}

// Mode controls what an entity may write.
type Mode int

const (
	// ModeRead never writes.
	ModeRead Mode = iota
	// ModeWrite rewrites existing directories but never creates one.
	ModeWrite
	// ModeCreate allows everything.
	ModeCreate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeCreate:
		return "create"
	default:
		return "read"
	}
}

// CanWrite reports whether files may be written.
func (m Mode) CanWrite() bool {
	return m >= ModeWrite
}

// CanCreate reports whether directories may be created.
func (m Mode) CanCreate() bool {
	return m == ModeCreate
}

// ParseMode parses "read", "write" or "create" and their one letter forms.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "r", "read":
		return ModeRead, nil
	case "w", "write":
		return ModeWrite, nil
	case "x", "c", "create":
		return ModeCreate, nil
	default:
		return ModeRead, errors.Newf(errors.CodeInvalidInput, "unknown mode %q", s)
	}
}

// State is the lifecycle state of an entity.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateCreated
	StatePopulated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateCreated:
		return "created"
	case StatePopulated:
		return "populated"
	default:
		return "unbound"
	}
}

// Kind identifies the concrete type of an entity.
type Kind struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Type      string `json:"type" yaml:"type"`
}

// String returns "namespace.type".
func (k Kind) String() string {
	return k.Namespace + "." + k.Type
}

// IsZero reports whether k is unset.
func (k Kind) IsZero() bool {
	return k.Namespace == "" && k.Type == ""
}

// ParseKind parses "type" or "namespace.type". A bare type uses Namespace.
func ParseKind(s string) Kind {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return Kind{Namespace: s[:i], Type: s[i+1:]}
	}
	return Kind{Namespace: Namespace, Type: s}
}

// Built-in kinds.
var (
	KindDataset      = Kind{Namespace: Namespace, Type: "raw"}
	KindSubject      = Kind{Namespace: Namespace, Type: "Subject"}
	KindSession      = Kind{Namespace: Namespace, Type: "Session"}
	KindIntracranial = Kind{Namespace: Namespace, Type: "Intracranial"}
	KindModality     = Kind{Namespace: Namespace, Type: "Modality"}
	KindAnatomy      = Kind{Namespace: Namespace, Type: "Anatomy"}
	KindCT           = Kind{Namespace: Namespace, Type: "CT"}
	KindIEEG         = Kind{Namespace: Namespace, Type: "IEEG"}
)
