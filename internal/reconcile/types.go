package reconcile

// Status classifies a source file relative to the target tree.
type Status int

const (
	// StatusNew marks a file absent from the target.
	StatusNew Status = iota
	// StatusIdentical marks a file whose target bytes match the source.
	StatusIdentical
	// StatusModified marks a file whose target bytes differ from the source,
	// usually because the user edited it.
	StatusModified
	// StatusUpdated is reserved for version-aware reconciliation (a file that
	// changed upstream but was not touched locally). Classify never emits it.
	StatusUpdated
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusIdentical:
		return "identical"
	case StatusModified:
		return "modified"
	case StatusUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// FileRecord is the classification of one source file.
type FileRecord struct {
	Path              string // slash separated, relative to both roots
	Status            Status
	SourceFingerprint string
	TargetFingerprint string // empty when the target file is absent
}

// HasTarget reports whether the file existed in the target tree.
func (r FileRecord) HasTarget() bool {
	return r.TargetFingerprint != ""
}

// Report is the result of classifying a source tree against a target tree.
// Records appear in source enumeration order.
type Report struct {
	SourceDir string
	TargetDir string
	Records   []FileRecord
}

// New returns the records absent from the target.
func (r *Report) New() []FileRecord { return r.byStatus(StatusNew) }

// Identical returns the records already up to date in the target.
func (r *Report) Identical() []FileRecord { return r.byStatus(StatusIdentical) }

// Modified returns the records whose target content diverged.
func (r *Report) Modified() []FileRecord { return r.byStatus(StatusModified) }

// Updated returns the reserved upstream-update records. Always empty for
// reports produced by Classify.
func (r *Report) Updated() []FileRecord { return r.byStatus(StatusUpdated) }

// Count returns how many records carry status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Status == s {
			n++
		}
	}
	return n
}

// Len returns the total number of records.
func (r *Report) Len() int {
	return len(r.Records)
}

func (r *Report) byStatus(s Status) []FileRecord {
	out := make([]FileRecord, 0)
	for _, rec := range r.Records {
		if rec.Status == s {
			out = append(out, rec)
		}
	}
	return out
}

// Policy controls how Apply treats a report.
type Policy struct {
	Force  bool // overwrite modified files
	DryRun bool // compute the outcome without touching the filesystem
}

// Outcome lists, by relative path, what Apply did (or would do in a dry run).
type Outcome struct {
	Added      []string
	Skipped    []string
	Updated    []string
	Conflicted []string
	DryRun     bool
}

// Changed returns the number of files written, or that would be written.
func (o *Outcome) Changed() int {
	return len(o.Added) + len(o.Updated)
}

// HasConflicts reports whether modified files were left untouched.
func (o *Outcome) HasConflicts() bool {
	return len(o.Conflicted) > 0
}

// Observer is notified after each file Apply copies into the target.
type Observer interface {
	Copied(rec FileRecord)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(rec FileRecord)

// Copied calls f(rec).
func (f ObserverFunc) Copied(rec FileRecord) {
	f(rec)
}
