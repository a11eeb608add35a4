package triplet

import (
	"maps"
	"slices"
	"strings"
)

// #region modifier-keys
// Well-known modifier keys produced by the built-in extractor.
const (
	ModTime     = "time"
	ModLocation = "location"
	ModManner   = "manner"
	ModDegree   = "degree"
	ModPurpose  = "purpose"
)
// #endregion modifier-keys

// #region triplet
// Triplet is the structured reading of one sentence. Empty Subject or Object
// means the slot is absent. Values are treated as immutable: every method that
// changes something returns a copy.
type Triplet struct {
	Subject   string            `json:"subject,omitempty"`
	Predicate string            `json:"predicate"`
	Object    string            `json:"object,omitempty"`
	Modifiers map[string]string `json:"modifiers,omitempty"`
}

// Clone returns a deep copy.
func (t Triplet) Clone() Triplet {
	out := t
	if t.Modifiers != nil {
		out.Modifiers = maps.Clone(t.Modifiers)
	}
	return out
}

// WithModifier returns a copy with key set to value.
func (t Triplet) WithModifier(key, value string) Triplet {
	out := t.Clone()
	if out.Modifiers == nil {
		out.Modifiers = make(map[string]string, 1)
	}
	out.Modifiers[key] = value
	return out
}

// WithSubject returns a copy with the subject replaced.
func (t Triplet) WithSubject(s string) Triplet {
	out := t.Clone()
	out.Subject = s
	return out
}

// WithObject returns a copy with the object replaced.
func (t Triplet) WithObject(o string) Triplet {
	out := t.Clone()
	out.Object = o
	return out
}

// HasModifier reports whether key is present with a non-empty value.
func (t Triplet) HasModifier(key string) bool {
	return strings.TrimSpace(t.Modifiers[key]) != ""
}

// ModifierKeys returns modifier keys in sorted order.
func (t Triplet) ModifierKeys() []string {
	return slices.Sorted(maps.Keys(t.Modifiers))
}

// IsZero reports whether no predicate has been extracted.
func (t Triplet) IsZero() bool {
	return strings.TrimSpace(t.Predicate) == ""
}

// Key returns a canonical string for the triplet. Two triplets with the same
// normalized slots and modifiers share a key.
func (t Triplet) Key() string {
	var b strings.Builder
	b.WriteString(Normalize(t.Subject))
	b.WriteByte('|')
	b.WriteString(Normalize(t.Predicate))
	b.WriteByte('|')
	b.WriteString(Normalize(t.Object))
	for _, k := range t.ModifierKeys() {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Normalize(t.Modifiers[k]))
	}
	return b.String()
}
// #endregion triplet

// #region layer
// Layer names the validation stage that raised an issue.
type Layer string

const (
	LayerStructural     Layer = "structural"
	LayerCompleteness   Layer = "semantic_completeness"
	LayerRecoverability Layer = "recoverability"
	LayerDeepCheck      Layer = "deep_check"
)
// #endregion layer

// #region category
// Category is the error class an issue is counted under.
type Category string

const (
	CategoryNone               Category = ""
	CategoryMissingEntity      Category = "missing_entity"
	CategoryWrongEntity        Category = "wrong_entity"
	CategoryIncompleteArgument Category = "incomplete_argument"
	CategoryStructural         Category = "structural_error"
)

// Categories lists every countable category in reporting order.
var Categories = []Category{
	CategoryMissingEntity,
	CategoryWrongEntity,
	CategoryIncompleteArgument,
	CategoryStructural,
}
// #endregion category

// #region issue
// Issue is one problem found by a validation layer.
type Issue struct {
	Layer    Layer    `json:"layer"`
	Message  string   `json:"message"`
	Category Category `json:"category,omitempty"`
}

// String renders the issue as feedback text.
func (i Issue) String() string {
	return "[" + string(i.Layer) + "] " + i.Message
}

// ValidationResult is the verdict of one validation pass. Issues are in check
// execution order.
type ValidationResult struct {
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Issues     []Issue `json:"issues,omitempty"`
}

// Feedback joins the issues into the text handed to a revision call.
func (v ValidationResult) Feedback() string {
	parts := make([]string, len(v.Issues))
	for i, is := range v.Issues {
		parts[i] = is.String()
	}
	return strings.Join(parts, "; ")
}

// HasLayer reports whether any issue came from layer l.
func (v ValidationResult) HasLayer(l Layer) bool {
	for _, is := range v.Issues {
		if is.Layer == l {
			return true
		}
	}
	return false
}

// HasCategory reports whether any issue is counted under c.
func (v ValidationResult) HasCategory(c Category) bool {
	for _, is := range v.Issues {
		if Classify(is) == c {
			return true
		}
	}
	return false
}
// #endregion issue

// #region process-result
// Status is the terminal state of one sentence run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusExhausted Status = "exhausted"
	StatusError     Status = "error"
)

// IterationRecord is one extract/validate round inside a sentence run.
type IterationRecord struct {
	Index      int              `json:"index"`
	Triplet    Triplet          `json:"triplet"`
	Validation ValidationResult `json:"validation"`
	Feedback   string           `json:"feedback,omitempty"`
}

// ProcessResult is the outcome of running one sentence through the
// refinement loop.
type ProcessResult struct {
	Sentence   string            `json:"sentence"`
	Iterations []IterationRecord `json:"iterations"`
	Final      Triplet           `json:"final"`
	IsValid    bool              `json:"is_valid"`
	Status     Status            `json:"status"`
	Err        string            `json:"error,omitempty"`
}

// Last returns the final iteration record, if any.
func (r ProcessResult) Last() (IterationRecord, bool) {
	if len(r.Iterations) == 0 {
		return IterationRecord{}, false
	}
	return r.Iterations[len(r.Iterations)-1], true
}
// #endregion process-result

// #region sentence
// Sentence is one unit of input data. Reference is set when a curated answer
// is known.
type Sentence struct {
	Text      string   `json:"text" yaml:"text"`
	Source    string   `json:"source,omitempty" yaml:"source,omitempty"`
	Domain    string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Quality   float64  `json:"quality,omitempty" yaml:"quality,omitempty"`
	Reference *Triplet `json:"reference,omitempty" yaml:"reference,omitempty"`
}
// #endregion sentence
