// Package classify assigns observed UI nodes a lifetime classification using
// an ordered, first-match-wins rule list. Keeping the decision table explicit
// makes each rule unit-testable on its own.
package classify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/api/schemas"
)

// Input carries everything a classification decision may consult.
type Input struct {
	Node schemas.NodeInfo
	// AncestorChain holds the classifications of the node's ancestors,
	// nearest first.
	AncestorChain []schemas.Classification
	// SiblingClassCounts maps sibling class names to their occurrence count
	// within the node's parent, including the node itself.
	SiblingClassCounts map[string]int
}

// rule is a single entry in the ordered decision table.
type rule struct {
	name  string
	match func(Input) bool
	label schemas.Classification
}

// Classifier evaluates the rule list. Safe for concurrent use; all state is
// immutable after construction.
type Classifier struct {
	rules              []rule
	denyClickMarkers   []string
	rowRepeatThreshold int
	log                *zap.Logger
}

// Class-name fragments that mark transient surfaces.
var transientClassMarkers = []string{
	"toast", "snackbar", "progressbar", "progressdialog", "popupwindow",
	"popup", "tooltip", "spinnerdialog",
}

// Visible-text fragments typical of short-lived messages.
var transientTextMarkers = []string{
	"loading", "please wait", "saved", "saving", "error", "retrying",
	"connecting", "refreshing",
}

// Container class fragments whose hash provides ancestor context for
// element fingerprints.
var containerClassMarkers = []string{
	"dialog", "fragment", "bottomsheet", "drawerlayout", "alert",
}

// New builds a Classifier with the fixed rule order of the decision table.
func New(rowRepeatThreshold int, denyClickMarkers []string, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		denyClickMarkers:   lowerAll(denyClickMarkers),
		rowRepeatThreshold: rowRepeatThreshold,
		log:                logger.Named("Classifier"),
	}
	c.rules = []rule{
		{name: "transient-class", match: c.matchTransientClass, label: schemas.ClassEphemeral},
		{name: "transient-text", match: c.matchTransientText, label: schemas.ClassEphemeral},
		{name: "ephemeral-ancestor", match: matchEphemeralAncestor, label: schemas.ClassEphemeral},
		{name: "repeated-row", match: c.matchRepeatedRow, label: schemas.ClassHybrid},
	}
	return c
}

// Classify returns the label of the first matching rule, or Persistent when
// no rule matches. Deterministic for any fixed input.
func (c *Classifier) Classify(in Input) schemas.Classification {
	for _, r := range c.rules {
		if r.match(in) {
			c.log.Debug("Rule matched",
				zap.String("rule", r.name),
				zap.String("class", in.Node.ClassName),
				zap.String("label", string(r.label)))
			return r.label
		}
	}
	return schemas.ClassPersistent
}

func (c *Classifier) matchTransientClass(in Input) bool {
	return containsAny(strings.ToLower(in.Node.ClassName), transientClassMarkers)
}

func (c *Classifier) matchTransientText(in Input) bool {
	if in.Node.Text == "" {
		return false
	}
	return containsAny(strings.ToLower(in.Node.Text), transientTextMarkers)
}

func matchEphemeralAncestor(in Input) bool {
	for _, a := range in.AncestorChain {
		if a == schemas.ClassEphemeral {
			return true
		}
	}
	return false
}

func (c *Classifier) matchRepeatedRow(in Input) bool {
	if in.SiblingClassCounts == nil {
		return false
	}
	return in.SiblingClassCounts[in.Node.ClassName] >= c.rowRepeatThreshold
}

// IsContainer reports whether a class name denotes a context-providing
// container (dialog, fragment-equivalent, bottom-sheet-equivalent). The
// fingerprint of such a node becomes the parent context of its descendants.
func (c *Classifier) IsContainer(className string) bool {
	return containsAny(strings.ToLower(className), containerClassMarkers)
}

// SafeToClick reports whether an element may be clicked during active
// exploration: it must advertise clickability, be enabled, and carry no
// destructive/navigation-away marker in its text, description or resource id.
func (c *Classifier) SafeToClick(n schemas.NodeInfo) bool {
	if !n.Clickable || !n.Enabled {
		return false
	}
	haystacks := []string{
		strings.ToLower(n.Text),
		strings.ToLower(n.Description),
		strings.ToLower(n.ResourceID),
	}
	for _, h := range haystacks {
		if h == "" {
			continue
		}
		if containsAny(h, c.denyClickMarkers) {
			return false
		}
	}
	return true
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
