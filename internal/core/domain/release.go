package domain

import (
	"regexp"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/mod/semver"
)

var tagNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// ReleaseTrigger is the driver's statement about the commit under build, evaluated once.
type ReleaseTrigger struct {
	Tag        string
	Qualifying bool
	// Reason explains a non-qualifying trigger.
	Reason string
}

// EvaluateTrigger decides whether a run may publish. The tagged fact comes from the
// pipeline driver; the tag must additionally be a canonical version tag such as v1.2.3.
func EvaluateTrigger(tag string, tagged bool) ReleaseTrigger {
	switch {
	case !tagged || tag == "":
		return ReleaseTrigger{Tag: tag, Reason: "commit is not tagged"}
	case !semver.IsValid(tag) || semver.Canonical(tag) != tag || semver.Build(tag) != "":
		return ReleaseTrigger{Tag: tag, Reason: "tag is not a well-formed version tag"}
	default:
		return ReleaseTrigger{Tag: tag, Qualifying: true}
	}
}

// ValidateTag rejects tag names unusable as a release key.
func ValidateTag(tag string) error {
	if !tagNamePattern.MatchString(tag) {
		return zerr.With(ErrInvalidTag, "tag", tag)
	}
	return nil
}

// ReleaseAsset is what the release target holds for one (tag, platform).
type ReleaseAsset struct {
	Tag         string    `cbor:"tag" json:"tag"`
	Platform    string    `cbor:"platform" json:"platform"`
	Name        string    `cbor:"name" json:"name"`
	Digest      string    `cbor:"digest" json:"digest"`
	Size        int64     `cbor:"size" json:"size"`
	PublishedAt time.Time `cbor:"published_at" json:"published_at"`
}

// PublishOutcome is the result of one (tag, platform) publish attempt.
type PublishOutcome string

const (
	// OutcomePublished means this run uploaded the asset.
	OutcomePublished PublishOutcome = "published"
	// OutcomeUnchanged means the target already held identical content.
	OutcomeUnchanged PublishOutcome = "unchanged"
	// OutcomeFailed means the upload did not complete.
	OutcomeFailed PublishOutcome = "failed"
	// OutcomeConflict means the target holds different content under the same tag.
	OutcomeConflict PublishOutcome = "conflict"
)

// PublishRecord reports one (tag, platform) publish.
type PublishRecord struct {
	Tag      string         `json:"tag"`
	Platform string         `json:"platform"`
	Asset    string         `json:"asset"`
	Digest   string         `json:"digest"`
	Outcome  PublishOutcome `json:"outcome"`
}

// PublishState is a state of the release publisher.
type PublishState string

const (
	StateIdle             PublishState = "Idle"
	StateTriggerEvaluated PublishState = "TriggerEvaluated"
	StateSkipped          PublishState = "Skipped"
	StatePublishing       PublishState = "Publishing"
	StatePublished        PublishState = "Published"
	StatePublishFailed    PublishState = "PublishFailed"
)

var publishTransitions = map[PublishState][]PublishState{
	StateIdle:             {StateTriggerEvaluated},
	StateTriggerEvaluated: {StateSkipped, StatePublishing},
	StatePublishing:       {StatePublished, StatePublishFailed},
}

// Transition returns to when it is a legal successor of s.
func (s PublishState) Transition(to PublishState) (PublishState, error) {
	for _, next := range publishTransitions[s] {
		if next == to {
			return to, nil
		}
	}
	err := zerr.With(ErrInvalidTransition, "from", string(s))
	return s, zerr.With(err, "to", string(to))
}

// Terminal reports whether no further transition exists.
func (s PublishState) Terminal() bool {
	return len(publishTransitions[s]) == 0
}

// Succeeded reports whether the state ends a run successfully.
func (s PublishState) Succeeded() bool {
	return s == StatePublished || s == StateSkipped
}
