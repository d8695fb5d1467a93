// Package publisher implements the release state machine: a qualifying trigger publishes
// every verified artifact exactly once per (tag, platform).
package publisher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/ship/internal/engine/retry"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Options configures a Publisher.
type Options struct {
	// Project names the assets: <project>-<platform>.tar.zst.
	Project     string
	MaxAttempts int
	Backoff     time.Duration
}

// Result is the outcome of a Publish call.
type Result struct {
	State   domain.PublishState
	Trigger domain.ReleaseTrigger
	// Records holds one entry per platform that reached the release target.
	Records []domain.PublishRecord
}

// Published returns the records this run created.
func (r *Result) Published() []domain.PublishRecord {
	var out []domain.PublishRecord
	for _, rec := range r.Records {
		if rec.Outcome == domain.OutcomePublished {
			out = append(out, rec)
		}
	}
	return out
}

// Publisher drives the release state machine against a release store.
type Publisher struct {
	store  ports.ReleaseStore
	logger ports.Logger
	opts   Options
}

// New creates a new Publisher.
func New(store ports.ReleaseStore, logger ports.Logger, opts Options) *Publisher {
	return &Publisher{store: store, logger: logger, opts: opts}
}

// Publish evaluates trigger and, when it qualifies, publishes artifacts. A non-qualifying
// trigger ends in Skipped without touching the release store. Any unverified artifact
// halts the run in TriggerEvaluated. Once publishing starts, cancellation of ctx no
// longer interrupts uploads.
func (p *Publisher) Publish(
	ctx context.Context, trigger domain.ReleaseTrigger, artifacts []domain.Artifact,
) (*Result, error) {
	res := &Result{State: domain.StateIdle, Trigger: trigger}
	if err := p.advance(res, domain.StateTriggerEvaluated); err != nil {
		return res, err
	}

	if !trigger.Qualifying {
		p.logger.Info(fmt.Sprintf("release skipped: %s", trigger.Reason))
		return res, p.advance(res, domain.StateSkipped)
	}

	if err := CheckPublishable(artifacts); err != nil {
		return res, err
	}
	if err := domain.ValidateTag(trigger.Tag); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := p.advance(res, domain.StatePublishing); err != nil {
		return res, err
	}

	uploadCtx := context.WithoutCancel(ctx)
	records := make([]domain.PublishRecord, len(artifacts))
	errs := make([]error, len(artifacts))

	var g errgroup.Group
	for i, a := range artifacts {
		g.Go(func() error {
			records[i], errs[i] = p.publishOne(uploadCtx, trigger.Tag, a)
			return nil
		})
	}
	_ = g.Wait()

	res.Records = records
	if err := summarize(errs); err != nil {
		return res, errors.Join(err, p.advance(res, domain.StatePublishFailed))
	}
	return res, p.advance(res, domain.StatePublished)
}

func (p *Publisher) advance(res *Result, to domain.PublishState) error {
	next, err := res.State.Transition(to)
	if err != nil {
		return err
	}
	res.State = next
	return nil
}

// CheckPublishable accepts only a non-empty set of verified artifacts, one per platform.
func CheckPublishable(artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return domain.Fail(domain.KindBundleVerificationFailed, zerr.With(domain.ErrArtifactNotFound, "stage", "publish"))
	}
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if seen[a.Platform] {
			return zerr.With(zerr.New("duplicate artifact for platform"), "platform", a.Platform)
		}
		seen[a.Platform] = true
		if !a.IsVerified() {
			err := zerr.With(domain.ErrBundleVerificationFailed, "platform", a.Platform)
			return domain.Fail(domain.KindBundleVerificationFailed, zerr.With(err, "reason", "artifact is not verified"))
		}
	}
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, tag string, a domain.Artifact) (domain.PublishRecord, error) {
	rec := domain.PublishRecord{
		Tag:      tag,
		Platform: a.Platform,
		Asset:    domain.AssetName(p.opts.Project, a.Platform),
		Digest:   a.Digest,
	}

	var (
		stored  *domain.ReleaseAsset
		created bool
	)
	policy := retry.Policy{
		Attempts:  p.opts.MaxAttempts,
		Backoff:   p.opts.Backoff,
		Retryable: transient,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn(fmt.Sprintf("%s: upload attempt %d failed, retrying: %v", a.Platform, attempt, err))
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		existing, err := p.store.Lookup(ctx, tag, a.Platform)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Digest != a.Digest {
				return conflict(tag, a.Platform, existing.Digest, a.Digest)
			}
			stored, created = existing, false
			return nil
		}

		stored, created, err = p.store.Put(ctx, domain.ReleaseAsset{
			Tag:      tag,
			Platform: a.Platform,
			Name:     rec.Asset,
			Digest:   a.Digest,
			Size:     a.Size,
		}, a.Path)
		return err
	})

	switch {
	case err == nil && created:
		rec.Outcome = domain.OutcomePublished
		p.logger.Info(fmt.Sprintf("%s: published %s as %s", a.Platform, a.Digest, rec.Asset))
	case err == nil:
		rec.Outcome = domain.OutcomeUnchanged
		p.logger.Info(fmt.Sprintf("%s: %s already holds %s", a.Platform, tag, stored.Digest))
	case domain.KindOf(err) == domain.KindPublishDigestConflict:
		rec.Outcome = domain.OutcomeConflict
	default:
		rec.Outcome = domain.OutcomeFailed
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.Fail(domain.KindPublishTransientFailure,
				zerr.With(zerr.Wrap(err, domain.ErrPublishTransient.Error()), "platform", a.Platform))
		}
	}
	return rec, err
}

// transient reports whether a release store failure may succeed on another attempt.
func transient(err error) bool {
	kind := domain.KindOf(err)
	return kind == domain.KindUnknown || kind.Retryable()
}

func conflict(tag, platform, existing, incoming string) error {
	err := zerr.With(domain.ErrPublishDigestConflict, "tag", tag)
	err = zerr.With(err, "platform", platform)
	err = zerr.With(err, "existing_digest", existing)
	return domain.Fail(domain.KindPublishDigestConflict, zerr.With(err, "incoming_digest", incoming))
}

// summarize joins per-platform failures. A digest conflict outranks any other failure.
func summarize(errs []error) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	if slices.ContainsFunc(errs, func(err error) bool {
		return domain.KindOf(err) == domain.KindPublishDigestConflict
	}) {
		return domain.Fail(domain.KindPublishDigestConflict, joined)
	}
	return joined
}

// Status returns the digest published per platform under tag.
func Status(ctx context.Context, store ports.ReleaseStore, tag string) (map[string]string, error) {
	assets, err := store.Manifest(ctx, tag)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(assets))
	for _, a := range assets {
		out[a.Platform] = a.Digest
	}
	return out, nil
}
