package push

import (
	"context"
	"sort"
	"time"

	"github.com/oneconcern/datapush/pkg/engine"
	enginestatus "github.com/oneconcern/datapush/pkg/engine/status"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
	"github.com/oneconcern/datapush/pkg/queue"
	"go.uber.org/zap"
)

const reasonChangedUpstream = "changed upstream"

// Commit applies the changes of a session to its dataset.
//
// The dataset is never left half-modified. When the dataset has moved in a conflicting way, or has moved
// while the concurrency mode forbids it, or some content is still missing, the session is kept:
// the client may fix things up and commit again with the same token.
// Uploads are no longer accepted once the changes have been submitted to the engine.
func (o *Orchestrator) Commit(ctx context.Context, token string) (res CommitResult, err error) {
	defer func(start time.Time) {
		if o.MetricsEnabled() {
			o.m.Usage.UsedAll(start, "Commit")(err)
		}
		o.committed(err)
	}(time.Now())

	unlock, err := o.sessions.lockCommit(token)
	if err != nil {
		return CommitResult{}, err
	}
	defer unlock()

	sess, err := o.sessions.Get(token)
	if err != nil {
		return CommitResult{}, err
	}
	if sess.Dataset.IsZero() || sess.Baseline.Checksum == "" {
		return CommitResult{}, status.ErrUnknownToken.WrapMessage("session %q has no baseline", token)
	}

	l := o.l.With(zap.String("token", token), zap.Stringer("dataset", sess.Dataset))

	current, err := o.engine.GetCurrentStamp(ctx, sess.Dataset)
	if err != nil {
		return CommitResult{}, status.ErrInternal.WrapWithLog(l, err)
	}

	delta, err := o.resolve(sess, current)
	if err != nil {
		l.Info("commit refused", zap.Error(err))
		return CommitResult{}, err
	}

	patch, err := o.checkMissing(ctx, sess, delta)
	if err != nil {
		l.Info("commit refused", zap.Error(err))
		return CommitResult{}, err
	}

	if _, err = o.sessions.Transition(token, model.SessionCommitting); err != nil {
		return CommitResult{}, err
	}

	conflicts, err := o.engine.ApplyDelta(ctx, engine.ApplyRequest{
		Dataset:    sess.Dataset,
		Delta:      delta,
		StagingDir: o.staging.AddsPath(token),
		Meta:       patch,
		Strategy:   o.strategy,
		Expected:   current.Checksum,
	})
	switch {
	case err == nil && len(conflicts) > 0:
		err = &status.MergeConflictError{Conflicts: conflicts}
		l.Info("commit refused", zap.Error(err))
		return CommitResult{}, err

	case errors.Is(err, enginestatus.ErrStaleStamp):
		err = status.ErrStaleBaseline.Wrap(err)
		l.Info("commit refused", zap.Error(err))
		return CommitResult{}, err

	case err != nil:
		err = status.ErrInternal.WrapWithLog(l, err)
		o.abort(token, l)
		return CommitResult{}, err
	}

	o.finish(token, l)

	res = CommitResult{}
	if updated, stampErr := o.engine.GetCurrentStamp(ctx, sess.Dataset); stampErr == nil {
		res.Checksum = updated.Checksum
	}
	if o.queue != nil {
		task, submitErr := o.queue.Submit(ctx, queue.NewRebuildTask(sess.Dataset))
		if submitErr != nil {
			l.Error("could not submit rebuild task", zap.Error(submitErr))
		} else {
			res.RebuildTask = task.ID
		}
	}

	l.Info("push committed",
		zap.Int("adds", len(delta.Adds)),
		zap.Int("removes", len(delta.Removes)),
		zap.String("checksum", res.Checksum),
	)
	return res, nil
}

// resolve yields the delta to apply, given the current state of the dataset.
//
// When the dataset has moved since the session started, the changes of the client and the ones made
// upstream must not touch the same paths. Disjoint changes are either refused as stale, or rebased
// on the current state.
func (o *Orchestrator) resolve(sess model.PushSession, current model.Stamp) (model.Delta, error) {
	if current.Checksum == sess.Upstream.Checksum {
		return o.engine.Delta(sess.Baseline, current), nil
	}

	own := o.engine.Delta(sess.Baseline, sess.Upstream)
	upstream := o.engine.Delta(current, sess.Upstream)
	if paths := own.ConflictingPaths(upstream); len(paths) > 0 {
		return model.Delta{}, status.NewMergeConflictError(paths, reasonChangedUpstream)
	}

	if o.mode == model.ForbidStale {
		return model.Delta{}, status.ErrStaleBaseline.WrapMessage("dataset %v has changed since session %q started", sess.Dataset, sess.Token)
	}
	return own, nil
}

// checkMissing verifies that all the content required by a delta is available and matches its declared hash,
// and yields the metadata patch.
func (o *Orchestrator) checkMissing(ctx context.Context, sess model.PushSession, delta model.Delta) (model.MetaPatch, error) {
	locals, err := o.engine.LocalsPresentByHash(ctx, sess.Dataset, delta.ContentHashes())
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}

	missing := make([]string, 0)
	for _, add := range delta.Adds {
		if add.IsDir() || sess.HasStaged(add.Path) || locals[add.Hash] {
			continue
		}
		missing = append(missing, add.Path)
	}

	var patch model.MetaPatch
	if len(sess.Meta) > 0 {
		if patch, err = model.ParseMetaPatch(sess.Meta); err != nil {
			return nil, status.ErrBadRequest.Wrap(err)
		}
	}
	uploaded := patch.ByID()
	missingMeta := make([]string, 0)
	for _, id := range delta.MetaAdds {
		if _, ok := uploaded[id]; !ok {
			missingMeta = append(missingMeta, id)
		}
	}

	if len(missing) > 0 || len(missingMeta) > 0 {
		sort.Strings(missing)
		sort.Strings(missingMeta)
		return nil, &status.MissingFilesError{Paths: missing, Meta: missingMeta}
	}

	// uploads which do not match their declared hash must be fixed while the session still accepts them
	staged := make([]model.AddEntry, 0, len(delta.Adds))
	for _, add := range delta.Adds {
		if !add.IsDir() && sess.HasStaged(add.Path) {
			staged = append(staged, add)
		}
	}
	conflicts, err := o.engine.VerifyStaged(ctx, o.staging.AddsPath(sess.Token), staged)
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}
	if len(conflicts) > 0 {
		return nil, &status.MergeConflictError{Conflicts: conflicts}
	}
	return patch, nil
}

// finish disposes of a committed session
func (o *Orchestrator) finish(token string, l *zap.Logger) {
	if err := o.staging.Remove(token); err != nil {
		l.Warn("could not remove staging area", zap.Error(err))
	}
	if _, err := o.sessions.Transition(token, model.SessionCommitted); err != nil {
		l.Warn("could not mark session as committed", zap.Error(err))
	}
	o.sessions.Remove(token)
}

// abort disposes of a session which cannot be committed
func (o *Orchestrator) abort(token string, l *zap.Logger) {
	if _, err := o.sessions.Transition(token, model.SessionAborted); err != nil {
		l.Warn("could not mark session as aborted", zap.Error(err))
	}
	if _, removed := o.sessions.Remove(token); !removed {
		return
	}
	if err := o.staging.Remove(token); err != nil {
		l.Warn("could not remove staging area", zap.Error(err))
	}
	l.Warn("push session aborted")
}
