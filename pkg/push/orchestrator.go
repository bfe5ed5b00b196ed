// Package push implements the push protocol of datasets.
//
// A client pushes its local changes in three steps:
//   - Init compares the client stamp with the current state of the dataset, opens a session
//     and tells which files and metadata entries must be uploaded
//   - StageFile and StageMetadata collect uploads in the staging area of the session
//   - Commit checks that the dataset has not moved in a conflicting way, then applies the changes
//
// Sessions which are never committed are reclaimed by the GarbageCollector.
package push

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/oneconcern/datapush/pkg/engine"
	enginestatus "github.com/oneconcern/datapush/pkg/engine/status"
	"github.com/oneconcern/datapush/pkg/errors"
	"github.com/oneconcern/datapush/pkg/metrics"
	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
	"github.com/oneconcern/datapush/pkg/queue"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// InitResult tells a client what to upload before committing
type InitResult struct {
	Token        string   `json:"token"`
	NeededFiles  []string `json:"neededFiles"`
	NeededMeta   []string `json:"neededMeta"`
	PullRequired bool     `json:"pullRequired"`
}

// CommitResult describes a successful commit
type CommitResult struct {
	// Checksum of the dataset stamp after the commit
	Checksum string `json:"checksum"`

	// RebuildTask is the ID of the rebuild task submitted after the commit, if any
	RebuildTask string `json:"rebuildTask,omitempty"`
}

// Orchestrator drives push sessions against a storage engine
type Orchestrator struct {
	metrics.Enable
	m *M

	engine   engine.Engine
	sessions *SessionStore
	staging  *StagingArea
	queue    queue.Queue
	l        *zap.Logger

	fs          afero.Fs
	tmpPath     string
	now         func() time.Time
	ttl         time.Duration
	allowCreate bool
	strategy    model.MergeStrategy
	mode        model.ConcurrencyMode
}

// New orchestrator of push sessions
func New(eng engine.Engine, opts ...Option) (*Orchestrator, error) {
	if eng == nil {
		return nil, status.ErrInternal.WrapMessage("a storage engine is required")
	}
	o := &Orchestrator{
		engine:      eng,
		l:           zap.NewNop(),
		fs:          afero.NewOsFs(),
		tmpPath:     DefaultTmpPath(),
		now:         time.Now,
		ttl:         DefaultSessionTTL,
		allowCreate: true,
		strategy:    model.KeepTheirs,
		mode:        model.ForbidStale,
	}
	for _, apply := range opts {
		apply(o)
	}

	if !o.strategy.IsValid() {
		return nil, status.ErrBadRequest.WrapMessage("unsupported merge strategy %q", o.strategy)
	}
	if !o.mode.IsValid() {
		return nil, status.ErrBadRequest.WrapMessage("unsupported concurrency mode %q", o.mode)
	}
	if err := o.fs.MkdirAll(o.tmpPath, 0700); err != nil {
		return nil, status.ErrInternal.WrapMessage("creating staging root %q", o.tmpPath).Wrap(err)
	}

	o.sessions = NewSessionStore(o.now, o.ttl)
	o.staging = NewStagingArea(o.fs, o.tmpPath, o.l)
	if o.MetricsEnabled() {
		o.m = o.EnsureMetrics("push", &M{}).(*M)
	}
	return o, nil
}

// Sessions held by the orchestrator
func (o *Orchestrator) Sessions() *SessionStore {
	return o.sessions
}

// Staging area of the orchestrator
func (o *Orchestrator) Staging() *StagingArea {
	return o.staging
}

// Init opens a push session for a client in some state, described by its stamp.
//
// The checksum is the one of the dataset state the client has last pulled. It is required when
// the dataset exists: if the dataset has moved since, no session is opened and the result tells
// the client to pull first.
func (o *Orchestrator) Init(ctx context.Context, ref model.DatasetRef, stampDoc []byte, checksum string) (res InitResult, err error) {
	defer func(start time.Time) {
		if o.MetricsEnabled() {
			o.m.Usage.UsedAll(start, "Init")(err)
		}
	}(time.Now())

	l := o.l.With(zap.Stringer("dataset", ref))
	if err = ref.Validate(); err != nil {
		return InitResult{}, status.ErrBadRequest.Wrap(err)
	}
	client, err := model.ParseStamp(stampDoc)
	if err != nil {
		return InitResult{}, status.ErrBadRequest.Wrap(err)
	}

	exists, err := o.engine.Exists(ctx, ref)
	if err != nil {
		return InitResult{}, status.ErrInternal.WrapWithLog(l, err)
	}

	if !exists {
		if !o.allowCreate {
			return InitResult{}, status.ErrPushNotAllowed.WrapMessage("dataset %v does not exist", ref)
		}
		if err = o.engine.Create(ctx, ref); err != nil && !errors.Is(err, enginestatus.ErrDatasetExists) {
			return InitResult{}, status.ErrInternal.WrapWithLog(l, err)
		}
		l.Info("dataset created by push")
	}

	current, err := o.engine.GetCurrentStamp(ctx, ref)
	if err != nil {
		return InitResult{}, status.ErrInternal.WrapWithLog(l, err)
	}

	if exists {
		if checksum == "" {
			return InitResult{}, status.ErrBadRequest.WrapMessage("checksum missing")
		}
		if checksum != current.Checksum {
			l.Info("push requires a pull", zap.String("checksum", checksum), zap.String("current", current.Checksum))
			o.initialized("pullRequired")
			return InitResult{PullRequired: true, NeededFiles: []string{}, NeededMeta: []string{}}, nil
		}
	}

	delta := o.engine.Delta(client, current)
	locals, err := o.engine.LocalsPresentByHash(ctx, ref, delta.ContentHashes())
	if err != nil {
		return InitResult{}, status.ErrInternal.WrapWithLog(l, err)
	}

	sess := o.sessions.Create(ref, client, current)
	if err = o.staging.Create(sess.Token); err != nil {
		o.sessions.Remove(sess.Token)
		return InitResult{}, err
	}

	res = InitResult{
		Token:       sess.Token,
		NeededFiles: delta.NeededFiles(locals),
		NeededMeta:  append([]string{}, delta.MetaAdds...),
	}
	l.Info("push session opened",
		zap.String("token", sess.Token),
		zap.Int("neededFiles", len(res.NeededFiles)),
		zap.Int("neededMeta", len(res.NeededMeta)),
	)
	o.initialized("opened")
	return res, nil
}

// StageFile uploads a file to the staging area of a session.
//
// The path is relative to the root of the dataset. Uploading again to the same path replaces the file.
func (o *Orchestrator) StageFile(ctx context.Context, token, relPath string, r io.Reader) (err error) {
	defer func(start time.Time) {
		if o.MetricsEnabled() {
			o.m.Usage.UsedAll(start, "StageFile")(err)
		}
	}(time.Now())

	sess, err := o.sessions.Get(token)
	if err != nil {
		return err
	}
	if !sess.State.AcceptsUploads() {
		return status.ErrBadRequest.WrapMessage("session %q is %v and does not accept uploads", token, sess.State)
	}

	cleaned, size, err := o.staging.WriteFile(ctx, token, relPath, r)
	if err != nil {
		return err
	}

	if _, err = o.sessions.Update(token, func(s *model.PushSession) error {
		if !s.State.AcceptsUploads() {
			return status.ErrBadRequest.WrapMessage("session %q is %v and does not accept uploads", token, s.State)
		}
		s.Staged = addStaged(s.Staged, cleaned)
		s.State = model.SessionStaging
		return nil
	}); err != nil {
		return err
	}
	o.staged(size)
	return nil
}

// StageMetadata uploads the metadata patch of a session, replacing any previous one
func (o *Orchestrator) StageMetadata(ctx context.Context, token string, doc []byte) (err error) {
	defer func(start time.Time) {
		if o.MetricsEnabled() {
			o.m.Usage.UsedAll(start, "StageMetadata")(err)
		}
	}(time.Now())

	sess, err := o.sessions.Get(token)
	if err != nil {
		return err
	}
	if !sess.State.AcceptsUploads() {
		return status.ErrBadRequest.WrapMessage("session %q is %v and does not accept uploads", token, sess.State)
	}
	if _, err = model.ParseMetaPatch(doc); err != nil {
		return status.ErrBadRequest.Wrap(err)
	}
	doc = bytes.TrimSpace(doc)

	if err = o.staging.WriteMeta(token, doc); err != nil {
		return err
	}
	_, err = o.sessions.Update(token, func(s *model.PushSession) error {
		if !s.State.AcceptsUploads() {
			return status.ErrBadRequest.WrapMessage("session %q is %v and does not accept uploads", token, s.State)
		}
		s.Meta = doc
		s.State = model.SessionStaging
		return nil
	})
	return err
}

// DatasetOf yields the dataset a live session pushes to
func (o *Orchestrator) DatasetOf(token string) (model.DatasetRef, error) {
	sess, err := o.sessions.Get(token)
	if err != nil {
		return model.DatasetRef{}, err
	}
	return sess.Dataset, nil
}
