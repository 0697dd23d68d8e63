package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newtron-network/newtcli/pkg/audit"
	"github.com/newtron-network/newtcli/pkg/cache"
	"github.com/newtron-network/newtcli/pkg/handler"
	"github.com/newtron-network/newtcli/pkg/lock"
	"github.com/newtron-network/newtcli/pkg/util"
)

// Outcome is the terminal state of a transaction.
type Outcome string

const (
	// OutcomeCommitted: the device accepted the commit.
	OutcomeCommitted Outcome = audit.OutcomeCommitted
	// OutcomeReverted: apply or commit failed and the edit was aborted.
	OutcomeReverted Outcome = audit.OutcomeReverted
	// OutcomeRevertFailed: the abort itself failed. The device state is
	// unknown and needs an operator.
	OutcomeRevertFailed Outcome = audit.OutcomeRevertFailed
	// OutcomeAborted: the transaction stopped before any change was sent.
	OutcomeAborted Outcome = audit.OutcomeAborted
)

// Session is the device surface a transaction drives. *session.Session
// implements it.
type Session interface {
	handler.Device
	Device() string
	EnterConfigMode(ctx context.Context) error
	ExitConfigMode(ctx context.Context) error
	Commit(ctx context.Context) (string, error)
	Diagnose(ctx context.Context) (string, error)
	Abort(ctx context.Context) error
}

// Result describes a finished transaction.
type Result struct {
	TxnID        string
	Outcome      Outcome
	Applied      int // changes sent before commit or failure
	CommitOutput string
	Diagnostic   string
	Duration     time.Duration
	Err          error
}

// Coordinator runs change sets on one device session.
type Coordinator struct {
	Session  Session
	Registry *handler.Registry

	// Locker, when set, holds the device for the duration of Run.
	Locker  lock.Locker
	LockTTL time.Duration

	// Auditor receives one event per Run. Nil uses the package default
	// audit logger.
	Auditor audit.Logger
	User    string
}

// op is one resolved change.
type op struct {
	change Change
	writer handler.Writer
	before handler.Data
	after  handler.Data
}

// Run executes cs. The returned error is Result.Err: nil only for
// OutcomeCommitted.
func (c *Coordinator) Run(ctx context.Context, cs *ChangeSet) (*Result, error) {
	start := time.Now()
	res := &Result{TxnID: cs.ID}
	log := util.WithTxn(c.Session.Device(), cs.ID)

	defer func() {
		res.Duration = time.Since(start)
		c.audit(cs, res)
	}()

	fail := func(outcome Outcome, err error) (*Result, error) {
		res.Outcome = outcome
		res.Err = err
		return res, err
	}

	if cs.Device != "" && cs.Device != c.Session.Device() {
		return fail(OutcomeAborted, fmt.Errorf("change set is for %s, session is %s", cs.Device, c.Session.Device()))
	}
	ops, err := plan(c.Registry, cs)
	if err != nil {
		return fail(OutcomeAborted, err)
	}

	if c.Locker != nil {
		ttl := c.LockTTL
		if ttl == 0 {
			ttl = 5 * time.Minute
		}
		holder := c.User
		if holder == "" {
			holder = cs.ID
		}
		if err := c.Locker.Acquire(ctx, c.Session.Device(), holder, ttl); err != nil {
			return fail(OutcomeAborted, err)
		}
		defer func() {
			if err := c.Locker.Release(context.Background(), c.Session.Device(), holder); err != nil {
				log.Warnf("releasing lock: %v", err)
			}
		}()
	}

	rc := cache.NewReadContext(cs.ID)
	defer rc.Close()

	if err := c.readBefore(ctx, rc, ops); err != nil {
		return fail(OutcomeAborted, err)
	}

	if err := c.Session.EnterConfigMode(ctx); err != nil {
		return fail(OutcomeAborted, err)
	}

	var cause error
	for _, o := range ops {
		if err := c.apply(ctx, o); err != nil {
			cause = err
			break
		}
		res.Applied++
	}

	if cause == nil {
		res.CommitOutput, cause = c.Session.Commit(ctx)
	}

	if cause == nil {
		if err := c.Session.ExitConfigMode(ctx); err != nil {
			log.Warnf("committed, but leaving config mode failed: %v", err)
		}
		log.Infof("committed %d changes", res.Applied)
		res.Outcome = OutcomeCommitted
		return res, nil
	}

	log.Warnf("transaction failed after %d changes: %v", res.Applied, cause)
	return c.revert(ctx, res, cause)
}

// revert runs the post-failure path: fetch the device's failure report,
// then abort the edit.
func (c *Coordinator) revert(ctx context.Context, res *Result, cause error) (*Result, error) {
	log := util.WithTxn(c.Session.Device(), res.TxnID)

	diag, err := c.Session.Diagnose(ctx)
	if err != nil {
		log.Warnf("diagnose: %v", err)
	}
	res.Diagnostic = diag
	if diag != "" {
		log.Infof("device failure report:\n%s", diag)
	}

	if err := c.Session.Abort(ctx); err != nil {
		log.Errorf("abort failed, device state unknown: %v", err)
		res.Outcome = OutcomeRevertFailed
		res.Err = util.NewError(util.KindRevertFailed, c.Session.Device(), "", errors.Join(err, cause))
		return res, res.Err
	}

	log.Infof("edit aborted")
	res.Outcome = OutcomeReverted
	res.Err = cause
	return res, cause
}

// Check validates cs and resolves every change against reg without
// touching a device. Run performs the same checks first.
func Check(reg *handler.Registry, cs *ChangeSet) error {
	_, err := plan(reg, cs)
	return err
}

// plan validates cs and maps every change onto its handler.
func plan(reg *handler.Registry, cs *ChangeSet) ([]op, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	ops := make([]op, 0, len(cs.Changes))
	for i, ch := range cs.Changes {
		w, err := reg.Writer(ch.Path)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		o := op{change: ch, writer: w}
		if ch.Type != ChangeDelete {
			if o.after, err = w.Decode(ch.Key, ch.After); err != nil {
				return nil, fmt.Errorf("change %d: %w", i, err)
			}
		}
		if ch.Before != nil {
			if o.before, err = w.Decode(ch.Key, ch.Before); err != nil {
				return nil, fmt.Errorf("change %d: %w", i, err)
			}
		}
		ops = append(ops, o)
	}
	return ops, nil
}

// readBefore fills in missing before-images from the device. Reads go
// through rc so handlers sharing a show command cost one round trip.
func (c *Coordinator) readBefore(ctx context.Context, rc *cache.ReadContext, ops []op) error {
	for i := range ops {
		o := &ops[i]
		if o.before != nil || o.change.Type == ChangeAdd {
			continue
		}
		if r, ok := o.writer.(handler.Reader); ok {
			d, err := r.Read(ctx, c.Session, rc, o.change.Key)
			if err != nil {
				return err
			}
			o.before = d
		}
		if o.before == nil && o.change.Type == ChangeDelete {
			// Nothing on the device yet; an earlier change in this set
			// may create it, so the delete still runs.
			d, err := o.writer.Decode(o.change.Key, nil)
			if err != nil {
				return err
			}
			o.before = d
		}
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, o op) error {
	switch o.change.Type {
	case ChangeAdd:
		return o.writer.Write(ctx, c.Session, o.after)
	case ChangeModify:
		return o.writer.Update(ctx, c.Session, o.before, o.after)
	default:
		return o.writer.Delete(ctx, c.Session, o.before)
	}
}

func (c *Coordinator) audit(cs *ChangeSet, res *Result) {
	event := audit.NewEvent(c.User, c.Session.Device(), cs.Operation).
		WithTxn(cs.ID).
		WithChanges(cs.AuditChanges()).
		WithOutcome(string(res.Outcome)).
		WithError(res.Err).
		WithDiagnostic(res.Diagnostic).
		WithDuration(res.Duration).
		WithExecuteMode(true)

	var err error
	if c.Auditor != nil {
		err = c.Auditor.Log(event)
	} else {
		err = audit.Log(event)
	}
	if err != nil {
		util.WithTxn(c.Session.Device(), cs.ID).Warnf("audit: %v", err)
	}
}
