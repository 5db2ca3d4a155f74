package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/network"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Outbound command envelope.
type envelope struct {
	Cmd         string             `json:"cmd"`
	Time        int64              `json:"time"`
	Document    json.RawMessage    `json:"document,omitempty"`
	Declaration *types.Declaration `json:"declaration,omitempty"`
}

// Service reply envelope.
type replyEnvelope struct {
	Result      string             `json:"result,omitempty"`
	Msg         string             `json:"msg,omitempty"`
	Document    json.RawMessage    `json:"document,omitempty"`
	Declaration *types.Declaration `json:"declaration,omitempty"`
}

// One unit of work handed to the transport. Carries everything the
// completion path needs: the pending key to clear, the document
// request entries to reconcile and the consumer to notify.
type requestBlock struct {
	svcRecord *types.StoredRecord
	svcIdent  types.ServiceIdentity
	cmd       *types.Descriptor
	payload   []byte
	consumer  types.Consumer

	// Set when TryBegin succeeded for this request, End is called
	// exactly once on every completion path.
	pending *PendingKey

	// Persist the reply under this document type, zero disables
	// persistence.
	persistType types.DocType

	// Document synchronization entries attached to the request.
	docRequests []types.DocumentRequestEntry

	// Invoked with the terminal outcome before delivery.
	onComplete func(outcome *types.Outcome)
}

// The orchestration entry point combining the cache resolver, the
// pending tracker, the transport and the router to answer "run this
// command" requests.
type Dispatcher struct {
	storage   types.Storage
	tracker   *Tracker
	resolver  *Resolver
	router    *Router
	transport network.Transport

	// Dispatcher logger.
	log types.Logger

	// Validity period given to persisted results when the service
	// declaration does not constrain one.
	defaultTTL time.Duration

	clock func() time.Time

	// Parent context, cancelling it abandons in-flight exchanges.
	context context.Context
}

func NewDispatcher(ctx context.Context, storage types.Storage, tracker *Tracker, resolver *Resolver,
	router *Router, transport network.Transport, defaultTTL time.Duration, log types.Logger) *Dispatcher {
	return &Dispatcher{
		storage:    storage,
		tracker:    tracker,
		resolver:   resolver,
		router:     router,
		transport:  transport,
		log:        log,
		defaultTTL: defaultTTL,
		clock:      time.Now,
		context:    ctx,
	}
}

// Run executes the command against the service. When a usable
// cached result exists and no refresh was forced, a success outcome
// referencing the stored record is routed back without any network
// round trip. Otherwise a request is handed to the transport,
// unless one is already in flight for the same (service, command)
// pair, in which case false is returned and the caller may poll
// Prestatus instead of retrying.
//
// Run returns immediately, the outcome arrives through the router.
func (d *Dispatcher) Run(svcIdent types.ServiceIdentity, cmd *types.Descriptor, explicit []byte,
	forceRefresh bool, consumer types.Consumer) (bool, error) {
	if svcIdent.Empty() || cmd == nil || cmd.Uuid == uuid.Nil {
		return false, types.ErrInvalidArgument
	}

	if !forceRefresh {
		cached, err := d.resolver.Resolve(svcIdent, cmd)
		if err != nil {
			return false, err
		}
		if cached != nil {
			// Emulate a successful execution referencing the saved
			// result, no request needs to be sent.
			d.router.Deliver(types.Outcome{
				Tag:      types.ResultSuccess,
				SvcIdent: svcIdent,
				Cmd:      cmd,
				Consumer: consumer,
				Reference: &types.DocReference{
					ID:   cached.ID,
					Decl: types.DeclarationFromPool(&cached.Pool),
				},
			})
			return true, nil
		}
	}

	// The service entry is only needed once a request must actually
	// be sent, a cached result answers without it.
	svcRecord, err := d.storage.SearchGlobalIdentEntry(types.KindForeignService, svcIdent)
	if err != nil {
		return false, &types.StorageError{Op: "loading service entry", Cause: err}
	}
	if svcRecord == nil {
		return false, &types.ConfigurationError{Reason: "unknown service " + svcIdent.String()}
	}

	if !d.tracker.TryBegin(svcIdent, cmd.Uuid) {
		return false, nil
	}
	payload := explicit
	if payload == nil {
		body, err := json.Marshal(envelope{
			Cmd:  cmd.Uuid.String(),
			Time: d.nowMs(),
		})
		if err != nil {
			d.tracker.End(svcIdent, cmd.Uuid)
			return false, &types.SerializationError{Cause: err}
		}
		payload = body
	}

	key := NewPendingKey(svcIdent, cmd.Uuid)
	d.submit(requestBlock{
		svcRecord:   svcRecord,
		svcIdent:    svcIdent,
		cmd:         cmd,
		payload:     payload,
		consumer:    consumer,
		pending:     &key,
		persistType: cmd.BaseKind.ResultDocType(),
	})
	return true, nil
}

// Prestatus derives the current state of the command, evaluated
// freshly from the tracker and the resolver. A pending request wins
// over any cached result.
func (d *Dispatcher) Prestatus(svcIdent types.ServiceIdentity, cmd *types.Descriptor) types.Prestatus {
	result := types.Prestatus{S: types.PrestatusUnknown}
	if svcIdent.Empty() || cmd == nil {
		return result
	}
	if pending, hint := d.tracker.IsPending(svcIdent, cmd.Uuid); pending {
		result.S = types.PrestatusPending
		result.WaitingHint = hint
		return result
	}
	cached, err := d.resolver.Resolve(svcIdent, cmd)
	if err != nil {
		d.log.Errorf("prestatus resolution for %s failed. %v", cmd.Name, err)
		return result
	}
	if cached != nil {
		result.S = types.PrestatusActualResultStored
	} else if cmd.BaseKind.QueryNeeded() {
		result.S = types.PrestatusQueryNeeded
	} else {
		result.S = types.PrestatusInstant
	}
	return result
}

// submit resolves the endpoint and hands the block to a worker
// routine. A rejected endpoint resolution completes the block right
// away with a local rejection.
func (d *Dispatcher) submit(blk requestBlock) {
	cfg, err := types.ServiceConfigFromPool(&blk.svcRecord.Pool)
	var endpoint network.Endpoint
	if err == nil {
		endpoint, err = network.ResolveEndpoint(cfg)
	}
	if err != nil {
		d.complete(blk, types.Outcome{
			Tag:     types.ResultLocalRejection,
			Message: err.Error(),
		})
		return
	}
	helper.InvokerInstance().Spawn(func() {
		d.perform(blk, endpoint)
	})
}

// perform runs the exchange and builds the terminal outcome. Every
// path funnels into complete, which clears the pending entry and
// delivers through the router exactly once.
func (d *Dispatcher) perform(blk requestBlock, endpoint network.Endpoint) {
	raw, err := d.transport.Exchange(d.context, endpoint, blk.payload)
	if err != nil {
		d.complete(blk, d.failure(err))
		return
	}

	var reply replyEnvelope
	if err := json.Unmarshal(raw, &reply); err != nil {
		d.complete(blk, types.Outcome{
			Tag:      types.ResultException,
			Message:  (&types.SerializationError{Cause: err}).Error(),
			Answered: true,
		})
		return
	}
	if reply.Result == "error" {
		d.complete(blk, types.Outcome{
			Tag:      types.ResultError,
			Message:  reply.Msg,
			Raw:      raw,
			Answered: true,
		})
		return
	}

	outcome := types.Outcome{
		Tag:      types.ResultSuccess,
		Raw:      raw,
		Answered: true,
	}
	if blk.persistType != types.DocTypeUndef {
		ref, err := d.persist(blk, raw, &reply)
		if err != nil {
			// The result still reached us, but the store rejected
			// it. Surface the failure instead of pretending the
			// round trip never happened.
			d.complete(blk, types.Outcome{
				Tag:      types.ResultException,
				Message:  err.Error(),
				Answered: true,
			})
			return
		}
		outcome.Reference = ref
	}
	d.complete(blk, outcome)
}

// persist stores the service reply as a cached result record and
// returns a reference to it.
func (d *Dispatcher) persist(blk requestBlock, raw []byte, reply *replyEnvelope) (*types.DocReference, error) {
	body := raw
	if len(reply.Document) > 0 {
		body = reply.Document
	}

	var pool types.TaggedBlobPool
	pool.Put(types.TagRawData, body)
	decl := reply.Declaration
	if decl != nil {
		declBody, err := json.Marshal(decl)
		if err != nil {
			return nil, &types.SerializationError{Cause: err}
		}
		pool.Put(types.TagDocDeclaration, declBody)
	}

	expiration := d.nowMs() + int64(d.defaultTTL/time.Millisecond)
	if decl != nil && decl.ExpiryPeriodSec > 0 {
		expiration = d.nowMs() + decl.ExpiryPeriodSec*1000
	}

	ident := helper.DocumentStorageIdent(blk.svcIdent, blk.cmd.Uuid)
	id, err := d.storage.PutDocument(types.Incoming, blk.persistType, 0, expiration, ident,
		blk.svcRecord.ID, pool)
	if err != nil {
		return nil, &types.StorageError{Op: "persisting command result", Cause: err}
	}
	d.resolver.Invalidate(blk.svcIdent, blk.cmd.Uuid)
	return &types.DocReference{ID: id, Decl: decl}, nil
}

// failure classifies a transport level failure into its outcome.
// The peer never answered on this path, so Answered stays false and
// flag reconciliation treats the request as still open.
func (d *Dispatcher) failure(err error) types.Outcome {
	var transport *types.TransportError
	if errors.As(err, &transport) {
		return types.Outcome{Tag: types.ResultError, Message: err.Error()}
	}
	return types.Outcome{Tag: types.ResultException, Message: err.Error()}
}

// complete is the single completion path: clears the pending entry,
// lets the block hook reconcile attached document entries and
// delivers the outcome.
func (d *Dispatcher) complete(blk requestBlock, outcome types.Outcome) {
	if blk.pending != nil {
		d.tracker.release(*blk.pending)
	}
	outcome.SvcIdent = blk.svcIdent
	outcome.Cmd = blk.cmd
	outcome.Consumer = blk.consumer
	outcome.DocRequests = blk.docRequests
	if blk.onComplete != nil {
		blk.onComplete(&outcome)
	}
	d.router.Deliver(outcome)
}

func (d *Dispatcher) nowMs() int64 {
	return d.clock().UnixNano() / int64(time.Millisecond)
}
