package interchange

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jabolina/go-interchange/pkg/interchange/core"
	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/network"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Engine is the entry point for interacting with remote services:
// dispatching commands, posting documents and reconciling seen
// notifications. A single engine instance serves the whole client,
// every dispatch returns immediately and the outcome arrives through
// the registered handlers or the consumer handle.
type Engine interface {
	// Run executes the command against the service. Returns true
	// when the request was accepted or answered from the cache,
	// false when a request for the same pair is already in flight.
	Run(svcIdent types.ServiceIdentity, cmd *types.Descriptor, explicit []byte,
		forceRefresh bool, consumer types.Consumer) (bool, error)

	// Prestatus derives the current state of the command.
	Prestatus(svcIdent types.ServiceIdentity, cmd *types.Descriptor) types.Prestatus

	// PostDocument sends the document to the service, persisting a
	// recoverable local copy first. A document carrying nothing to
	// send is a no-op, accepted false.
	PostDocument(svcIdent types.ServiceIdentity, flags types.ActionFlags,
		dir types.Direction, doc *types.Document, consumer types.Consumer) (int64, bool, error)

	// StoreServiceData persists service-wide auxiliary data.
	StoreServiceData(svcIdent types.ServiceIdentity, docType types.DocType,
		expiration int64, data []byte) (int64, error)

	// LoadServiceData reads the auxiliary data back, nil when absent
	// or expired.
	LoadServiceData(svcIdent types.ServiceIdentity, docType types.DocType) (*types.StoredRecord, error)

	// MarkSeen batches the notification id for the next flush.
	MarkSeen(id int64)

	// FlushSeen forces the seen-list flush outside its periodic
	// cycle.
	FlushSeen() error

	// NotificationListStatus reports the notification counters for
	// the service, or for all services on an empty identity.
	NotificationListStatus(svcIdent types.ServiceIdentity) (core.NotificationListStatus, error)

	// QueryNotificationListStatus answers the same counters
	// asynchronously through the consumer handle, off the calling
	// routine.
	QueryNotificationListStatus(svcIdent types.ServiceIdentity, consumer types.Consumer)

	// Mediators lists the reachable intermediary services.
	Mediators() ([]*types.StoredRecord, error)

	// OwnPeer returns the record describing this client, nil before
	// provisioning.
	OwnPeer() (*types.StoredRecord, error)

	// PrivateConfiguration reads the own-peer private configuration,
	// an empty one before provisioning.
	PrivateConfiguration() (*types.PrivateConfig, error)

	// Register binds the handler to the display variant on the
	// default presentation path.
	Register(method types.DisplayMethod, handler core.Handler)

	// SetErrorPresenter replaces the presentation of unclaimed error
	// outcomes.
	SetErrorPresenter(handler core.Handler)

	// Start launches the periodic cycles.
	Start()

	// Shutdown stops the cycles, waits for in-flight requests to
	// complete their delivery and closes the transport. The engine
	// can not be reused afterwards.
	Shutdown() error
}

type engine struct {
	configuration *Configuration
	log           types.Logger

	storage      types.Storage
	transport    network.Transport
	tracker      *core.Tracker
	resolver     *core.Resolver
	router       *core.Router
	dispatcher   *core.Dispatcher
	synchronizer *core.Synchronizer
	reconciler   *core.Reconciler
	directory    *core.MediatorDirectory
	poller       *core.Poller

	context context.Context
	finish  context.CancelFunc
}

// Creates a new engine for the client with the given name. This will
// use the default configuration.
func New(name string) (Engine, error) {
	return NewConfigured(DefaultConfiguration(name))
}

// Create a new engine using the given configuration.
func NewConfigured(configuration *Configuration) (Engine, error) {
	if err := ValidateConfiguration(configuration); err != nil {
		return nil, err
	}
	ctx, done := context.WithCancel(context.Background())

	log := configuration.Logger
	transport := configuration.Transport
	if transport == nil {
		transport = network.NewTransport(configuration.Name, log)
	}

	tracker := core.NewTracker(configuration.ExpectedRoundTrip)
	resolver := core.NewResolver(configuration.Storage, log)
	router := core.NewRouter(log)
	dispatcher := core.NewDispatcher(ctx, configuration.Storage, tracker, resolver, router,
		transport, configuration.DefaultResultTTL, log)
	e := &engine{
		configuration: configuration,
		log:           log,
		storage:       configuration.Storage,
		transport:     transport,
		tracker:       tracker,
		resolver:      resolver,
		router:        router,
		dispatcher:    dispatcher,
		synchronizer:  core.NewSynchronizer(configuration.Storage, dispatcher, log),
		reconciler:    core.NewReconciler(configuration.Storage, configuration.Notifier, log),
		directory:     core.NewMediatorDirectory(configuration.Storage, log),
		poller:        core.NewPoller(ctx, log),
		context:       ctx,
		finish:        done,
	}
	return e, nil
}

func (e *engine) Run(svcIdent types.ServiceIdentity, cmd *types.Descriptor, explicit []byte,
	forceRefresh bool, consumer types.Consumer) (bool, error) {
	return e.dispatcher.Run(svcIdent, cmd, explicit, forceRefresh, consumer)
}

func (e *engine) Prestatus(svcIdent types.ServiceIdentity, cmd *types.Descriptor) types.Prestatus {
	return e.dispatcher.Prestatus(svcIdent, cmd)
}

func (e *engine) PostDocument(svcIdent types.ServiceIdentity, flags types.ActionFlags,
	dir types.Direction, doc *types.Document, consumer types.Consumer) (int64, bool, error) {
	return e.synchronizer.PostDocument(svcIdent, flags, dir, doc, consumer)
}

func (e *engine) StoreServiceData(svcIdent types.ServiceIdentity, docType types.DocType,
	expiration int64, data []byte) (int64, error) {
	return e.synchronizer.StoreServiceData(svcIdent, docType, expiration, data)
}

func (e *engine) LoadServiceData(svcIdent types.ServiceIdentity, docType types.DocType) (*types.StoredRecord, error) {
	return e.synchronizer.LoadServiceData(svcIdent, docType)
}

func (e *engine) MarkSeen(id int64) {
	e.reconciler.MarkSeen(id)
}

func (e *engine) FlushSeen() error {
	return e.reconciler.Flush()
}

func (e *engine) NotificationListStatus(svcIdent types.ServiceIdentity) (core.NotificationListStatus, error) {
	return e.reconciler.QueryListStatus(svcIdent)
}

func (e *engine) QueryNotificationListStatus(svcIdent types.ServiceIdentity, consumer types.Consumer) {
	helper.InvokerInstance().Spawn(func() {
		outcome := types.Outcome{
			SvcIdent: svcIdent,
			Consumer: consumer,
			Subject:  "notificationlist",
		}
		status, err := e.reconciler.QueryListStatus(svcIdent)
		if err != nil {
			outcome.Tag = types.ResultError
			outcome.Message = err.Error()
		} else {
			outcome.Tag = types.ResultSuccess
			outcome.Info = status
		}
		e.router.Deliver(outcome)
	})
}

func (e *engine) Mediators() ([]*types.StoredRecord, error) {
	return e.directory.ReachableServices()
}

func (e *engine) OwnPeer() (*types.StoredRecord, error) {
	return e.storage.OwnPeerEntry()
}

func (e *engine) PrivateConfiguration() (*types.PrivateConfig, error) {
	own, err := e.storage.OwnPeerEntry()
	if err != nil {
		return nil, err
	}
	if own == nil {
		return &types.PrivateConfig{}, nil
	}
	return types.PrivateConfigFromPool(&own.Pool)
}

func (e *engine) Register(method types.DisplayMethod, handler core.Handler) {
	e.router.Register(method, handler)
}

func (e *engine) SetErrorPresenter(handler core.Handler) {
	e.router.SetErrorPresenter(handler)
}

func (e *engine) Start() {
	e.poller.Start("service-poll", e.configuration.PollInitialDelay,
		e.configuration.PollPeriod, e.poll)
	e.poller.Start("seen-flush", e.configuration.FlushInitialDelay,
		e.configuration.FlushPeriod, e.flush)
}

func (e *engine) Shutdown() error {
	e.poller.Stop()
	e.finish()
	err := e.transport.Close()
	// Cancelling the context abandons in-flight exchanges, the
	// workers still need to finish their completion path before the
	// delivery routing stops.
	helper.InvokerInstance().Wait()
	e.router.Stop()
	return err
}

// The service poll cycle re-attempts sends that never received a
// terminal response.
func (e *engine) poll() {
	if attempted := e.synchronizer.ResendInTransit(); attempted > 0 {
		e.log.Infof("re-attempted %d in-transit documents", attempted)
	}
}

func (e *engine) flush() {
	if err := e.reconciler.Flush(); err != nil {
		e.log.Errorf("seen-list flush failed. %v", err)
	}
}

// Create a new command descriptor for the given operation.
func NewCommandDescriptor(id uuid.UUID, kind types.BaseCommandKind, name, description string) *types.Descriptor {
	return &types.Descriptor{
		Uuid:        id,
		BaseKind:    kind,
		Name:        name,
		Description: description,
	}
}

// Create a new order document with the given lines, ready to post.
func NewOrderDocument(id uuid.UUID, code string, items []types.TransferItem) *types.Document {
	now := time.Now().UnixNano() / int64(time.Millisecond)
	return &types.Document{
		DocumentHeader: &types.DocumentHeader{
			Uuid:         id,
			Code:         code,
			CreationTime: now,
			Time:         now,
			Status:       types.DocStatusDraft,
		},
		TiList: items,
	}
}
