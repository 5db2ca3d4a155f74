package types

// Tag classifying the terminal outcome of a service interaction.
type ResultTag int

const (
	ResultUndef ResultTag = iota

	// The service answered, or a usable cached result was reused.
	ResultSuccess

	// The remote peer reported a failure, or was unreachable.
	ResultError

	// A local or transport level exception interrupted the call.
	ResultException

	// The request never reached the transport, for example because
	// of a malformed configuration. Never retried automatically.
	ResultLocalRejection
)

func (t ResultTag) String() string {
	switch t {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	case ResultException:
		return "exception"
	case ResultLocalRejection:
		return "local rejection"
	}
	return "undefined"
}

// Consumer is the handle a caller registers at dispatch time to
// exclusively receive the outcome of its request. Callbacks are
// always issued from the single serialized delivery context, never
// concurrently.
type Consumer interface {
	HandleOutcome(outcome Outcome)
}

// Reference to a stored record holding a command result, handed out
// instead of raw bytes when the result lives in the store.
type DocReference struct {
	ID   int64
	Decl *Declaration
}

// Terminal outcome of a dispatched command or document post,
// delivered through the async result router to exactly one logical
// consumer.
type Outcome struct {
	Tag      ResultTag
	SvcIdent ServiceIdentity

	// The originating command descriptor, when any.
	Cmd *Descriptor

	// The designated consumer handle, when the caller registered
	// one at dispatch time.
	Consumer Consumer

	// Reference to the stored result record, when persisted.
	Reference *DocReference

	// Raw reply payload, when the outcome carries one.
	Raw []byte

	// Error or informational message text.
	Message string

	// True when the remote peer produced the reply. Stays false on
	// transport level failures, where the peer may never have seen
	// the request.
	Answered bool

	// Auxiliary reply value for informational outcomes.
	Info interface{}

	// Free-form subject distinguishing informational deliveries.
	Subject string

	// Document synchronization entries attached to the request,
	// reconciled before delivery on terminal outcomes.
	DocRequests []DocumentRequestEntry
}

// ErrText returns the available message text, falling back to a
// placeholder matching the outcome tag.
func (o Outcome) ErrText() string {
	if o.Message != "" {
		return o.Message
	}
	switch o.Tag {
	case ResultException:
		return "Unknown exception"
	case ResultError:
		return "Unknown error"
	}
	return "Unknown result"
}
