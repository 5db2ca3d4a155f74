package interchange

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/jabolina/go-interchange/pkg/interchange/definition"
	"github.com/jabolina/go-interchange/pkg/interchange/network"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

const (
	// Periods of the two background cycles and the delay before each
	// fires the first time.
	defaultPollPeriod        = 120 * time.Second
	defaultPollInitialDelay  = 30 * time.Second
	defaultFlushPeriod       = 20 * time.Second
	defaultFlushInitialDelay = 10 * time.Second

	// Upper bound of one request round trip, the base of the waiting
	// hint reported for pending commands.
	defaultExpectedRoundTrip = 30 * time.Second

	// Validity period given to persisted results when the service
	// declaration does not constrain one.
	defaultResultTTL = time.Hour
)

// The configuration to be used by the engine. Will inform the client
// name used as the messaging reply address, the collaborators and
// the periods of the background cycles.
type Configuration struct {
	// Name of this client, used as the reply address on the
	// messaging transport and on log lines.
	Name string

	// User provided logger to be used.
	Logger types.Logger

	// The durable record store. Defaults to the in-memory store,
	// which does not survive restarts.
	Storage types.Storage

	// The surfaced notification collaborator. Defaults to none.
	Notifier types.Notifier

	// User provided transport, defaults to the scheme routing
	// transport speaking HTTP and the messaging protocol.
	Transport network.Transport

	// Upper bound of one request round trip.
	ExpectedRoundTrip time.Duration

	// Validity period of persisted results without a declared one.
	DefaultResultTTL time.Duration

	// Period of the service poll cycle and its first fire delay.
	PollPeriod       time.Duration
	PollInitialDelay time.Duration

	// Period of the seen-list flush cycle and its first fire delay.
	FlushPeriod       time.Duration
	FlushInitialDelay time.Duration
}

// Creates the default configuration for a client with the given
// name. This will not use a stable storage nor surface any
// notification.
func DefaultConfiguration(name string) *Configuration {
	return &Configuration{
		Name:              name,
		Logger:            NewDefaultLogger(),
		Storage:           definition.NewInMemoryStorage(),
		Notifier:          definition.NoopNotifier{},
		ExpectedRoundTrip: defaultExpectedRoundTrip,
		DefaultResultTTL:  defaultResultTTL,
		PollPeriod:        defaultPollPeriod,
		PollInitialDelay:  defaultPollInitialDelay,
		FlushPeriod:       defaultFlushPeriod,
		FlushInitialDelay: defaultFlushInitialDelay,
	}
}

// Verify if the given configuration is valid to be used, filling the
// absent collaborators with their defaults.
func ValidateConfiguration(configuration *Configuration) error {
	if len(configuration.Name) == 0 {
		return fmt.Errorf("client name can not be empty")
	}

	if configuration.PollPeriod <= 0 || configuration.FlushPeriod <= 0 {
		return fmt.Errorf("cycle periods must be positive, poll %v flush %v",
			configuration.PollPeriod, configuration.FlushPeriod)
	}

	if configuration.Logger == nil {
		configuration.Logger = NewDefaultLogger()
	}

	if configuration.Storage == nil {
		configuration.Storage = definition.NewInMemoryStorage()
	}

	if configuration.Notifier == nil {
		configuration.Notifier = definition.NoopNotifier{}
	}

	if configuration.ExpectedRoundTrip < 0 {
		return fmt.Errorf("expected round trip can not be negative, got %v",
			configuration.ExpectedRoundTrip)
	}

	if configuration.DefaultResultTTL <= 0 {
		configuration.DefaultResultTTL = defaultResultTTL
	}

	return nil
}

// Environment carries the configuration values readable from the
// process environment.
type Environment struct {
	Name              string        `env:"INTERCHANGE_NAME"`
	DatabasePath      string        `env:"INTERCHANGE_DATABASE_PATH"`
	LogLevel          string        `env:"INTERCHANGE_LOG_LEVEL" envDefault:"error"`
	ExpectedRoundTrip time.Duration `env:"INTERCHANGE_EXPECTED_ROUND_TRIP" envDefault:"30s"`
	DefaultResultTTL  time.Duration `env:"INTERCHANGE_DEFAULT_RESULT_TTL" envDefault:"1h"`
	PollPeriod        time.Duration `env:"INTERCHANGE_POLL_PERIOD" envDefault:"120s"`
	PollInitialDelay  time.Duration `env:"INTERCHANGE_POLL_INITIAL_DELAY" envDefault:"30s"`
	FlushPeriod       time.Duration `env:"INTERCHANGE_FLUSH_PERIOD" envDefault:"20s"`
	FlushInitialDelay time.Duration `env:"INTERCHANGE_FLUSH_INITIAL_DELAY" envDefault:"10s"`
}

// FromEnvironment reads the configuration out of the process
// environment. A database path switches the store to SQLite, the log
// level selects the verbosity of the structured logger.
func FromEnvironment() (*Configuration, error) {
	var environment Environment
	if err := env.Parse(&environment); err != nil {
		return nil, &types.ConfigurationError{Reason: err.Error()}
	}

	configuration := DefaultConfiguration(environment.Name)
	configuration.Logger = NewLogrusLogger(logrus.New(), environment.Name, environment.LogLevel)
	configuration.ExpectedRoundTrip = environment.ExpectedRoundTrip
	configuration.DefaultResultTTL = environment.DefaultResultTTL
	configuration.PollPeriod = environment.PollPeriod
	configuration.PollInitialDelay = environment.PollInitialDelay
	configuration.FlushPeriod = environment.FlushPeriod
	configuration.FlushInitialDelay = environment.FlushInitialDelay

	if len(environment.DatabasePath) > 0 {
		storage, err := definition.NewSqliteStorage(environment.DatabasePath)
		if err != nil {
			return nil, err
		}
		configuration.Storage = storage
	}

	if err := ValidateConfiguration(configuration); err != nil {
		return nil, err
	}
	return configuration, nil
}
