package interchange

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfiguration(t *testing.T) {
	configuration := DefaultConfiguration("client-a")
	if err := ValidateConfiguration(configuration); err != nil {
		t.Fatalf("default configuration must validate. %v", err)
	}
	if configuration.PollPeriod != 120*time.Second || configuration.PollInitialDelay != 30*time.Second {
		t.Fatalf("got poll %v/%v", configuration.PollPeriod, configuration.PollInitialDelay)
	}
	if configuration.FlushPeriod != 20*time.Second || configuration.FlushInitialDelay != 10*time.Second {
		t.Fatalf("got flush %v/%v", configuration.FlushPeriod, configuration.FlushInitialDelay)
	}
}

func TestValidateConfiguration_Rejections(t *testing.T) {
	if err := ValidateConfiguration(&Configuration{}); err == nil {
		t.Fatalf("empty name must be rejected")
	}

	configuration := DefaultConfiguration("client-a")
	configuration.PollPeriod = 0
	if err := ValidateConfiguration(configuration); err == nil {
		t.Fatalf("zero poll period must be rejected")
	}

	configuration = DefaultConfiguration("client-a")
	configuration.ExpectedRoundTrip = -time.Second
	if err := ValidateConfiguration(configuration); err == nil {
		t.Fatalf("negative round trip must be rejected")
	}
}

func TestValidateConfiguration_FillsDefaults(t *testing.T) {
	configuration := &Configuration{
		Name:        "client-a",
		PollPeriod:  time.Minute,
		FlushPeriod: time.Second,
	}
	if err := ValidateConfiguration(configuration); err != nil {
		t.Fatalf("unexpected error. %v", err)
	}
	if configuration.Logger == nil || configuration.Storage == nil || configuration.Notifier == nil {
		t.Fatalf("absent collaborators must be filled with defaults")
	}
	if configuration.DefaultResultTTL <= 0 {
		t.Fatalf("absent result ttl must be filled")
	}
}

func TestFromEnvironment(t *testing.T) {
	os.Setenv("INTERCHANGE_NAME", "client-env")
	os.Setenv("INTERCHANGE_POLL_PERIOD", "90s")
	os.Setenv("INTERCHANGE_FLUSH_PERIOD", "15s")
	defer func() {
		os.Unsetenv("INTERCHANGE_NAME")
		os.Unsetenv("INTERCHANGE_POLL_PERIOD")
		os.Unsetenv("INTERCHANGE_FLUSH_PERIOD")
	}()

	configuration, err := FromEnvironment()
	if err != nil {
		t.Fatalf("unexpected error. %v", err)
	}
	if configuration.Name != "client-env" {
		t.Fatalf("got name %s", configuration.Name)
	}
	if configuration.PollPeriod != 90*time.Second || configuration.FlushPeriod != 15*time.Second {
		t.Fatalf("got poll %v flush %v", configuration.PollPeriod, configuration.FlushPeriod)
	}
	if configuration.ExpectedRoundTrip != 30*time.Second {
		t.Fatalf("got round trip %v, want the default", configuration.ExpectedRoundTrip)
	}
}

func TestFromEnvironment_LogLevel(t *testing.T) {
	os.Setenv("INTERCHANGE_NAME", "client-env")
	os.Setenv("INTERCHANGE_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("INTERCHANGE_NAME")
		os.Unsetenv("INTERCHANGE_LOG_LEVEL")
	}()

	configuration, err := FromEnvironment()
	if err != nil {
		t.Fatalf("unexpected error. %v", err)
	}
	logger, ok := configuration.Logger.(*LogrusLogger)
	if !ok {
		t.Fatalf("got logger %T, want the structured adapter", configuration.Logger)
	}
	if got := logger.entry.Logger.GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("got level %v, want debug", got)
	}
}
