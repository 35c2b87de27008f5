package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"lightning-fee-lab/internal/batch"
	"lightning-fee-lab/internal/chain"
	"lightning-fee-lab/internal/estimator"
	"lightning-fee-lab/internal/evaluator"
	"lightning-fee-lab/internal/graph"
	"lightning-fee-lab/internal/lightning"
	"lightning-fee-lab/internal/orchestrator"
	"lightning-fee-lab/internal/sink"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the log rotator when one is initialized.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it write to the backend.
var (
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is nil unless --log-file is set. It must be closed on
	// shutdown.
	logRotator *rotator.Rotator

	flabLog = backendLog.Logger("FLAB")
	feesLog = backendLog.Logger("FEES")
	grphLog = backendLog.Logger("GRPH")
	chanLog = backendLog.Logger("CHAN")
	lngwLog = backendLog.Logger("LNGW")
	btchLog = backendLog.Logger("BTCH")
	orchLog = backendLog.Logger("ORCH")
	sinkLog = backendLog.Logger("SINK")
)

// Initialize package-global logger variables.
func init() {
	estimator.UseLogger(feesLog)
	evaluator.UseLogger(feesLog)
	graph.UseLogger(grphLog)
	chain.UseLogger(chanLog)
	lightning.UseLogger(lngwLog)
	batch.UseLogger(btchLog)
	orchestrator.UseLogger(orchLog)
	sink.UseLogger(sinkLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"FLAB": flabLog,
	"FEES": feesLog,
	"GRPH": grphLog,
	"CHAN": chanLog,
	"LNGW": lngwLog,
	"BTCH": btchLog,
	"ORCH": orchLog,
	"SINK": sinkLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels sets all loggers to a single level, or applies
// comma separated <subsystem>=<level> pairs.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		for _, logger := range subsystemLoggers {
			level, _ := btclog.LevelFromString(debugLevel)
			logger.SetLevel(level)
		}
		return nil
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", pair)
		}
		subsysID, logLevel := fields[0], fields[1]

		logger, ok := subsystemLoggers[subsysID]
		if !ok {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v",
				subsysID, supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", logLevel)
		}
		level, _ := btclog.LevelFromString(logLevel)
		logger.SetLevel(level)
	}
	return nil
}
