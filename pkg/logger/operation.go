package logger

import "time"

// OperationLogger logs the start, steps and outcome of a timed operation
// such as one reconciliation batch or one outbox drain.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	ol := &OperationLogger{
		logger:    OrGlobal(logger),
		operation: operation,
		fields:    Fields{"operation": operation},
		startTime: time.Now(),
	}
	ol.logger.WithFields(ol.fields).Debug("Starting operation")
	return ol
}

// WithField adds a field to every subsequent entry of the operation
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithFields(ol.fields).WithField("step", step).Debug("Operation step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string, extra Fields) {
	ol.logger.WithFields(ol.merge(extra, "success")).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.merge(nil, "error")).Error(message)
}

func (ol *OperationLogger) merge(extra Fields, status string) Fields {
	out := Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   status,
	}
	for k, v := range ol.fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
