package settings

import "time"

// EvaluatorLogEvent describes a constraint evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Setting  string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records constraint evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}
