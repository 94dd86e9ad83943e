package logger

// Adapter lets third-party libraries log through a Logger. It satisfies the
// Datadog tracer logger (Log) and the resty logger (Errorf, Warnf, Debugf).
type Adapter Logger

// NewAdapter returns l as an Adapter.
func NewAdapter(l *Logger) *Adapter {
	return (*Adapter)(l)
}

func (log *Adapter) Log(msg string) {
	if log == nil {
		return
	}
	(*Logger)(log).Info(msg)
}

func (log *Adapter) Errorf(format string, v ...any) {
	if log == nil {
		return
	}
	(*Logger)(log).Sugar().Errorf(format, v...)
}

func (log *Adapter) Warnf(format string, v ...any) {
	if log == nil {
		return
	}
	(*Logger)(log).Sugar().Warnf(format, v...)
}

func (log *Adapter) Debugf(format string, v ...any) {
	if log == nil {
		return
	}
	(*Logger)(log).Sugar().Debugf(format, v...)
}
