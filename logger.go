package remember

import "github.com/goliatone/go-logger/glog"

// ResolveLogger picks provider > logger > nop and returns a logger
// named after the component.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	provider, logger = glog.Resolve(name, provider, logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			logger = glog.Ensure(named)
		}
	}
	return provider, logger
}
