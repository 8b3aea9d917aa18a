package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component returns the global logger tagged with an app and component name.
func Component(app, component string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Str("component", component).Logger()
}
