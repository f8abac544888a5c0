// Package autoload initializes the global logger from the environment as a
// side effect of being imported.
package autoload

import (
	"github.com/crisalvesdev/atendebot/pkg/config"
	logx "github.com/crisalvesdev/atendebot/pkg/logger"
)

func init() {
	logx.Init(*config.MustNew[logx.Config]("LOG"))
}
