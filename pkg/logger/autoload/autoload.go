// Package autoload initialises the global logger from LOG_* variables when
// imported.
package autoload

import (
	"github.com/tanpawarit/Chative-Support-Router/pkg/config"
	logx "github.com/tanpawarit/Chative-Support-Router/pkg/logger"
)

func init() {
	conf, err := config.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*conf)
}
