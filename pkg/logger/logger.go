// Package logger builds the process-wide structured logger. Logs are JSON
// lines on stdout so the log collector can parse them without agent config.
package logger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"

	"github.com/sellerdesk/peony/config"
)

// New creates the process logger.
func New(cfg *config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var b []byte
		var err error
		if cfg.PrettyLogs {
			b, err = json.MarshalIndent(msg, "", "  ")
		} else {
			b, err = json.Marshal(msg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode log message: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stdout, string(b))
	})
}
