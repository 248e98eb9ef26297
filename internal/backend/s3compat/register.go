package s3compat

import (
	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/backend"
)

// Constructor returns a backend.Constructor bound to log, suitable for
// backend.Registry.Register(s3compat.Platform, s3compat.Constructor(log)).
func Constructor(log *logrus.Logger) backend.Constructor {
	return func(config map[string]interface{}, skipValidation bool) (backend.Driver, error) {
		return New(config, skipValidation, log)
	}
}
