package discordhook

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/backend"
)

// Constructor returns a backend.Constructor bound to log, suitable for
// backend.Registry.Register(discordhook.Platform, discordhook.Constructor(log)).
func Constructor(log *logrus.Logger) backend.Constructor {
	return func(config map[string]interface{}, skipValidation bool) (backend.Driver, error) {
		return New(context.Background(), config, skipValidation, log)
	}
}
