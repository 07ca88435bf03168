// bundlefx/bundlefx.go
package bundlefx

import (
	"go.uber.org/fx"

	"github.com/framelink/framelink-core/pkg/middleware/auth"
	"github.com/framelink/framelink-core/pkg/middleware/logger"
	"github.com/framelink/framelink-core/pkg/middleware/metrics"
)

// Module provided to fx
var Module = fx.Options(
	auth.Module,
	logger.Module,
	metrics.Module,
)
