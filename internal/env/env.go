package env

import (
	"github.com/thatsimonsguy/adaptive-climate/internal/config"
)

var Cfg *config.Config
