package switcher

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/partswitch/internal/switcher"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
