package engine

import (
	"errors"

	"sensortrend/internal/model"
	"sensortrend/internal/trend"
)

// ErrUnknownDataset is returned for dataset names that are not loaded.
var ErrUnknownDataset = errors.New("unknown dataset")

// Error kinds reported to clients.
const (
	KindInvalidParameter = "invalid_parameter"
	KindInvalidInput     = "invalid_input"
	KindNotFound         = "not_found"
	KindInternal         = "internal"
)

// ErrorKind classifies err for clients and metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, trend.ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, trend.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnknownDataset), errors.Is(err, model.ErrUnknownColumn):
		return KindNotFound
	default:
		return KindInternal
	}
}
