package publisher

import "codeberg.org/mutker/dcsystem/internal/errors"

const (
	ErrPublish        = errors.ErrPublish
	ErrRegister       = errors.ErrRegisterDevice
	ErrEncodePayload  = errors.ErrorCode("publisher_encode_failed")
	ErrMetricsServer  = errors.ErrorCode("publisher_metrics_server_failed")
	ErrPublisherClose = errors.ErrShutdownFailed
)
