package venus

import "codeberg.org/mutker/dcsystem/internal/errors"

const (
	ErrConnect        = errors.ErrorCode("venus_connect_failed")
	ErrSubscribe      = errors.ErrorCode("venus_subscribe_failed")
	ErrDiscovery      = errors.ErrorCode("venus_portal_discovery_failed")
	ErrKeepalive      = errors.ErrorCode("venus_keepalive_failed")
	ErrInvalidTopic   = errors.ErrorCode("venus_invalid_topic")
	ErrInvalidPayload = errors.ErrorCode("venus_invalid_payload")
)
