package signal

import (
	"errors"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	errRateLimited = errors.New("too many messages")
	errBinaryFrame = errors.New("expected text frame")
)

// errorCode maps a rejected event to the code reported to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errRateLimited):
		return core.CodeRateLimited
	case errors.Is(err, domain.ErrRoomIDEmpty),
		errors.Is(err, domain.ErrRoomIDTooLong),
		errors.Is(err, domain.ErrRoomIDInvalid):
		return core.CodeInvalidRoom
	case errors.Is(err, domain.ErrUnknownEvent):
		return core.CodeUnknownEvent
	case errors.Is(err, domain.ErrRoomFull):
		return core.CodeRoomFull
	case errors.Is(err, domain.ErrAlreadyMember):
		return core.CodeAlreadyJoined
	default:
		return core.CodeBadPayload
	}
}

// reject reports a failed event to its sender only; the connection stays open.
func (ctl *SignalWSController) reject(id domain.ConnID, c *WsSignalConn, err error) {
	code := errorCode(err)
	log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("code", code).Msg("event rejected")
	ctl.Orch.Metrics.Reject(rejectReason(code))
	_ = c.TrySend(core.Error(code, err.Error()))
}

func rejectReason(code string) string {
	switch code {
	case core.CodeRateLimited:
		return metrics.RejectRateLimited
	case core.CodeUnknownEvent:
		return metrics.RejectUnknownEvent
	case core.CodeRoomFull:
		return metrics.RejectRoomFull
	case core.CodeAlreadyJoined:
		return metrics.RejectAlreadyIn
	case core.CodeInvalidRoom:
		return metrics.RejectInvalidRoom
	default:
		return metrics.RejectBadPayload
	}
}
