package websocket

import (
	"encoding/json"
)

// handleFrame classifies one inbound text frame. Acks resolve pending
// requests, heartbeat acks are discarded and everything else is queued for the
// tick thread. Frames that do not parse are dropped.
func (c *Client) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.metrics.FrameDropped()
		c.logger.Debug().Err(err).Int("size", len(data)).Msg("dropping malformed frame")
		return
	}
	c.metrics.InboundMessage(env.Type)

	switch env.Type {
	case TypeAck:
		c.handleAck(env)
	case TypeHeartbeatAck:
	case TypeAuthResult:
		var res AuthResult
		if err := env.Decode(&res); err == nil && res.Success && res.PlayerID != "" {
			c.setIdentity(res.PlayerID, res.Role)
		}
		c.inbound.Push(env)
	default:
		c.inbound.Push(env)
	}
}

func (c *Client) handleAck(env Envelope) {
	var ack Ack
	if err := env.Decode(&ack); err != nil {
		c.metrics.FrameDropped()
		c.logger.Debug().Err(err).Str("msg_id", env.MsgID).Msg("dropping malformed ack")
		return
	}
	if ack.MsgID == "" {
		ack.MsgID = env.MsgID
	}
	if !c.pending.Resolve(ack.MsgID, ack) {
		// Late, duplicate or unknown: the waiter is gone.
		c.logger.Debug().Str("msg_id", ack.MsgID).Msg("ack without pending request")
	}
}
