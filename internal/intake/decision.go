// Package intake runs every inbound customer message through the intake gate:
// the operator kill switch, the human hand-off check, escalation dedup and the
// durable per-conversation message counter.
package intake

// Decision is the gate's verdict for one inbound message.
type Decision string

const (
	// DecisionNormal is the state before a message has been evaluated.
	DecisionNormal Decision = "NORMAL"
	// DecisionBlockedEscalated: a human owns the conversation. No reply, message not recorded.
	DecisionBlockedEscalated Decision = "BLOCKED_ESCALATED"
	// DecisionAgentDisabledAutoReply: kill switch active. Canned reply plus one open escalation.
	DecisionAgentDisabledAutoReply Decision = "AGENT_DISABLED_AUTO_REPLY"
	// DecisionIngested: normal path. The message is recorded and handed downstream.
	DecisionIngested Decision = "INGESTED"
)

// Decide maps the two per-turn signals to a Decision.
// An active kill switch wins over a human hand-off.
func Decide(channelAutomationDisabled, killSwitchActive bool) Decision {
	switch {
	case killSwitchActive:
		return DecisionAgentDisabledAutoReply
	case channelAutomationDisabled:
		return DecisionBlockedEscalated
	default:
		return DecisionIngested
	}
}

// HandsOff reports whether the downstream conversation handler must not run.
func (d Decision) HandsOff() bool {
	return d == DecisionBlockedEscalated || d == DecisionAgentDisabledAutoReply
}
