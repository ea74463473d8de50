package ratelimit

import "time"

// Named policies for the traffic classes the gateway differentiates.
// Identifiers are namespaced by the caller ("apikey:<key>", "ip:<addr>",
// "user:<id>:<action>", "ws:<client>:<msgtype>").

// APIKeyTierPolicy returns the quota for an API-key tier. Unknown tiers get
// the free quota.
func APIKeyTierPolicy(tier string) Policy {
	switch tier {
	case "enterprise":
		return Policy{Window: time.Minute, MaxRequests: 1200}
	case "pro":
		return Policy{Window: time.Minute, MaxRequests: 300}
	default:
		return Policy{Window: time.Minute, MaxRequests: 60}
	}
}

// IPPolicy guards unauthenticated traffic by source address. Abusive
// addresses are hard-blocked.
func IPPolicy() Policy {
	return Policy{
		Window:        time.Minute,
		MaxRequests:   100,
		BlockDuration: 5 * time.Minute,
	}
}

// WebsocketMessagePolicy limits inbound websocket traffic per message type.
// Subscriptions churn slowly; pings are cheap.
func WebsocketMessagePolicy(msgType string) Policy {
	switch msgType {
	case "subscribe", "unsubscribe":
		return Policy{Window: 10 * time.Second, MaxRequests: 20}
	case "ping":
		return Policy{Window: 10 * time.Second, MaxRequests: 60}
	default:
		return Policy{Window: time.Second, MaxRequests: 10}
	}
}

// UserActionPolicy limits a specific user-initiated action.
func UserActionPolicy(action string) Policy {
	switch action {
	case "create_alert":
		return Policy{Window: time.Minute, MaxRequests: 10}
	case "backfill":
		return Policy{Window: time.Hour, MaxRequests: 5}
	default:
		return Policy{Window: time.Minute, MaxRequests: 30}
	}
}

// Scaled shrinks a quota under system load. loadFactor is in [0,1], where 1
// keeps the full quota and 0.5 halves it. At least one request always
// survives so the limiter cannot wedge shut.
func (p Policy) Scaled(loadFactor float64) Policy {
	if loadFactor >= 1 {
		return p
	}
	if loadFactor < 0 {
		loadFactor = 0
	}
	scaled := p
	scaled.MaxRequests = int(float64(p.MaxRequests) * loadFactor)
	if scaled.MaxRequests < 1 {
		scaled.MaxRequests = 1
	}
	return scaled
}

// PerInstance divides a cluster-wide quota across instances sharing an
// in-memory store. With a shared Redis store this is unnecessary: pass 1.
func (p Policy) PerInstance(instances int) Policy {
	if instances <= 1 {
		return p
	}
	divided := p
	divided.MaxRequests = p.MaxRequests / instances
	if divided.MaxRequests < 1 {
		divided.MaxRequests = 1
	}
	return divided
}
