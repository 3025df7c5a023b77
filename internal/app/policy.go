package app

import "fmt"

// CapacityAction decides what happens to a join on a full room.
type CapacityAction int

const (
	RejectJoin CapacityAction = iota
	EvictOldest
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

type Policy interface {
	OnFull() CapacityAction
	OnBackPressure() BackpressureAction
}

type SimplePolicy struct {
	Capacity CapacityAction
	Slow     BackpressureAction
}

func (p SimplePolicy) OnFull() CapacityAction             { return p.Capacity }
func (p SimplePolicy) OnBackPressure() BackpressureAction { return p.Slow }

// ParsePolicy maps config names ("reject"/"evict", "drop"/"kick") to a policy.
func ParsePolicy(capacity, slow string) (SimplePolicy, error) {
	var p SimplePolicy
	switch capacity {
	case "", "reject":
		p.Capacity = RejectJoin
	case "evict":
		p.Capacity = EvictOldest
	default:
		return p, fmt.Errorf("unknown capacity policy %q", capacity)
	}
	switch slow {
	case "", "drop":
		p.Slow = DropFrame
	case "kick":
		p.Slow = KickMember
	default:
		return p, fmt.Errorf("unknown slow consumer policy %q", slow)
	}
	return p, nil
}
