package eventmodels

import "fmt"

type TriggerType string

const (
	TriggerTime   TriggerType = "time"
	TriggerPoints TriggerType = "points"
	TriggerBoth   TriggerType = "both"
)

func ParseTriggerType(s string) (TriggerType, error) {
	switch TriggerType(s) {
	case TriggerTime, TriggerPoints, TriggerBoth:
		return TriggerType(s), nil
	default:
		return "", fmt.Errorf("ParseTriggerType: unknown trigger type %q", s)
	}
}

func (t TriggerType) UsesTime() bool {
	return t == TriggerTime || t == TriggerBoth
}

func (t TriggerType) UsesPoints() bool {
	return t == TriggerPoints || t == TriggerBoth
}
