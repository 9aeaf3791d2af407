package model

// TriggerContext identifies the workflow trigger instance on whose behalf
// an evaluation runs. It is supplied by the surrounding scheduler and is
// used to derive a default state key when none is configured.
type TriggerContext struct {
	Namespace string
	FlowID    string
	TriggerID string
}

// StateKey derives the default persistence key for this trigger instance.
func (c TriggerContext) StateKey() string {
	return c.Namespace + "/" + c.FlowID + "/" + c.TriggerID
}
