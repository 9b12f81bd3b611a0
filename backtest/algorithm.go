package backtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAlgorithm marks a structurally broken algorithm definition.
var ErrInvalidAlgorithm = errors.New("invalid algorithm definition")

type TriggerType string

const (
	TriggerRSI           TriggerType = "rsi"
	TriggerMACD          TriggerType = "macd"
	TriggerPrice         TriggerType = "price"
	TriggerVolume        TriggerType = "volume"
	TriggerMovingAverage TriggerType = "moving_average"
)

func (t TriggerType) Known() bool {
	switch t {
	case TriggerRSI, TriggerMACD, TriggerPrice, TriggerVolume, TriggerMovingAverage:
		return true
	}
	return false
}

type Operator string

const (
	OpGT      Operator = "gt"
	OpLT      Operator = "lt"
	OpGTE     Operator = "gte"
	OpLTE     Operator = "lte"
	OpEQ      Operator = "eq"
	OpBetween Operator = "between"
)

func (o Operator) Known() bool {
	switch o {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpBetween:
		return true
	}
	return false
}

type LogicalOperator string

const (
	LogicalAND LogicalOperator = "AND"
	LogicalOR  LogicalOperator = "OR"
)

type ActionType string

const (
	ActionBuy  ActionType = "buy"
	ActionSell ActionType = "sell"
	ActionHold ActionType = "hold"
)

// DefaultConditionPeriod applies when a condition omits "period".
const DefaultConditionPeriod = 14

type valueKind int

const (
	valueInvalid valueKind = iota
	valueScalar
	valueRange
)

// ConditionValue is either a scalar or a [low, high] pair. Any other JSON
// shape is kept as invalid so the owning trigger never fires.
type ConditionValue struct {
	kind   valueKind
	scalar float64
	low    float64
	high   float64
	raw    json.RawMessage
}

func Scalar(v float64) ConditionValue {
	return ConditionValue{kind: valueScalar, scalar: v}
}

func Range(low, high float64) ConditionValue {
	return ConditionValue{kind: valueRange, low: low, high: high}
}

func (v ConditionValue) Scalar() (float64, bool) {
	return v.scalar, v.kind == valueScalar
}

func (v ConditionValue) Range() (low, high float64, ok bool) {
	return v.low, v.high, v.kind == valueRange
}

func (v *ConditionValue) UnmarshalJSON(b []byte) error {
	*v = ConditionValue{raw: append(json.RawMessage(nil), b...)}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil && !bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		v.kind = valueScalar
		v.scalar = f
		return nil
	}
	var pair []float64
	if err := json.Unmarshal(b, &pair); err == nil && len(pair) == 2 {
		v.kind = valueRange
		v.low, v.high = pair[0], pair[1]
	}
	return nil
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueScalar:
		return json.Marshal(v.scalar)
	case valueRange:
		return json.Marshal([]float64{v.low, v.high})
	}
	if len(v.raw) > 0 {
		return v.raw, nil
	}
	return []byte("null"), nil
}

type Condition struct {
	Operator Operator       `json:"operator"`
	Value    ConditionValue `json:"value"`
	Period   int            `json:"period,omitempty"`
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	var aux struct {
		Operator Operator       `json:"operator"`
		Value    ConditionValue `json:"value"`
		Period   *int           `json:"period"`
	}
	*c = Condition{}
	if err := json.Unmarshal(b, &aux); err != nil {
		// malformed conditions degrade to an unknown operator
		return nil
	}
	c.Operator = aux.Operator
	c.Value = aux.Value
	c.Period = DefaultConditionPeriod
	if aux.Period != nil {
		c.Period = *aux.Period
	}
	return nil
}

type TriggerDefinition struct {
	Type            TriggerType     `json:"type"`
	Condition       Condition       `json:"condition"`
	LogicalOperator LogicalOperator `json:"logical_operator,omitempty"`
}

func (t *TriggerDefinition) UnmarshalJSON(b []byte) error {
	var aux struct {
		Type            string          `json:"type"`
		Condition       json.RawMessage `json:"condition"`
		LogicalOperator string          `json:"logical_operator"`
	}
	*t = TriggerDefinition{}
	if err := json.Unmarshal(b, &aux); err != nil {
		return nil
	}
	t.Type = TriggerType(strings.ToLower(strings.TrimSpace(aux.Type)))
	t.LogicalOperator = LogicalOperator(aux.LogicalOperator)
	if len(aux.Condition) > 0 {
		_ = json.Unmarshal(aux.Condition, &t.Condition)
	}
	return nil
}

// Combine folds the next trigger result into acc; anything but OR means AND.
func (op LogicalOperator) Combine(acc, next bool) bool {
	if op == LogicalOR {
		return acc || next
	}
	return acc && next
}

type ActionParameters struct {
	Percentage *float64 `json:"percentage,omitempty"`
}

// PercentageOrDefault returns the sizing percentage clamped to [0,100]; 100 when unset.
func (p ActionParameters) PercentageOrDefault() float64 {
	if p.Percentage == nil {
		return 100
	}
	v := *p.Percentage
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type ActionDefinition struct {
	Type       ActionType       `json:"type"`
	Parameters ActionParameters `json:"parameters"`
}

func (a *ActionDefinition) UnmarshalJSON(b []byte) error {
	var aux struct {
		Type       *string         `json:"type"`
		Parameters json.RawMessage `json:"parameters"`
	}
	*a = ActionDefinition{Type: ActionHold}
	if err := json.Unmarshal(b, &aux); err != nil {
		return nil
	}
	if aux.Type != nil {
		a.Type = ActionType(*aux.Type)
	}
	if len(aux.Parameters) > 0 {
		var p struct {
			Percentage *float64 `json:"percentage"`
		}
		if err := json.Unmarshal(aux.Parameters, &p); err == nil {
			a.Parameters.Percentage = p.Percentage
		}
	}
	return nil
}

type AlgorithmDefinition struct {
	Triggers []TriggerDefinition `json:"triggers"`
	Actions  []ActionDefinition  `json:"actions"`
}

// ActiveAction is the first action; only it ever drives signals.
func (a *AlgorithmDefinition) ActiveAction() (ActionDefinition, bool) {
	if a == nil || len(a.Actions) == 0 {
		return ActionDefinition{}, false
	}
	return a.Actions[0], true
}

// ParseAlgorithmJSON decodes a definition. Only structural problems (bad JSON,
// missing "triggers"/"actions", non-list values) are errors; malformed
// individual triggers are kept and evaluate to false.
func ParseAlgorithmJSON(raw []byte) (*AlgorithmDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var top map[string]json.RawMessage
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlgorithm, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after definition", ErrInvalidAlgorithm)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: definition must be an object", ErrInvalidAlgorithm)
	}

	trigRaw, okT := top["triggers"]
	actRaw, okA := top["actions"]
	if !okT || !okA {
		return nil, fmt.Errorf("%w: must contain 'triggers' and 'actions'", ErrInvalidAlgorithm)
	}

	var algo AlgorithmDefinition
	if err := json.Unmarshal(trigRaw, &algo.Triggers); err != nil {
		return nil, fmt.Errorf("%w: triggers: %v", ErrInvalidAlgorithm, err)
	}
	if err := json.Unmarshal(actRaw, &algo.Actions); err != nil {
		return nil, fmt.Errorf("%w: actions: %v", ErrInvalidAlgorithm, err)
	}
	if algo.Triggers == nil {
		algo.Triggers = []TriggerDefinition{}
	}
	if algo.Actions == nil {
		algo.Actions = []ActionDefinition{}
	}
	return &algo, nil
}

// ParseAlgorithmYAML accepts the same shape written as YAML.
func ParseAlgorithmYAML(raw []byte) (*AlgorithmDefinition, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlgorithm, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlgorithm, err)
	}
	return ParseAlgorithmJSON(b)
}

// Lint lists problems that make parts of the definition inert. None of them
// abort a run.
func (a *AlgorithmDefinition) Lint() []string {
	if a == nil {
		return []string{"algorithm is nil"}
	}
	var out []string
	for i, t := range a.Triggers {
		if !t.Type.Known() {
			out = append(out, fmt.Sprintf("triggers[%d]: unknown type %q", i, t.Type))
		}
		op := t.Condition.Operator
		if !op.Known() {
			out = append(out, fmt.Sprintf("triggers[%d]: unknown operator %q", i, op))
		} else if op == OpBetween {
			if _, _, ok := t.Condition.Value.Range(); !ok {
				out = append(out, fmt.Sprintf("triggers[%d]: between needs a [low, high] value", i))
			}
		} else if _, ok := t.Condition.Value.Scalar(); !ok {
			out = append(out, fmt.Sprintf("triggers[%d]: %s needs a numeric value", i, op))
		}
		if t.Type == TriggerMovingAverage && !maPeriodAvailable(t.Condition.Period) {
			out = append(out, fmt.Sprintf("triggers[%d]: no moving average for period %d", i, t.Condition.Period))
		}
		if i < len(a.Triggers)-1 && t.LogicalOperator != "" && t.LogicalOperator != LogicalAND && t.LogicalOperator != LogicalOR {
			out = append(out, fmt.Sprintf("triggers[%d]: logical operator %q treated as AND", i, t.LogicalOperator))
		}
	}
	if len(a.Actions) == 0 {
		out = append(out, "no actions: nothing will be traded")
	}
	if len(a.Actions) > 1 {
		out = append(out, fmt.Sprintf("%d actions given, only actions[0] is used", len(a.Actions)))
	}
	if act, ok := a.ActiveAction(); ok {
		switch act.Type {
		case ActionBuy, ActionSell, ActionHold:
		default:
			out = append(out, fmt.Sprintf("actions[0]: unknown type %q", act.Type))
		}
		if p := act.Parameters.Percentage; p != nil && (*p < 0 || *p > 100) {
			out = append(out, fmt.Sprintf("actions[0]: percentage %.2f clamped to [0,100]", *p))
		}
	}
	return out
}
