package rules

import "fmt"

// Operator is a leaf condition comparison operator.
type Operator string

const (
	OpEquals              Operator = "equals"
	OpNotEquals           Operator = "not_equals"
	OpGreaterThan         Operator = "greater_than"
	OpLessThan            Operator = "less_than"
	OpGreaterThanOrEquals Operator = "greater_than_or_equals"
	OpLessThanOrEquals    Operator = "less_than_or_equals"
	OpContains            Operator = "contains"
	OpNotContains         Operator = "not_contains"
	OpStartsWith          Operator = "starts_with"
	OpEndsWith            Operator = "ends_with"
	OpInList              Operator = "in_list"
	OpNotInList           Operator = "not_in_list"
	OpBetween             Operator = "between"
	OpIsNull              Operator = "is_null"
	OpIsNotNull           Operator = "is_not_null"
	OpRegex               Operator = "regex"

	// Relative-date operators measure elapsed days between the resolved
	// field value and the execution timestamp. Business-day variants skip
	// Saturday and Sunday.
	OpDaysSinceGreaterThan         Operator = "days_since_greater_than"
	OpDaysSinceLessThan            Operator = "days_since_less_than"
	OpBusinessDaysSinceGreaterThan Operator = "business_days_since_greater_than"
	OpBusinessDaysSinceLessThan    Operator = "business_days_since_less_than"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterThanOrEquals, OpLessThanOrEquals, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpInList, OpNotInList, OpBetween,
		OpIsNull, OpIsNotNull, OpRegex,
		OpDaysSinceGreaterThan, OpDaysSinceLessThan,
		OpBusinessDaysSinceGreaterThan, OpBusinessDaysSinceLessThan:
		return true
	}
	return false
}

// RequiresValue reports whether the operator needs a comparison value.
// Null checks ignore the value entirely.
func (op Operator) RequiresValue() bool {
	return op != OpIsNull && op != OpIsNotNull
}

// ConditionNode is one node of a rule's condition tree: either a leaf
// comparison (Field/Operator/Value) or a nested group (Conditions combined
// by LogicalOperator). A node is a group exactly when it has children;
// leaf fields are ignored on groups and vice versa.
//
// LogicalOperator plays a dual role, matching the stored rule documents:
// on a group it combines the group's children; on a leaf it joins the leaf
// to its previous sibling (default AND).
type ConditionNode struct {
	// Leaf fields.
	Field           string   `json:"field,omitempty" yaml:"field,omitempty"`
	Operator        Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value           any      `json:"value,omitempty" yaml:"value,omitempty"`
	Negate          bool     `json:"negate,omitempty" yaml:"negate,omitempty"`
	CaseInsensitive bool     `json:"caseInsensitive,omitempty" yaml:"caseInsensitive,omitempty"`

	// Group fields.
	Conditions []*ConditionNode `json:"conditions,omitempty" yaml:"conditions,omitempty"`

	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty" yaml:"logicalOperator,omitempty"`
}

// IsGroup reports whether the node is a nested condition group.
func (c *ConditionNode) IsGroup() bool {
	return len(c.Conditions) > 0
}

// GroupOperator returns the operator combining a group's children,
// defaulting to AND.
func (c *ConditionNode) GroupOperator() LogicalOperator {
	if c.LogicalOperator == LogicalOr {
		return LogicalOr
	}
	return LogicalAnd
}

// JoinOperator returns the operator joining this node to its previous
// sibling, defaulting to AND.
func (c *ConditionNode) JoinOperator() LogicalOperator {
	if c.LogicalOperator == LogicalOr {
		return LogicalOr
	}
	return LogicalAnd
}

// Depth returns the maximum nesting depth of the tree rooted at c.
// A leaf has depth 1.
func (c *ConditionNode) Depth() int {
	if !c.IsGroup() {
		return 1
	}
	max := 0
	for _, child := range c.Conditions {
		if d := child.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Validate checks the node and its subtree for configuration errors.
func (c *ConditionNode) Validate() error {
	if c.IsGroup() {
		if c.LogicalOperator != "" && c.LogicalOperator != LogicalAnd && c.LogicalOperator != LogicalOr {
			return fmt.Errorf("unknown logical operator %q", c.LogicalOperator)
		}
		for i, child := range c.Conditions {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
		return nil
	}

	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Operator.RequiresValue() && c.Value == nil {
		return fmt.Errorf("operator %q requires a comparison value", c.Operator)
	}
	return nil
}

// RangeValue extracts the {min, max} bounds of a between comparison value.
// It accepts a map with "min"/"max" keys, as stored rule documents encode
// ranges.
func RangeValue(v any) (min, max any, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, nil, false
	}
	min, hasMin := m["min"]
	max, hasMax := m["max"]
	if !hasMin || !hasMax {
		return nil, nil, false
	}
	return min, max, true
}
