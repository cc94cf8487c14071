package runtime

import (
	"fmt"
	"strings"
)

// Connector joins a term to the value accumulated from the terms before it.
type Connector string

const (
	ConnectorAnd Connector = "AND"
	ConnectorOr  Connector = "OR"
)

// ParseConnector accepts and/or in any case; empty means AND.
func ParseConnector(s string) (Connector, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND", "&&":
		return ConnectorAnd, nil
	case "OR", "||":
		return ConnectorOr, nil
	default:
		return "", fmt.Errorf("unknown connector %q", s)
	}
}

// Operand is a leaf of a condition expression.
type Operand interface {
	Evaluate() (bool, error)
}

// OperandFunc adapts a function to Operand.
type OperandFunc func() (bool, error)

func (f OperandFunc) Evaluate() (bool, error) {
	return f()
}

// BoolOperand is a constant operand with a label for rendering.
type BoolOperand struct {
	Label string
	Value bool
}

func (b BoolOperand) Evaluate() (bool, error) {
	return b.Value, nil
}

func (b BoolOperand) String() string {
	return b.Label
}

// RootGroup is the index of the top-level group of every ConditionExpr.
const RootGroup = 0

type term struct {
	connector Connector
	operand   Operand
	group     int // sub-expression index, -1 for leaves
}

// ConditionExpr is an ordered sequence of (connector, operand | group) terms
// evaluated left to right with short-circuiting. Groups live in an arena
// owned by the expression and are referenced by index.
type ConditionExpr struct {
	terms  []term
	groups [][]int
}

func NewConditionExpr() *ConditionExpr {
	return &ConditionExpr{groups: [][]int{nil}}
}

// Add appends a leaf to the root group.
func (c *ConditionExpr) Add(connector Connector, operand Operand) *ConditionExpr {
	return c.AddTo(RootGroup, connector, operand)
}

// AddTo appends a leaf to group g.
func (c *ConditionExpr) AddTo(g int, connector Connector, operand Operand) *ConditionExpr {
	c.terms = append(c.terms, term{connector: connector, operand: operand, group: -1})
	c.groups[g] = append(c.groups[g], len(c.terms)-1)
	return c
}

// Group opens a parenthesised sub-expression inside parent and returns its
// index for AddTo.
func (c *ConditionExpr) Group(parent int, connector Connector) int {
	c.groups = append(c.groups, nil)
	sub := len(c.groups) - 1
	c.terms = append(c.terms, term{connector: connector, group: sub})
	c.groups[parent] = append(c.groups[parent], len(c.terms)-1)
	return sub
}

// Len is the number of terms, leaves and groups alike.
func (c *ConditionExpr) Len() int {
	return len(c.terms)
}

// Evaluation is the outcome of evaluating a ConditionExpr. Effective[i] is
// false for every term short-circuited away.
type Evaluation struct {
	Result    bool
	Effective []bool
}

// Evaluate walks the root group. An empty expression is true.
func (c *ConditionExpr) Evaluate() (Evaluation, error) {
	ev := Evaluation{Effective: make([]bool, len(c.terms))}
	result, err := c.evalGroup(RootGroup, ev.Effective)
	if err != nil {
		return ev, err
	}
	ev.Result = result
	return ev, nil
}

func (c *ConditionExpr) evalGroup(g int, effective []bool) (bool, error) {
	idxs := c.groups[g]
	if len(idxs) == 0 {
		return true, nil
	}

	var acc bool
	for i, idx := range idxs {
		t := c.terms[idx]
		if i > 0 {
			if t.connector == ConnectorOr && acc {
				continue
			}
			if t.connector != ConnectorOr && !acc {
				continue
			}
		}

		var (
			v   bool
			err error
		)
		if t.group >= 0 {
			v, err = c.evalGroup(t.group, effective)
		} else {
			v, err = t.operand.Evaluate()
		}
		if err != nil {
			return false, err
		}
		effective[idx] = true
		acc = v
	}
	return acc, nil
}

// String renders the expression, e.g. "a AND (b OR c)".
func (c *ConditionExpr) String() string {
	return c.render(RootGroup)
}

func (c *ConditionExpr) render(g int) string {
	var sb strings.Builder
	for i, idx := range c.groups[g] {
		t := c.terms[idx]
		if i > 0 {
			connector := t.connector
			if connector == "" {
				connector = ConnectorAnd
			}
			fmt.Fprintf(&sb, " %s ", connector)
		}
		if t.group >= 0 {
			sb.WriteString("(" + c.render(t.group) + ")")
			continue
		}
		if s, ok := t.operand.(fmt.Stringer); ok {
			sb.WriteString(s.String())
		} else {
			fmt.Fprintf(&sb, "#%d", idx)
		}
	}
	return sb.String()
}
