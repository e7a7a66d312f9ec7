package storage

import "fmt"

// CompareOp is one of the six relational operators the system recognizes.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "?"
	}
}

// OperandKind tags whether an operand is a column reference or a literal.
type OperandKind int

const (
	OperandColumn OperandKind = iota
	OperandLiteral
)

// Operand is one side of a Comparison.
type Operand struct {
	Kind    OperandKind
	Column  string
	Literal Value
}

// ColumnOperand builds a column-reference operand.
func ColumnOperand(name string) Operand { return Operand{Kind: OperandColumn, Column: name} }

// LiteralOperand builds a literal-value operand.
func LiteralOperand(v Value) Operand { return Operand{Kind: OperandLiteral, Literal: v} }

// RowIDColumn is a pseudo-column recognized here (not declared in any
// schema) letting administrative and recovery-issued compensating
// statements target an exact row by its stable identifier.
const RowIDColumn = "__row_id__"

// resolve looks up o against row. schema is nil when row came from a join
// (no single table's schema applies to the merged columns); in that case
// the existence check is skipped and the row's own value map is
// authoritative.
func (o Operand) resolve(row *Row, schema *Schema) (Value, error) {
	if o.Kind == OperandLiteral {
		return o.Literal, nil
	}
	if o.Column == RowIDColumn {
		return StringValue(row.ID), nil
	}
	if schema != nil {
		if _, ok := schema.ColumnByName(o.Column); !ok {
			return Value{}, fmt.Errorf("%w: column %s", ErrColumnNotFound, o.Column)
		}
	}
	v, present := row.Values[o.Column]
	if !present {
		return NullValue(), nil
	}
	return v, nil
}

// Comparison is one atomic predicate: left OP right.
type Comparison struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

// Evaluate returns whether the comparison holds for this row. Mixed
// int32/float32 operands are compared as float32; other differing types
// never compare equal (see Compare). A comparison against NULL is always
// false, matching conventional three-valued SQL semantics collapsed to
// boolean here.
func (c Comparison) Evaluate(row *Row, schema *Schema) (bool, error) {
	left, err := c.Left.resolve(row, schema)
	if err != nil {
		return false, err
	}
	right, err := c.Right.resolve(row, schema)
	if err != nil {
		return false, err
	}
	if left.IsNull() || right.IsNull() {
		return false, nil
	}
	if left.Type == TypeInt32 && right.Type == TypeFloat32 {
		left = FloatValue(float32(left.Int32))
	} else if left.Type == TypeFloat32 && right.Type == TypeInt32 {
		right = FloatValue(float32(right.Int32))
	}
	cmp := Compare(left, right)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNeq:
		return cmp != 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("storage: unknown comparison operator %v", c.Op)
	}
}

// Conjunction is an AND of comparisons (one inner clause of the DNF).
type Conjunction []Comparison

// Evaluate reports whether every comparison in the conjunction holds.
func (conj Conjunction) Evaluate(row *Row, schema *Schema) (bool, error) {
	for _, c := range conj {
		ok, err := c.Evaluate(row, schema)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Condition is the system's where-clause shape: a disjunction (OR) of
// conjunctions (AND) of comparisons. A nil or empty Condition matches every
// row (no predicate).
type Condition struct {
	Disjuncts []Conjunction
}

// Evaluate reports whether at least one inner conjunction fully evaluates to
// true for the row.
func (cond *Condition) Evaluate(row *Row, schema *Schema) (bool, error) {
	if cond == nil || len(cond.Disjuncts) == 0 {
		return true, nil
	}
	for _, conj := range cond.Disjuncts {
		ok, err := conj.Evaluate(row, schema)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ColumnEquality returns the literal a condition pins a column to via a
// top-level equality, when the condition is a single conjunction made of
// exactly one such comparison. Used by the optimizer to recognize
// index-seek opportunities.
func (cond *Condition) ColumnEquality(column string) (Value, bool) {
	if cond == nil || len(cond.Disjuncts) != 1 || len(cond.Disjuncts[0]) != 1 {
		return Value{}, false
	}
	for _, c := range cond.Disjuncts[0] {
		if c.Op == OpEq {
			if c.Left.Kind == OperandColumn && c.Left.Column == column && c.Right.Kind == OperandLiteral {
				return c.Right.Literal, true
			}
			if c.Right.Kind == OperandColumn && c.Right.Column == column && c.Left.Kind == OperandLiteral {
				return c.Left.Literal, true
			}
		}
	}
	return Value{}, false
}
