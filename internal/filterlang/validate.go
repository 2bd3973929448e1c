package filterlang

import "fmt"

// Validate walks the parsed tree and rejects predicates whose operator
// or literal is inapplicable to the named property. Validation never
// mutates the tree or consults the dataset -- it is purely syntactic.
func Validate(n Node) error {
	switch n.Kind {
	case NodePredicate:
		return validatePredicate(n.Predicate)
	case NodeAnd, NodeOr:
		for _, c := range n.Children {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	case NodeNot:
		return Validate(*n.Inner)
	}
	return nil
}

func validatePredicate(p Predicate) error {
	if !p.Inherent {
		// Attribute predicates accept any operator/literal; type
		// applicability is resolved against the dataset at lowering
		// time since attribute value types vary per-entity.
		return nil
	}

	switch p.Property {
	case PropertyLevel:
		if p.Value.Kind != ExprCompare || (p.Value.CompareOp != OpEq && p.Value.CompareOp != OpGte) {
			return fmt.Errorf("filterlang: #level only admits '=' or '>=', got %q", renderValue(p.Value))
		}
		if _, ok := severityByName(p.Value.Literal); !ok {
			return fmt.Errorf("filterlang: #level literal %q is not a known severity", p.Value.Literal)
		}
	case PropertyParent, PropertyTrace:
		if p.Value.Kind == ExprCompare && p.Value.CompareOp != OpEq {
			return fmt.Errorf("filterlang: #%s only admits '=' comparisons", propertyName(p.Property))
		}
	case PropertyNamespace, PropertyFunction, PropertyFile, PropertyName:
		if p.Value.Kind == ExprCompare && p.Value.CompareOp != OpEq {
			return fmt.Errorf("filterlang: #%s only admits '=' among comparisons (use a wildcard/regex otherwise)", propertyName(p.Property))
		}
	case PropertyCreated, PropertyClosed, PropertyDuration:
		if p.Value.Kind != ExprCompare {
			return fmt.Errorf("filterlang: #%s requires a comparison operator", propertyName(p.Property))
		}
	case PropertyContent:
		// any form accepted; type mismatch is a residual no-match at
		// evaluation time.
	}
	return nil
}

func propertyName(p Property) string {
	for name, candidate := range propertyNames {
		if candidate == p {
			return name
		}
	}
	return "unknown"
}

func renderValue(v ValueExpr) string {
	switch v.Kind {
	case ExprCompare:
		return fmt.Sprintf("cmp(%d) %s", v.CompareOp, v.Literal)
	case ExprRegex:
		return "/" + v.Literal + "/"
	default:
		return v.Literal
	}
}

var severityNames = map[string]int{
	"TRACE": 1, "DEBUG": 2, "INFO": 3, "WARN": 4, "ERROR": 5, "FATAL": 6,
}

func severityByName(name string) (int, bool) {
	v, ok := severityNames[name]
	return v, ok
}
