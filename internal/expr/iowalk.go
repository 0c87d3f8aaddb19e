package expr

// FindIO locates the first *IO node inside an Expression tree, walking every
// variant an @modify/@cache chain can wrap an upstream call in. Returns nil
// for expressions that never touch an upstream (@const, @expr templates, and
// plain property projection).
func FindIO(e Expression) *IO {
	switch v := e.(type) {
	case *IO:
		return v
	case Cached:
		return FindIO(v.Inner)
	case DefaultTo:
		return firstIO(v.Inner, v.Default)
	case IsEmpty:
		return FindIO(v.Inner)
	case Not:
		return FindIO(v.Inner)
	case Inc:
		return FindIO(v.Inner)
	case Dec:
		return FindIO(v.Inner)
	case Negate:
		return FindIO(v.Inner)
	case SortPath:
		return FindIO(v.Inner)
	case If:
		return firstIO(v.Cond, v.Then, v.Else)
	case Cond:
		for _, b := range v.Branches {
			if io := firstIO(b.Cond, b.Then); io != nil {
				return io
			}
		}
		return FindIO(v.Default)
	case And:
		return firstIO(v.Exprs...)
	case Or:
		return firstIO(v.Exprs...)
	case Concat:
		return firstIO(v.Exprs...)
	case Sum:
		return firstIO(v.Exprs...)
	case Product:
		return firstIO(v.Exprs...)
	case Max:
		return firstIO(v.Exprs...)
	case Min:
		return firstIO(v.Exprs...)
	case Intersection:
		return firstIO(v.Exprs...)
	case Union:
		return firstIO(append(append([]Expression{}, v.Lhs...), v.Rhs...)...)
	case Difference:
		return firstIO(append(append([]Expression{}, v.Lhs...), v.Rhs...)...)
	case SymmetricDifference:
		return firstIO(append(append([]Expression{}, v.Lhs...), v.Rhs...)...)
	case Add:
		return firstIO(v.Lhs, v.Rhs)
	case Sub:
		return firstIO(v.Lhs, v.Rhs)
	case Mul:
		return firstIO(v.Lhs, v.Rhs)
	case Div:
		return firstIO(v.Lhs, v.Rhs)
	case Mod:
		return firstIO(v.Lhs, v.Rhs)
	case Equals:
		return firstIO(v.Lhs, v.Rhs)
	case Gt:
		return firstIO(v.Lhs, v.Rhs)
	case Gte:
		return firstIO(v.Lhs, v.Rhs)
	case Lt:
		return firstIO(v.Lhs, v.Rhs)
	case Lte:
		return firstIO(v.Lhs, v.Rhs)
	case PathEq:
		return firstIO(v.Lhs, v.Rhs)
	case PropEq:
		return firstIO(v.Lhs, v.Rhs)
	case Concurrency:
		return firstIO(v.Exprs...)
	default:
		return nil
	}
}

func firstIO(exprs ...Expression) *IO {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if io := FindIO(e); io != nil {
			return io
		}
	}
	return nil
}
