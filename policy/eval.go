package policy

// maxEvalSteps bounds the number of node visits a single Eval call may
// perform as an infinite-recursion guard. Validated trees are finite
// and acyclic, so this is a backstop, not a normal exit path.
const maxEvalSteps = 100_000

// Eval walks tree from its root against ctx using an explicit node-ID
// stack rather than Go call recursion, and returns the terminal
// action. Evaluation never mutates tree or ctx (aside from the
// ActionSetStateRegister action being the caller's responsibility to
// apply): Eval only reports what the policy wants, once; it never
// applies it.
func Eval(tree *Tree, ctx *Context) (ActionSpec, error) {
	if tree == nil {
		return ActionSpec{Kind: ActionNoOp}, nil
	}

	nodeID := tree.Root
	for steps := 0; ; steps++ {
		if steps >= maxEvalSteps {
			return ActionSpec{}, &EvalError{NodeID: nodeID, Reason: "infinite recursion guard exceeded"}
		}

		node, ok := tree.Nodes[nodeID]
		if !ok {
			return ActionSpec{}, &EvalError{NodeID: nodeID, Reason: "reference to undefined node"}
		}

		switch node.Type {
		case NodeAction:
			if err := checkActionLegal(tree.Kind, node); err != nil {
				return ActionSpec{}, err
			}
			return node.Action, nil

		case NodeCondition:
			left, err := evalOperand(&node.Left, ctx)
			if err != nil {
				return ActionSpec{}, wrapNode(node.ID, err)
			}
			right, err := evalOperand(&node.Right, ctx)
			if err != nil {
				return ActionSpec{}, wrapNode(node.ID, err)
			}
			if compare(node.Op, left, right) {
				nodeID = node.OnTrue
			} else {
				nodeID = node.OnFalse
			}

		default:
			return ActionSpec{}, &EvalError{NodeID: node.ID, Reason: "unknown node type"}
		}
	}
}

func wrapNode(id string, err error) error {
	if ee, ok := err.(*EvalError); ok && ee.NodeID == "" {
		ee.NodeID = id
		return ee
	}
	return err
}

func compare(op CompareOp, l, r float64) bool {
	switch op {
	case OpLT:
		return l < r
	case OpLE:
		return l <= r
	case OpGT:
		return l > r
	case OpGE:
		return l >= r
	case OpEQ:
		return l == r
	case OpNE:
		return l != r
	default:
		return false
	}
}

// evalOperand resolves a single operand to a float64. Compute operands
// are evaluated with an explicit worklist rather than native Go
// recursion so a pathological, deeply-nested (but finite/validated)
// compute expression cannot overflow the call stack.
func evalOperand(o *Operand, ctx *Context) (float64, error) {
	switch o.Kind {
	case OperandField:
		return ctx.field(o.Field)
	case OperandParam:
		return ctx.param(o.Param)
	case OperandValue:
		return o.Value, nil
	case OperandRegister:
		return ctx.register(o.Register)
	case OperandCompute:
		return evalCompute(o.Compute, ctx)
	default:
		return 0, &EvalError{Reason: "unknown operand kind"}
	}
}

// computeFrame is one pending node of an iterative compute-expression
// walk: either "not yet visited" (evaluate children first) or
// "children evaluated, combine now".
type computeFrame struct {
	expr        *ComputeExpr
	left, right float64
	haveLeft    bool
	haveRight   bool
}

func evalCompute(expr *ComputeExpr, ctx *Context) (float64, error) {
	// compute expressions are a small finite tree themselves; an
	// explicit stack of frames evaluates them depth-first without Go
	// recursion.
	var stack []*computeFrame
	stack = append(stack, &computeFrame{expr: expr})

	var lastResult float64
	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !top.haveLeft {
			v, isLeaf, err := resolveComputeOperand(top.expr.Left, ctx)
			if err != nil {
				return 0, err
			}
			if isLeaf {
				top.left = v
				top.haveLeft = true
			} else {
				stack = append(stack, &computeFrame{expr: top.expr.Left.Compute})
				continue
			}
		}

		if !top.haveRight {
			v, isLeaf, err := resolveComputeOperand(top.expr.Right, ctx)
			if err != nil {
				return 0, err
			}
			if isLeaf {
				top.right = v
				top.haveRight = true
			} else {
				stack = append(stack, &computeFrame{expr: top.expr.Right.Compute})
				continue
			}
		}

		result, err := applyComputeOp(top.expr.Op, top.left, top.right)
		if err != nil {
			return 0, err
		}
		lastResult = result
		stack = stack[:len(stack)-1]

		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			if !parent.haveLeft && parent.expr.Left.Kind == OperandCompute {
				parent.left = result
				parent.haveLeft = true
			} else {
				parent.right = result
				parent.haveRight = true
			}
		}
	}
	return lastResult, nil
}

// resolveComputeOperand returns (value, true, nil) for any non-compute
// operand (a leaf for purposes of the iterative walk), or
// (0, false, nil) for a nested compute operand that the caller must
// push onto its stack instead.
func resolveComputeOperand(o *Operand, ctx *Context) (float64, bool, error) {
	if o == nil {
		return 0, false, &EvalError{Reason: "compute expression missing operand"}
	}
	if o.Kind == OperandCompute {
		return 0, false, nil
	}
	v, err := evalOperand(o, ctx)
	return v, true, err
}

// applyComputeOp applies a compute operator. Division by zero
// evaluates to 0, not a fault.
func applyComputeOp(op ComputeOp, l, r float64) (float64, error) {
	switch op {
	case ComputeAdd:
		return l + r, nil
	case ComputeSub:
		return l - r, nil
	case ComputeMul:
		return l * r, nil
	case ComputeDiv:
		if r == 0 {
			return 0, nil
		}
		return l / r, nil
	case ComputeMin:
		if l < r {
			return l, nil
		}
		return r, nil
	case ComputeMax:
		if l > r {
			return l, nil
		}
		return r, nil
	default:
		return 0, &EvalError{Reason: "unknown compute op"}
	}
}

func checkActionLegal(kind TreeKind, node *Node) error {
	allowed := legalActionsByTreeKind[kind]
	if allowed == nil || !allowed[node.Action.Kind] {
		return &EvalError{NodeID: node.ID, Reason: "action " + string(node.Action.Kind) + " forbidden in tree kind " + string(kind)}
	}
	return nil
}
