package policy

// FieldName enumerates the closed set of per-transaction context
// fields a condition operand may reference. Exported so
// an external validator (the driver layer) can
// pre-check a policy against the same closed set the engine uses.
type FieldName string

const (
	FieldBalance               FieldName = "balance"
	FieldUnsecuredCapRemaining FieldName = "unsecured_cap_remaining"
	FieldPostedCollateral      FieldName = "posted_collateral"
	FieldQ1Size                FieldName = "q1_size"
	FieldTicksToDeadline       FieldName = "ticks_to_deadline"
	FieldPriority              FieldName = "priority"
	FieldAmount                FieldName = "amount"
	FieldIncomingLiquidity     FieldName = "incoming_liquidity_estimate"
	FieldTickOfDay             FieldName = "tick_of_day"
)

// AllFields is the closed set of legal field names, for validators.
var AllFields = map[FieldName]bool{
	FieldBalance:               true,
	FieldUnsecuredCapRemaining: true,
	FieldPostedCollateral:      true,
	FieldQ1Size:                true,
	FieldTicksToDeadline:       true,
	FieldPriority:              true,
	FieldAmount:                true,
	FieldIncomingLiquidity:     true,
	FieldTickOfDay:             true,
}

// Context is the read-only snapshot a policy tree is evaluated
// against. Per-transaction fields are only meaningful when evaluating
// the payment tree; the collateral and bank trees only read
// agent-level fields (Balance, UnsecuredCapRemaining, PostedCollateral,
// Q1Size, TickOfDay) and registers/params.
type Context struct {
	Balance               int64
	UnsecuredCapRemaining int64
	PostedCollateral      int64
	Q1Size                int
	TicksToDeadline       int64
	Priority              int
	Amount                int64
	IncomingLiquidity     int64
	TickOfDay             int64

	Params    map[string]float64
	Registers RegisterStore
}

// RegisterStore is the read access a policy context needs onto an
// agent's state registers. agent.Registers implements this with an
// insertion-ordered map — defined as an interface here, rather than importing
// the agent package directly, to avoid a policy<->agent import cycle
// (agent.Agent embeds a Policy).
type RegisterStore interface {
	Get(name string) (float64, bool)
}

// field reads a named context field. Returns an error for any name
// outside the closed AllFields set.
func (c *Context) field(name string) (float64, error) {
	switch FieldName(name) {
	case FieldBalance:
		return float64(c.Balance), nil
	case FieldUnsecuredCapRemaining:
		return float64(c.UnsecuredCapRemaining), nil
	case FieldPostedCollateral:
		return float64(c.PostedCollateral), nil
	case FieldQ1Size:
		return float64(c.Q1Size), nil
	case FieldTicksToDeadline:
		return float64(c.TicksToDeadline), nil
	case FieldPriority:
		return float64(c.Priority), nil
	case FieldAmount:
		return float64(c.Amount), nil
	case FieldIncomingLiquidity:
		return float64(c.IncomingLiquidity), nil
	case FieldTickOfDay:
		return float64(c.TickOfDay), nil
	default:
		return 0, &EvalError{Reason: "undefined field: " + name}
	}
}

func (c *Context) param(name string) (float64, error) {
	if c.Params == nil {
		return 0, &EvalError{Reason: "undefined param: " + name}
	}
	v, ok := c.Params[name]
	if !ok {
		return 0, &EvalError{Reason: "undefined param: " + name}
	}
	return v, nil
}

func (c *Context) register(name string) (float64, error) {
	if c.Registers == nil {
		return 0, &EvalError{Reason: "undefined register: " + name}
	}
	v, ok := c.Registers.Get(name)
	if !ok {
		return 0, &EvalError{Reason: "undefined register: " + name}
	}
	return v, nil
}
