// Package bridge implements an engine that talks to an interpreter running
// in a separate process.
//
// The two sides exchange JSON-RPC 2.0 messages framed with Content-Length
// headers over the child's stdin and stdout. The host sends one request
// per engine call. While a request runs the interpreter side sends
// "output" notifications and "diagnostic" requests back; the host answers
// a diagnostic with an error when the installed error handler wants the
// operation aborted.
//
// Server exposes any engine.Engine over the same protocol, so a Go
// interpreter wrapper can be written on top of this package.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Message is a JSON-RPC 2.0 message.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Error codes. The application range starts at -32000.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeNotFound       = -32001
	CodeDiagnostic     = -32002
	CodeAborted        = -32003
)

// Method names.
const (
	MethodInitialize   = "initialize"
	MethodShutdown     = "shutdown"
	MethodEvaluate     = "evaluate"
	MethodReadFile     = "readFile"
	MethodReadDataFile = "readDataFile"
	MethodSolve        = "solve"
	MethodValue        = "value"
	MethodLookupEntity = "lookupEntity"
	MethodListEntities = "listEntities"
	MethodAttribute    = "attribute"
	MethodSetAttribute = "setAttribute"
	MethodMembers      = "members"
	MethodContains     = "contains"
	MethodQuery        = "query"
	MethodAssign       = "assign"
	MethodSetOption    = "setOption"
	MethodOption       = "option"
	MethodCwd          = "cwd"
	MethodSetCwd       = "setCwd"
	MethodInterrupt    = "interrupt"
	MethodOutput       = "output"
	MethodDiagnostic   = "diagnostic"
)

// errAborted signals that the host's error handler stopped the operation.
var errAborted = errors.New("operation aborted by error handler")

// InitializeParams starts the interpreter session.
type InitializeParams struct {
	Dir    string         `json:"dir,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// StatementsParams carries statements to evaluate.
type StatementsParams struct {
	Statements string `json:"statements"`
}

// PathParams carries a file or directory path.
type PathParams struct {
	Path string `json:"path"`
}

// ExprParams carries a scalar expression.
type ExprParams struct {
	Expr string `json:"expr"`
}

// EntityParams names an entity of a kind.
type EntityParams struct {
	Kind engine.Kind `json:"kind"`
	Name string      `json:"name,omitempty"`
}

// AttributeParams addresses a suffix of one entity instance.
type AttributeParams struct {
	Handle engine.Handle `json:"handle"`
	Attr   string        `json:"attr,omitempty"`
	Index  engine.Tuple  `json:"index,omitempty"`
	Value  *engine.Value `json:"value,omitempty"`
	Member engine.Tuple  `json:"member,omitempty"`
}

// QueryParams lists display expressions.
type QueryParams struct {
	Expressions []string `json:"expressions"`
}

// AssignParams carries a table to assign.
type AssignParams struct {
	Frame *engine.RawFrame `json:"frame"`
}

// OptionParams reads or writes an option. Type is one of "int", "float",
// "bool" or "string".
type OptionParams struct {
	Name  string          `json:"name"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// OutputParams is one block of interpreter output.
type OutputParams struct {
	Kind    engine.OutputKind `json:"kind"`
	Message string            `json:"message"`
}

func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	var diag *engine.Diagnostic
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, errAborted):
		return &RPCError{Code: CodeAborted, Message: err.Error()}
	case errors.Is(err, engine.ErrNotFound):
		return &RPCError{Code: CodeNotFound, Message: err.Error()}
	case errors.As(err, &diag):
		data, _ := json.Marshal(diag)
		return &RPCError{Code: CodeDiagnostic, Message: diag.Error(), Data: data}
	default:
		return &RPCError{Code: CodeInternal, Message: err.Error()}
	}
}

func fromRPCError(e *RPCError) error {
	switch e.Code {
	case CodeAborted:
		return errAborted
	case CodeNotFound:
		return fmt.Errorf("%s: %w", e.Message, engine.ErrNotFound)
	case CodeDiagnostic:
		var d engine.Diagnostic
		if err := json.Unmarshal(e.Data, &d); err == nil {
			return &d
		}
		return e
	default:
		return e
	}
}
