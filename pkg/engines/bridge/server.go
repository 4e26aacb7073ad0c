package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Server serves an engine.Engine to a bridge host over r and w.
type Server struct {
	eng    engine.Engine
	conn   *Conn
	logger *slog.Logger

	// The request being served. Diagnostics are sent under its context
	// and an interrupt cancels it.
	mu     sync.Mutex
	reqCtx context.Context
	cancel context.CancelFunc
}

// NewServer creates a server for eng. The engine is started when the host
// sends "initialize" and closed on "shutdown".
func NewServer(r io.Reader, w io.Writer, eng engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{eng: eng, logger: logger}
	s.conn = NewConn(r, w, s.handle, logger)
	eng.SetOutputHandler(engine.OutputHandlerFunc(s.forwardOutput))
	eng.SetErrorHandler(serverErrors{s})
	return s
}

// Run serves requests until the host closes the stream.
func (s *Server) Run(ctx context.Context) error {
	err := s.conn.Run(ctx)
	if s.eng.IsRunning() {
		if cerr := s.eng.Close(); cerr != nil {
			s.logger.Warn("failed to close engine", "error", cerr)
		}
	}
	return err
}

func (s *Server) forwardOutput(kind engine.OutputKind, msg string) {
	if err := s.conn.Notify(MethodOutput, OutputParams{Kind: kind, Message: msg}); err != nil {
		s.logger.Debug("dropped output", "error", err)
	}
}

// serverErrors asks the host what to do with each diagnostic.
type serverErrors struct{ s *Server }

func (h serverErrors) HandleError(d *engine.Diagnostic) error   { return h.s.askHost(d) }
func (h serverErrors) HandleWarning(d *engine.Diagnostic) error { return h.s.askHost(d) }

func (s *Server) askHost(d *engine.Diagnostic) error {
	s.mu.Lock()
	ctx := s.reqCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.conn.Call(ctx, MethodDiagnostic, d, nil)
}

func (s *Server) interrupt(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if in, ok := s.eng.(engine.Interrupter); ok {
		return in.Interrupt(ctx)
	}
	return nil
}

func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return v, nil
}

func (s *Server) handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	if method == MethodInterrupt {
		return nil, s.interrupt(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.reqCtx, s.cancel = ctx, cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reqCtx, s.cancel = nil, nil
		s.mu.Unlock()
		cancel()
	}()

	s.logger.Debug("request", "method", method)

	switch method {
	case MethodInitialize:
		p, err := decode[InitializeParams](params)
		if err != nil {
			return nil, err
		}
		return nil, s.eng.Start(ctx, engine.Config{Dir: p.Dir, Params: p.Params})
	case MethodShutdown:
		return nil, s.eng.Close()
	case MethodEvaluate:
		p, err := decode[StatementsParams](params)
		if err != nil {
			return nil, err
		}
		return nil, s.eng.Evaluate(ctx, p.Statements)
	case MethodReadFile, MethodReadDataFile:
		p, err := decode[PathParams](params)
		if err != nil {
			return nil, err
		}
		if method == MethodReadFile {
			return nil, s.eng.ReadFile(ctx, p.Path)
		}
		return nil, s.eng.ReadDataFile(ctx, p.Path)
	case MethodSolve:
		return nil, s.eng.Solve(ctx)
	case MethodValue:
		p, err := decode[ExprParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.Value(ctx, p.Expr)
	case MethodLookupEntity:
		p, err := decode[EntityParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.LookupEntity(ctx, p.Kind, p.Name)
	case MethodListEntities:
		p, err := decode[EntityParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.ListEntities(ctx, p.Kind)
	case MethodAttribute, MethodSetAttribute, MethodMembers, MethodContains:
		p, err := decode[AttributeParams](params)
		if err != nil {
			return nil, err
		}
		return s.entityCall(ctx, method, p)
	case MethodQuery:
		p, err := decode[QueryParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.Query(ctx, p.Expressions)
	case MethodAssign:
		p, err := decode[AssignParams](params)
		if err != nil {
			return nil, err
		}
		return nil, s.eng.Assign(ctx, p.Frame)
	case MethodSetOption:
		p, err := decode[OptionParams](params)
		if err != nil {
			return nil, err
		}
		return nil, s.setOption(ctx, p)
	case MethodOption:
		p, err := decode[OptionParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.Option(ctx, p.Name)
	case MethodCwd:
		return s.eng.Cwd(ctx)
	case MethodSetCwd:
		p, err := decode[PathParams](params)
		if err != nil {
			return nil, err
		}
		return s.eng.SetCwd(ctx, p.Path)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method}
	}
}

func (s *Server) entityCall(ctx context.Context, method string, p AttributeParams) (any, error) {
	switch method {
	case MethodAttribute:
		return s.eng.Attribute(ctx, p.Handle, p.Attr, p.Index)
	case MethodSetAttribute:
		if p.Value == nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid params: value is required"}
		}
		return nil, s.eng.SetAttribute(ctx, p.Handle, p.Attr, p.Index, *p.Value)
	case MethodMembers:
		return s.eng.Members(ctx, p.Handle, p.Index)
	default:
		return s.eng.Contains(ctx, p.Handle, p.Index, p.Member)
	}
}

func (s *Server) setOption(ctx context.Context, p OptionParams) error {
	switch p.Type {
	case "int":
		v, err := decode[int64](p.Value)
		if err != nil {
			return err
		}
		return s.eng.SetIntOption(ctx, p.Name, v)
	case "float":
		v, err := decode[float64](p.Value)
		if err != nil {
			return err
		}
		return s.eng.SetFloatOption(ctx, p.Name, v)
	case "bool":
		v, err := decode[bool](p.Value)
		if err != nil {
			return err
		}
		return s.eng.SetBoolOption(ctx, p.Name, v)
	case "string":
		v, err := decode[string](p.Value)
		if err != nil {
			return err
		}
		return s.eng.SetStringOption(ctx, p.Name, v)
	default:
		return &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: unknown option type %q", p.Type)}
	}
}
