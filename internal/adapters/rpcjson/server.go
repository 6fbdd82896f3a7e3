package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/uk030621/MultiAdaptDB/internal/application"
	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

// Server exposes the builder operations over JSON-RPC 2.0 on a local unix
// socket, for the CLI. Callers pass the actor email per request; the same
// allow-list gate applies as over HTTP.
type Server struct {
	service  *application.BuilderService
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Start(path string, service *application.BuilderService) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "databases.list":
		out, err := s.service.ListSlots(ctx)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "databases.rename":
		var p struct {
			Actor string `json:"actor"`
			Index int    `json:"index"`
			Name  string `json:"name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.RenameSlot(ctx, p.Actor, p.Index, p.Name); err != nil {
			return appError(req.ID, err)
		}
		out, err := s.service.ListSlots(ctx)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "fields.list":
		var p struct {
			Slot int `json:"slot"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err := s.service.ListFields(ctx, p.Slot)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "fields.create":
		var p struct {
			Actor   string   `json:"actor"`
			Slot    int      `json:"slot"`
			Name    string   `json:"name"`
			Label   string   `json:"label"`
			Type    string   `json:"type"`
			Options []string `json:"options"`
			Order   int      `json:"order"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err := s.service.CreateField(ctx, p.Actor, p.Slot, domain.FieldDefinition{
			Name:    p.Name,
			Label:   p.Label,
			Type:    domain.FieldType(p.Type),
			Options: p.Options,
			Order:   p.Order,
		})
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "fields.update":
		var p struct {
			Actor   string    `json:"actor"`
			Slot    int       `json:"slot"`
			ID      any       `json:"id"`
			Label   *string   `json:"label"`
			Type    *string   `json:"type"`
			Options *[]string `json:"options"`
			Order   *int      `json:"order"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		var patch domain.FieldPatch
		patch.Label = p.Label
		if p.Type != nil {
			ft := domain.FieldType(*p.Type)
			patch.Type = &ft
		}
		patch.Options = p.Options
		patch.Order = p.Order
		if err := s.service.UpdateField(ctx, p.Actor, p.Slot, p.ID, patch); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "fields.delete":
		var p struct {
			Actor string `json:"actor"`
			Slot  int    `json:"slot"`
			ID    any    `json:"id"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.DeleteField(ctx, p.Actor, p.Slot, p.ID); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "fields.reorder":
		var p struct {
			Actor string `json:"actor"`
			Slot  int    `json:"slot"`
			IDs   []any  `json:"ids"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.ReorderFields(ctx, p.Actor, p.Slot, p.IDs); err != nil {
			return appError(req.ID, err)
		}
		out, err := s.service.ListFields(ctx, p.Slot)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "records.list":
		var p struct {
			Slot int    `json:"slot"`
			Q    string `json:"q"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		var out []domain.Record
		var err error
		if strings.TrimSpace(p.Q) == "" {
			out, err = s.service.ListRecords(ctx, p.Slot)
		} else {
			out, err = s.service.SearchRecords(ctx, p.Slot, p.Q)
		}
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "records.create":
		var p struct {
			Actor string         `json:"actor"`
			Slot  int            `json:"slot"`
			Attrs map[string]any `json:"attrs"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err := s.service.CreateRecord(ctx, p.Actor, p.Slot, p.Attrs)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "records.update":
		var p struct {
			Actor string         `json:"actor"`
			Slot  int            `json:"slot"`
			ID    any            `json:"id"`
			Attrs map[string]any `json:"attrs"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.UpdateRecord(ctx, p.Actor, p.Slot, p.ID, p.Attrs); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "records.delete":
		var p struct {
			Actor string `json:"actor"`
			Slot  int    `json:"slot"`
			ID    any    `json:"id"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.DeleteRecord(ctx, p.Actor, p.Slot, p.ID); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "records.purge":
		var p struct {
			Actor string `json:"actor"`
			Slot  int    `json:"slot"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.PurgeRecords(ctx, p.Actor, p.Slot); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "sync.run":
		var p struct {
			Actor string `json:"actor"`
			Slot  int    `json:"slot"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.Resync(ctx, p.Actor, p.Slot); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "access.list":
		out, err := s.service.ListAllowed(ctx)
		if err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, out)
	case "access.allow":
		var p struct {
			Actor string `json:"actor"`
			Email string `json:"email"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.Allow(ctx, p.Actor, p.Email); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	case "access.disallow":
		var p struct {
			Actor string `json:"actor"`
			Email string `json:"email"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if err := s.service.Disallow(ctx, p.Actor, p.Email); err != nil {
			return appError(req.ID, err)
		}
		return ok(req.ID, map[string]any{"ok": true})
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func ok(id any, result any) response {
	return response{JSONRPC: "2.0", Result: result, ID: id}
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

func appError(id any, err error) response {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "unauthorized"}, ID: id}
	case errors.Is(err, domain.ErrInvalidArgument):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40000, Message: err.Error()}, ID: id}
	case errors.Is(err, domain.ErrNotFound):
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 40400, Message: err.Error()}, ID: id}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: 50000, Message: "internal error"}, ID: id}
	}
}
