package lsp

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/coralstor/coral/pkg/testutil"
)

// startServer connects a language server to an in-process client and
// returns the client side plus a channel of published diagnostics.
func startServer(t *testing.T) (*jsonrpc2.Conn, chan lsp.PublishDiagnosticsParams) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	ctx := context.Background()
	server := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		handler(newServer()))

	diagCh := make(chan lsp.PublishDiagnosticsParams, 8)
	client := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			if req.Method == "textDocument/publishDiagnostics" {
				var params lsp.PublishDiagnosticsParams
				if err := json.Unmarshal(*req.Params, &params); err != nil {
					t.Error(err)
				}
				diagCh <- params
			}
			return nil, nil
		}))
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, diagCh
}

func waitDiagnostics(t *testing.T, ch chan lsp.PublishDiagnosticsParams) lsp.PublishDiagnosticsParams {
	t.Helper()
	select {
	case params := <-ch:
		return params
	case <-time.After(testutil.Scaled(5 * time.Second)):
		t.Fatal("timed out waiting for diagnostics")
		panic("unreachable")
	}
}

func didOpen(t *testing.T, client *jsonrpc2.Conn, uri lsp.DocumentURI, content string) {
	t.Helper()
	err := client.Call(context.Background(), "textDocument/didOpen",
		lsp.DidOpenTextDocumentParams{
			TextDocument: lsp.TextDocumentItem{URI: uri, Text: content}}, nil)
	if err != nil {
		t.Fatal(err)
	}
}

func TestInitialize(t *testing.T) {
	client, _ := startServer(t)
	var result lsp.InitializeResult
	err := client.Call(context.Background(), "initialize", lsp.InitializeParams{}, &result)
	if err != nil {
		t.Fatal(err)
	}
	sync := result.Capabilities.TextDocumentSync
	if sync == nil || sync.Options == nil || sync.Options.Change != lsp.TDSKFull {
		t.Errorf("capabilities do not advertise full-document sync: %+v", sync)
	}
	if result.Capabilities.CompletionProvider == nil {
		t.Errorf("capabilities do not advertise completion")
	}
}

func TestDiagnostics_ParseError(t *testing.T) {
	client, diagCh := startServer(t)
	didOpen(t, client, "file:///a.crl", "search == ==\n")
	params := waitDiagnostics(t, diagCh)
	if params.URI != "file:///a.crl" {
		t.Errorf("URI = %q", params.URI)
	}
	if len(params.Diagnostics) == 0 {
		t.Fatal("no diagnostics for malformed input")
	}
	d := params.Diagnostics[0]
	if d.Severity != lsp.Error || d.Source != "parse" {
		t.Errorf("diagnostic = %+v", d)
	}
	if d.Range.Start.Line != 0 {
		t.Errorf("diagnostic on line %d, want 0", d.Range.Start.Line)
	}
}

func TestDiagnostics_LexError(t *testing.T) {
	client, diagCh := startServer(t)
	// An unmatched ')' fails in the tokenizer, so the diagnostic carries the
	// lex source label.
	didOpen(t, client, "file:///a.crl", "volume ) show\n")
	params := waitDiagnostics(t, diagCh)
	if len(params.Diagnostics) == 0 {
		t.Fatal("no diagnostics for malformed input")
	}
	d := params.Diagnostics[0]
	if d.Severity != lsp.Error || d.Source != "lex" {
		t.Errorf("diagnostic = %+v", d)
	}
}

func TestDiagnostics_CleanAfterFix(t *testing.T) {
	client, diagCh := startServer(t)
	didOpen(t, client, "file:///a.crl", "volume ) show\n")
	if got := waitDiagnostics(t, diagCh); len(got.Diagnostics) == 0 {
		t.Fatal("no diagnostics for malformed input")
	}

	err := client.Call(context.Background(), "textDocument/didChange",
		lsp.DidChangeTextDocumentParams{
			TextDocument: lsp.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///a.crl"},
				Version:                2},
			ContentChanges: []lsp.TextDocumentContentChangeEvent{
				{Text: "volume show\n"}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := waitDiagnostics(t, diagCh); len(got.Diagnostics) != 0 {
		t.Errorf("diagnostics remain after fix: %+v", got.Diagnostics)
	}
}

func TestCompletion(t *testing.T) {
	client, _ := startServer(t)
	didOpen(t, client, "file:///a.crl", "ec")

	var items []lsp.CompletionItem
	err := client.Call(context.Background(), "textDocument/completion",
		lsp.CompletionParams{
			TextDocumentPositionParams: lsp.TextDocumentPositionParams{
				TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.crl"},
				Position:     lsp.Position{Line: 0, Character: 2}}}, &items)
	if err != nil {
		t.Fatal(err)
	}
	item := findItem(items, "echo")
	if item == nil {
		t.Fatalf("no echo in completions: %+v", items)
	}
	if item.Kind != lsp.CIKFunction {
		t.Errorf("echo completes as %v, want function", item.Kind)
	}
	wantRange := lsp.Range{
		Start: lsp.Position{Line: 0, Character: 0},
		End:   lsp.Position{Line: 0, Character: 2}}
	if item.TextEdit == nil || item.TextEdit.Range != wantRange {
		t.Errorf("edit = %+v, want range %+v", item.TextEdit, wantRange)
	}
}

func TestCompletion_Keyword(t *testing.T) {
	client, _ := startServer(t)
	didOpen(t, client, "file:///a.crl", "wh")

	var items []lsp.CompletionItem
	err := client.Call(context.Background(), "textDocument/completion",
		lsp.CompletionParams{
			TextDocumentPositionParams: lsp.TextDocumentPositionParams{
				TextDocument: lsp.TextDocumentIdentifier{URI: "file:///a.crl"},
				Position:     lsp.Position{Line: 0, Character: 2}}}, &items)
	if err != nil {
		t.Fatal(err)
	}
	item := findItem(items, "while")
	if item == nil {
		t.Fatalf("no while in completions: %+v", items)
	}
	if item.Kind != lsp.CIKKeyword {
		t.Errorf("while completes as %v, want keyword", item.Kind)
	}
}

func TestUnknownMethod(t *testing.T) {
	client, _ := startServer(t)
	err := client.Call(context.Background(), "textDocument/rename", struct{}{}, nil)
	var rpcErr *jsonrpc2.Error
	if !asRPCError(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("got %v, want method-not-found", err)
	}
}

func findItem(items []lsp.CompletionItem, label string) *lsp.CompletionItem {
	for i := range items {
		if items[i].Label == label {
			return &items[i]
		}
	}
	return nil
}

func asRPCError(err error, target **jsonrpc2.Error) bool {
	e, ok := err.(*jsonrpc2.Error)
	if ok {
		*target = e
	}
	return ok
}
