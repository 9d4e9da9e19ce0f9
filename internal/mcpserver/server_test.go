package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notelock/internal/noteservice"
	"github.com/starford/notelock/internal/protection"
	"github.com/starford/notelock/internal/storage"
	"github.com/starford/notelock/internal/testutil"
)

func testServer(t *testing.T, notes map[string]string) (*Server, storage.Provider) {
	t.Helper()
	_, store, db := testutil.IndexedVault(t, notes)
	checker, err := protection.New(store, db, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	return New(store, noteservice.NewService(store, db, nil), checker), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no "call tool" test helper, so the handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "protection_status":
		result, err = srv.protectionStatus(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t, nil)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	if text := resultText(r); text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "test.md"})
	if text := resultText(r); text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "again",
	})
	if !r.IsError {
		t.Error("expected error for duplicate create")
	}
}

func TestListNotesMarksProtected(t *testing.T) {
	srv, _ := testServer(t, map[string]string{
		"a.md":      "a",
		"secret.md": testutil.LockedNote,
	})

	text := resultText(callTool(t, srv, "list_notes", map[string]interface{}{}))
	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("list = %q", text)
	}
	if !strings.Contains(text, "secret.md [protected]") {
		t.Errorf("protected note not flagged: %q", text)
	}
	if strings.Contains(text, "a.md [protected]") {
		t.Errorf("plain note flagged: %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t, nil)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestReadProtectedNoteRefused(t *testing.T) {
	srv, _ := testServer(t, map[string]string{"secret.md": testutil.LockedNote})

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "secret.md"})
	if !r.IsError {
		t.Fatal("expected error for protected note")
	}
	if text := resultText(r); strings.Contains(text, "the body") {
		t.Errorf("protected body leaked: %q", text)
	}
}

func TestSearchHidesProtectedBody(t *testing.T) {
	srv, _ := testServer(t, map[string]string{"secret.md": testutil.LockedNote})

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "body"})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}
	if text := resultText(r); strings.Contains(text, "secret.md") {
		t.Errorf("protected body matched: %q", text)
	}
}

func TestProtectionStatus(t *testing.T) {
	srv, _ := testServer(t, map[string]string{
		"a.md":      "a",
		"secret.md": testutil.LockedNote,
	})

	for path, want := range map[string]string{"a.md": "unprotected", "secret.md": "protected"} {
		r := callTool(t, srv, "protection_status", map[string]interface{}{"path": path})
		if got := resultText(r); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	r := callTool(t, srv, "protection_status", map[string]interface{}{"path": "ghost.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestNoteContractMentionsMarker(t *testing.T) {
	srv, _ := testServer(t, nil)
	text := resultText(callTool(t, srv, "get_note_contract", nil))
	if !strings.Contains(text, "protected: encrypted") {
		t.Error("contract does not describe the protection marker")
	}
}
