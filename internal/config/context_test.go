// Package config provides context persistence tests.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tOgg1/chatsync/internal/models"
)

func TestContext_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{
			name: "empty context",
			ctx:  Context{},
			want: true,
		},
		{
			name: "with list only",
			ctx:  Context{List: "main"},
			want: false,
		},
		{
			name: "with filter only",
			ctx:  Context{Filter: models.Filter{UnreadOnly: true}},
			want: false,
		},
		{
			name: "blank query",
			ctx:  Context{Filter: models.Filter{Query: "  "}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.IsEmpty(); got != tt.want {
				t.Errorf("Context.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_SetListDropsFilter(t *testing.T) {
	ctx := &Context{}
	ctx.SetList(models.ListMain)
	ctx.SetFilter(models.Filter{MutedOnly: true})

	ctx.SetList(models.ListMain)
	if !ctx.Filter.MutedOnly {
		t.Error("reselecting the same list should keep the filter")
	}

	ctx.SetList(models.ListArchive)
	if !ctx.Filter.IsZero() {
		t.Errorf("Filter = %+v, want zero after switching list", ctx.Filter)
	}
	if ctx.List != "archive" {
		t.Errorf("List = %v, want archive", ctx.List)
	}
	if ctx.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestContext_String(t *testing.T) {
	ctx := &Context{}
	if got := ctx.String(); got != "(no context set)" {
		t.Errorf("String() = %q", got)
	}

	ctx.SetList(models.FolderList(3))
	ctx.SetFilter(models.Filter{Query: "team", UnreadOnly: true})
	ctx.Collapsed = true

	got := ctx.String()
	for _, want := range []string{"list:folder:3", `query:"team"`, "unread", "archive:collapsed"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}

func TestContextStore_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewContextStore(filepath.Join(tmpDir, "nested", "context.yaml"))

	ctx := &Context{
		List:      "folder:2",
		Filter:    models.Filter{Query: "ops", MentionsOnly: true},
		Collapsed: true,
	}

	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.List != ctx.List {
		t.Errorf("List = %v, want %v", loaded.List, ctx.List)
	}
	if loaded.Filter != ctx.Filter {
		t.Errorf("Filter = %+v, want %+v", loaded.Filter, ctx.Filter)
	}
	if !loaded.Collapsed {
		t.Error("Collapsed = false, want true")
	}
}

func TestContextStore_LoadEmpty(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.IsEmpty() {
		t.Error("Load() should return empty context for non-existent file")
	}
}

func TestContextStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.yaml")
	if err := os.WriteFile(path, []byte("list: [unterminated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewContextStore(path).Load(); err == nil {
		t.Fatal("Load() should fail on malformed yaml")
	}
}

func TestContextStore_Clear(t *testing.T) {
	contextPath := filepath.Join(t.TempDir(), "context.yaml")
	store := NewContextStore(contextPath)

	if err := store.Save(&Context{List: "main"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		t.Fatal("context file should exist after save")
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(contextPath); !os.IsNotExist(err) {
		t.Error("context file should be removed after clear")
	}

	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}
