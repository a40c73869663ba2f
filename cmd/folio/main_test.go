package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()

	want := map[string]bool{"serve": false, "migrate": false, "sweep": false, "create-admin": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("missing --config flag")
	}
}

func TestCreateAdmin_RequiresEmail(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"create-admin", "--password", "Abc12345!"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "email") {
		t.Fatalf("expected missing email error, got %v", err)
	}
}

func TestMigrate_NeedsDatabase(t *testing.T) {
	t.Setenv("FOLIO_DATABASE_URL", "")
	t.Setenv("FOLIO_LOG_LEVEL", "error")

	root := rootCmd()
	root.SetArgs([]string{"migrate"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "FOLIO_DATABASE_URL") {
		t.Fatalf("expected missing database error, got %v", err)
	}
}
