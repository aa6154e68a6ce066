package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sd-address-tools/internal/cli"
	"sd-address-tools/internal/model"
	"sd-address-tools/internal/sd"
	"sd-address-tools/internal/sd/sdtest"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd == nil {
		t.Fatal("newRootCmd returned nil")
	}
	if cmd.Use != "update-blocklist" {
		t.Errorf("Expected use 'update-blocklist', got '%s'", cmd.Use)
	}
	for _, name := range []string{"file", "user", "provider", "db", "group", "dry-run", "url", "config"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected flag --%s", name)
		}
	}
}

func TestLoadEntries(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "blocklist.txt")
	os.WriteFile(path, []byte("# header\n192.0.2.1\n\n  10.0.0.0/24  \n"), 0644)

	lines, err := loadEntries("file", path, "", "")
	if err != nil {
		t.Fatalf("loadEntries failed: %v", err)
	}
	if len(lines) != 2 || lines[1] != "10.0.0.0/24" {
		t.Errorf("Unexpected lines: %v", lines)
	}

	if _, err := loadEntries("file", "", "", ""); err == nil {
		t.Error("Expected error without a file path")
	}
	if _, err := loadEntries("file", filepath.Join(tmpDir, "missing.txt"), "", ""); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := loadEntries("mariadb", "", "", ""); err == nil {
		t.Error("Expected error without a connection string")
	}
	if _, err := loadEntries("csv", path, "", ""); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

// runCmd executes the command against srv and returns its console output.
func runCmd(t *testing.T, srv *sdtest.Server, args ...string) (string, error) {
	t.Helper()

	orig := cli.PromptPassword
	cli.PromptPassword = func(w io.Writer, user string) (string, error) {
		return "secret", nil
	}
	t.Cleanup(func() { cli.PromptPassword = orig })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	base := []string{
		"-u", "admin",
		"--url", srv.URL,
		"--color", "never",
		"--log-file", filepath.Join(t.TempDir(), "run.log"),
	}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeBlocklist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocklist.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write blocklist: %v", err)
	}
	return path
}

func TestRunUpdatesGroup(t *testing.T) {
	srv := sdtest.NewServer("admin", "secret")
	defer srv.Close()
	existing := srv.AddAddress("BL-192.0.2.1", model.Host, "192.0.2.1", nil)
	other := srv.AddAddress("web", model.Host, "198.51.100.80", nil)
	group := srv.AddGroup("SIRT-Block-List", other)

	path := writeBlocklist(t, "192.0.2.1\n203.0.113.0/24\n10.0.0.1/24\n")
	out, err := runCmd(t, srv, "-f", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	members := srv.Members(group)
	if len(members) != 3 || members[0] != other || members[1] != existing {
		t.Fatalf("Unexpected group members: %v", members)
	}
	created, ok := srv.Object(members[2])
	if !ok || created.IPAddress != "203.0.113.0/24" || created.Type != model.Network {
		t.Fatalf("Unexpected created object: %+v", created)
	}

	for _, want := range []string{"Existing(" + existing.String() + ")", "New(" + members[2].String() + ")", "Format=ERROR", "C O M P L E T E", "    - 10.0.0.1/24"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
	if srv.ActiveSessions() != 0 || srv.Logouts() != 1 {
		t.Errorf("Expected exactly one logout, got %d (active %d)", srv.Logouts(), srv.ActiveSessions())
	}
}

func TestRunMissingGroupTouchesNothing(t *testing.T) {
	srv := sdtest.NewServer("admin", "secret")
	defer srv.Close()

	path := writeBlocklist(t, "192.0.2.1\n192.0.2.2\n")
	out, err := runCmd(t, srv, "-f", path, "--group", "Nope")
	if !errors.Is(err, sd.ErrGroupNotFound) {
		t.Fatalf("Expected ErrGroupNotFound, got %v", err)
	}
	if !strings.Contains(out, "address group 'Nope' is not present") {
		t.Errorf("Expected group error in output:\n%s", out)
	}
	if n := srv.CountCalls("GET", "ipAddress"); n != 0 {
		t.Errorf("Expected no address lookups, got %d", n)
	}
	if n := srv.CountCalls("POST", ""); n != 0 {
		t.Errorf("Expected no creations, got %d", n)
	}
	if srv.Logouts() != 1 {
		t.Errorf("Expected the session to be closed, logouts=%d", srv.Logouts())
	}
}

func TestRunDryRun(t *testing.T) {
	srv := sdtest.NewServer("admin", "secret")
	defer srv.Close()
	group := srv.AddGroup("SIRT-Block-List")

	path := writeBlocklist(t, "192.0.2.1\n")
	out, err := runCmd(t, srv, "-f", path, "--dry-run")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if srv.CountCalls("POST", "") != 0 || srv.CountCalls("PUT", "") != 0 {
		t.Errorf("Dry run must not write, calls=%v", srv.Calls())
	}
	if len(srv.Members(group)) != 0 {
		t.Errorf("Dry run changed the group")
	}
	if !strings.Contains(out, "New(dry-run)") {
		t.Errorf("Expected planned entry in output:\n%s", out)
	}
}

func TestRunNothingToAdd(t *testing.T) {
	srv := sdtest.NewServer("admin", "secret")
	defer srv.Close()
	existing := srv.AddAddress("BL-192.0.2.1", model.Host, "192.0.2.1", nil)
	srv.AddGroup("SIRT-Block-List", existing)

	path := writeBlocklist(t, "192.0.2.1\n")
	out, err := runCmd(t, srv, "-f", path)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if n := srv.CountCalls("PUT", ""); n != 0 {
		t.Errorf("Expected no group update, got %d", n)
	}
	if strings.Contains(out, "has been updated") {
		t.Errorf("Output claims the group was updated:\n%s", out)
	}
	if !strings.Contains(out, "was not modified") {
		t.Errorf("Expected unchanged group notice in output:\n%s", out)
	}
}

func TestRunConflict(t *testing.T) {
	srv := sdtest.NewServer("admin", "secret")
	defer srv.Close()
	srv.AddGroup("SIRT-Block-List")
	srv.BeforeUpdate = func(s *sdtest.Server, groupID int) {
		s.BumpEditVersion(groupID)
	}

	path := writeBlocklist(t, "192.0.2.1\n")
	_, err := runCmd(t, srv, "-f", path)
	if !errors.Is(err, sd.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
	if srv.CountCalls("PUT", "") != 1 {
		t.Errorf("Expected a single update attempt, got %d", srv.CountCalls("PUT", ""))
	}
}

func TestRunWrongPassword(t *testing.T) {
	srv := sdtest.NewServer("admin", "other")
	defer srv.Close()

	path := writeBlocklist(t, "192.0.2.1\n")
	if _, err := runCmd(t, srv, "-f", path); !errors.Is(err, sd.ErrAuth) {
		t.Fatalf("Expected ErrAuth, got %v", err)
	}
}
