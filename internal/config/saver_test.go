package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "config.json")

	data := []byte(`{"test": "data"}`)
	if err := atomicWrite(testPath, data); err != nil {
		t.Fatalf("atomicWrite failed: %v", err)
	}

	readData, err := os.ReadFile(testPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(readData) != string(data) {
		t.Errorf("content mismatch: got %q, want %q", string(readData), string(data))
	}

	// No temp files left behind
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the config file, found %d entries", len(entries))
	}
}

func TestAtomicWriteCreatesDir(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "subdir", "config.json")

	if err := atomicWrite(testPath, []byte(`{}`)); err != nil {
		t.Fatalf("atomicWrite failed: %v", err)
	}

	if _, err := os.Stat(testPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
}

func TestBackupConfig(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.json")

	originalData := []byte(`{"original": true}`)
	if err := os.WriteFile(testPath, originalData, 0644); err != nil {
		t.Fatalf("failed to create original config: %v", err)
	}

	if err := backupConfig(testPath); err != nil {
		t.Fatalf("backupConfig failed: %v", err)
	}

	bakData, err := os.ReadFile(testPath + ".bak")
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if string(bakData) != string(originalData) {
		t.Errorf("backup content mismatch: got %q, want %q", string(bakData), string(originalData))
	}
}

func TestBackupConfigFirstRun(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.json")

	if err := backupConfig(testPath); err != nil {
		t.Fatalf("backupConfig failed on first run: %v", err)
	}

	if _, err := os.Stat(testPath + ".bak"); !os.IsNotExist(err) {
		t.Error("backup should not exist on first run")
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			data: []byte(`{"servers": {"test": {"command": "node"}}}`),
		},
		{
			name:    "missing servers field",
			data:    []byte(`{"settings": {}}`),
			wantErr: true,
			errMsg:  "missing 'servers' field",
		},
		{
			name:    "empty server command",
			data:    []byte(`{"servers": {"test": {"command": ""}}}`),
			wantErr: true,
			errMsg:  "empty command",
		},
		{
			name:    "invalid JSON",
			data:    []byte(`{invalid json}`),
			wantErr: true,
			errMsg:  "invalid character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJSON(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error message should contain %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestSaveCreatesBackup(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.json")

	cfg := NewConfig()
	cfg.Servers["test"] = &ServerConfig{Command: "node", Args: []string{"server.js"}}

	if err := Save(cfg, testPath); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	cfg.Servers["test"].Args = []string{"server.js", "--updated"}
	if err := Save(cfg, testPath); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	bakData, err := os.ReadFile(testPath + ".bak")
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if strings.Contains(string(bakData), "--updated") {
		t.Error("backup should hold the previous version")
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "config.json")

	cfg := NewConfig()
	cfg.Servers["bad__name"] = &ServerConfig{Command: "node"}

	err := Save(cfg, testPath)
	if err == nil {
		t.Fatal("Save should reject a server name containing the separator")
	}
	if _, statErr := os.Stat(testPath); !os.IsNotExist(statErr) {
		t.Error("invalid config should not be written")
	}
}
