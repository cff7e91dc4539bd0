package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFileName is written next to the config file by `config lock` and
// verified on every load when present.
const ChecksumFileName = ".checksums"

type checksumFile struct {
	GeneratedAt string            `yaml:"generated_at"`
	Files       map[string]string `yaml:"files"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// Lock authorizes the current config content by writing its BLAKE3 checksum
// to the .checksums file beside it.
func Lock(configPath string) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return err
	}

	cf := checksumFile{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Files: map[string]string{
			filepath.Base(absPath): hash,
		},
	}
	data, err := yaml.Marshal(&cf)
	if err != nil {
		return fmt.Errorf("failed to marshal checksums: %w", err)
	}

	checksumPath := filepath.Join(filepath.Dir(absPath), ChecksumFileName)
	if err := os.WriteFile(checksumPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", checksumPath, err)
	}
	return nil
}

// verifyConfigHash checks the config file against the .checksums entry when
// one exists. A missing .checksums file means integrity checking is not in
// use and is not an error.
func verifyConfigHash(configPath string) error {
	checksumPath := filepath.Join(filepath.Dir(configPath), ChecksumFileName)
	data, err := os.ReadFile(checksumPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", checksumPath, err)
	}

	var cf checksumFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", checksumPath, err)
	}

	expected, ok := cf.Files[filepath.Base(configPath)]
	if !ok {
		return fmt.Errorf("%s has no entry for %s\n"+
			"Hint: run 'kolibrid config lock' to authorize the current config",
			ChecksumFileName, filepath.Base(configPath))
	}

	if err := VerifyFileHash(configPath, expected); err != nil {
		return fmt.Errorf("config integrity check failed: %w\n"+
			"Hint: run 'kolibrid config lock' to authorize the current config", err)
	}
	return nil
}
