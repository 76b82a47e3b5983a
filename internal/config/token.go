package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const tokenAccount = "api_token"

func secretsFilePath(dataDir string) string {
	return filepath.Join(dataDir, "secrets.json")
}

// GetAPIToken returns the bearer token guarding the HTTP API. An explicit
// CINESENSE_API_TOKEN wins; otherwise the token is read from secrets.json in
// the data dir and generated on first use.
func GetAPIToken(cfg Config) (string, error) {
	if cfg.Server.APIToken != "" {
		return cfg.Server.APIToken, nil
	}

	path := secretsFilePath(cfg.Storage.DataDir)
	secrets, err := readSecrets(path)
	if err != nil {
		return "", err
	}
	if tok := secrets[tokenAccount]; tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	secrets[tokenAccount] = hex.EncodeToString(buf)
	if err := writeSecrets(path, secrets); err != nil {
		return "", err
	}
	return secrets[tokenAccount], nil
}

func readSecrets(path string) (map[string]string, error) {
	secrets := make(map[string]string)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func writeSecrets(path string, secrets map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
