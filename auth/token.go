// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// DefaultTokenPath is where the access token persists across runs.
const DefaultTokenPath = "~/.config/motion-golden/.token"

const tokenBytes = 32

var ErrEmptyToken = errors.New("access token is empty")

type TokenConfig struct {
	// Path (Optional) defaults to DefaultTokenPath.
	Path string

	Logger *zap.Logger
}

// TokenStore holds the process access token.  The token is read from the
// first line of the token file, or generated and saved when the file does
// not exist.
type TokenStore struct {
	path  string
	token string
}

func NewTokenStore(config TokenConfig) (*TokenStore, error) {
	if len(config.Path) == 0 {
		config.Path = DefaultTokenPath
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}

	path, err := homedir.Expand(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed expanding token path: %w", err)
	}

	token, err := readToken(path)
	if err == nil {
		return &TokenStore{path: path, token: token}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	token, err = generateToken()
	if err != nil {
		return nil, err
	}
	if err := saveToken(path, token); err != nil {
		// the token still protects this process, it just won't survive it
		config.Logger.Warn("unable to save the access token", zap.String("path", path), zap.Error(err))
	}
	return &TokenStore{path: path, token: token}, nil
}

func (s *TokenStore) Token() string { return s.token }

func (s *TokenStore) Path() string { return s.path }

func readToken(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", ErrEmptyToken
	}
	token := strings.TrimSpace(line)
	if len(token) == 0 {
		return "", ErrEmptyToken
	}
	return token, nil
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func saveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
