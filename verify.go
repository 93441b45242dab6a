package main

import (
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"go.cluttr.dev/formula/internal/metaerr"
)

// Verify compares the SHA-256 digest of the named file with want.
// A mismatch is an IntegrityError; the archive must not be used.
func Verify(path string, want string) error {
	file, err := os.Open(path)
	if err != nil {
		return categorize(ErrIntegrity, err, "path", path)
	}
	defer func() {
		_ = file.Close()
	}()

	got, err := digest(file)
	if err != nil {
		return categorize(ErrIntegrity, fmt.Errorf("hash archive: %w", err), "path", path)
	}
	if !strings.EqualFold(got, want) {
		return metaerr.WithMetadata(
			newError(ErrIntegrity, "checksum mismatch for %s", filepath.Base(path)),
			"path", path, "expected", strings.ToLower(want), "actual", got,
		)
	}
	return nil
}

// FileDigest returns the hex encoded SHA-256 digest of the named file.
func FileDigest(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return "", 0, err
	}
	sum, err := digest(file)
	return sum, info.Size(), err
}

func digest(in io.Reader) (string, error) {
	hash := crypto.SHA256.New()
	if _, err := io.Copy(hash, in); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// SignatureVerifier checks detached OpenPGP signatures of source archives.
type SignatureVerifier struct {
	Client *http.Client

	// BaseDir resolves relative keyring paths.
	BaseDir string
}

// Verify checks that the archive at path is signed by one of the keys in
// sig.Keyring.
func (v *SignatureVerifier) Verify(ctx context.Context, path string, sig Signature) error {
	keyringPath := expandPath(sig.Keyring)
	if !filepath.IsAbs(keyringPath) && v.BaseDir != "" {
		keyringPath = filepath.Join(v.BaseDir, keyringPath)
	}
	keyFile, err := os.Open(keyringPath)
	if err != nil {
		return categorize(ErrIntegrity, fmt.Errorf("open keyring: %w", err), "keyring", keyringPath)
	}
	defer func() {
		_ = keyFile.Close()
	}()
	keyring, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		return categorize(ErrIntegrity, fmt.Errorf("read keyring: %w", err), "keyring", keyringPath)
	}

	sigPath := path + ".sig"
	client := v.Client
	if client == nil {
		client = defaultClient()
	}
	if err := Download(ctx, client, sig.URL, sigPath, nil); err != nil {
		return categorize(ErrDownload, fmt.Errorf("download signature: %w", err), "url", sig.URL)
	}
	defer func() {
		_ = os.Remove(sigPath)
	}()

	signed, err := os.Open(path)
	if err != nil {
		return categorize(ErrIntegrity, err, "path", path)
	}
	defer func() {
		_ = signed.Close()
	}()
	signature, err := os.ReadFile(sigPath)
	if err != nil {
		return categorize(ErrIntegrity, err, "path", sigPath)
	}

	check := openpgp.CheckDetachedSignature
	if isArmored(signature) {
		check = openpgp.CheckArmoredDetachedSignature
	}
	signer, err := check(keyring, signed, bytes.NewReader(signature), nil)
	if err != nil {
		return categorize(ErrIntegrity, fmt.Errorf("bad signature: %w", err), "path", path, "signature", sig.URL)
	}
	if signer != nil && signer.PrimaryKey != nil {
		slog.Debug("signature verified", "path", path, "key", signer.PrimaryKey.KeyIdString())
	}
	return nil
}

// isArmored reports whether a signature is ASCII armored rather than binary.
func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN PGP"))
}
