package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"bernet/pkg/netdef"
)

// SHA256 returns the lowercase hex digest of everything read from r.
func SHA256(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SHA256File returns the hex digest and size of the file at path.
func SHA256File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	sum, n, err := SHA256(f)
	if err != nil {
		return "", n, fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, n, nil
}

// Verify checks the file at path against the expected digest. A mismatch is
// reported as a netdef integrity violation.
func Verify(path, want string) error {
	want, err := normalizeDigest(want)
	if err != nil {
		return err
	}
	got, _, err := SHA256File(path)
	if err != nil {
		return err
	}
	if got != want {
		return mismatch(path, want, got)
	}
	return nil
}

func normalizeDigest(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", &netdef.Error{Kind: netdef.ErrIntegrity, Msg: "no data_sha256 to verify against"}
	}
	if len(s) != sha256.Size*2 {
		return "", &netdef.Error{Kind: netdef.ErrIntegrity, Msg: fmt.Sprintf("data_sha256 %q is not a SHA-256 hex digest", s)}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", &netdef.Error{Kind: netdef.ErrIntegrity, Msg: fmt.Sprintf("data_sha256 %q is not a SHA-256 hex digest", s)}
	}
	return s, nil
}

func mismatch(what, want, got string) error {
	return &netdef.Error{
		Kind: netdef.ErrIntegrity,
		Msg:  fmt.Sprintf("%s: checksum mismatch: want %s, got %s", what, want, got),
	}
}
