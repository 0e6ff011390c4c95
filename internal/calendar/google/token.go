package google

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	appLog "remindhd/internal/log"
)

// LoadToken reads an OAuth token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("google: decode token %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok to path with 0600 permissions via temp file + rename.
func SaveToken(path string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("google: token is nil")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".remindhd-token-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// persistingTokenSource saves refreshed tokens so a restart does not need a
// new consent.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := SaveToken(p.path, tok); err != nil {
			appLog.Error("google token save failed", err, "path", p.path)
		} else {
			appLog.Info("google token refreshed", "expiry", tok.Expiry)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// Authorize runs the installed-app consent flow: it prints the consent URL
// to out, reads the authorization code from in, and stores the token.
func Authorize(ctx context.Context, credentialsFile, tokenFile string, in io.Reader, out io.Writer) error {
	conf, err := oauthConfig(credentialsFile)
	if err != nil {
		return err
	}
	if conf.RedirectURL == "" {
		conf.RedirectURL = "http://localhost"
	}
	return authorizeWith(ctx, conf, tokenFile, in, out)
}

func authorizeWith(ctx context.Context, conf *oauth2.Config, tokenFile string, in io.Reader, out io.Writer) error {
	state := "remindhd"
	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in a browser and authorize calendar access:\n\n%s\n\n", url)
	fmt.Fprint(out, "Paste the authorization code (the \"code\" parameter of the redirect): ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("google: read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("google: empty authorization code")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("google: exchange authorization code: %w", err)
	}
	if err := SaveToken(tokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", tokenFile)
	return nil
}
