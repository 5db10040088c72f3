// Package mtproto adapts a gotd/td user-account client to the
// platform.Session interface.
package mtproto

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/nextlevelbuilder/tgmon/internal/platform"
)

// CodePrompt asks the operator for the login code sent by the platform.
type CodePrompt func(ctx context.Context) (string, error)

// Options configures a user session.
type Options struct {
	APIID       int
	APIHash     string
	Phone       string
	SessionPath string
	// CodePrompt is invoked during first sign-in. Headless runs without a
	// session file fail instead of hanging when nil.
	CodePrompt CodePrompt
}

// Client is a platform.Session backed by an MTProto user account.
type Client struct {
	opts     Options
	handlers platform.Handlers

	mu    sync.Mutex
	api   *tg.Client
	peers map[int64]tg.InputPeerClass // marked group id -> input peer
}

// New builds a client bound to a persistent session file.
func New(opts Options) *Client {
	return &Client{
		opts:  opts,
		peers: make(map[int64]tg.InputPeerClass),
	}
}

// SetHandlers registers live event handlers. Must precede Run.
func (c *Client) SetHandlers(h platform.Handlers) {
	c.handlers = h
}

// Run connects and authenticates, invokes ready, then blocks delivering
// updates until ctx is canceled or the connection fails.
func (c *Client) Run(ctx context.Context, ready func(ctx context.Context) error) error {
	if dir := filepath.Dir(c.opts.SessionPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	dispatcher := tg.NewUpdateDispatcher()
	c.registerHandlers(dispatcher)

	client := telegram.NewClient(c.opts.APIID, c.opts.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.opts.SessionPath},
		UpdateHandler:  dispatcher,
	})

	err := client.Run(ctx, func(ctx context.Context) error {
		if err := c.authenticate(ctx, client); err != nil {
			return err
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("fetch self: %w", err)
		}
		slog.Info("session authorized",
			"user_id", self.ID,
			"username", self.Username,
			"phone", c.opts.Phone)

		c.mu.Lock()
		c.api = client.API()
		c.mu.Unlock()

		if ready != nil {
			if err := ready(ctx); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	})
	return wrapFloodWait(err)
}

// authenticate performs the code flow only when the stored session is not
// already authorized; a second sign-in on a live session is a no-op.
func (c *Client) authenticate(ctx context.Context, client *telegram.Client) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if status.Authorized {
		return nil
	}
	if c.opts.CodePrompt == nil {
		return fmt.Errorf("session %s not authorized and no code prompt available", c.opts.SessionPath)
	}

	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return c.opts.CodePrompt(ctx)
	})
	flow := auth.NewFlow(auth.Constant(c.opts.Phone, "", codeAuth), auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("sign in %s: %w", c.opts.Phone, err)
	}
	return nil
}

func (c *Client) apiClient() *tg.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api
}

func (c *Client) rememberPeer(markedID int64, peer tg.InputPeerClass) {
	c.mu.Lock()
	c.peers[markedID] = peer
	c.mu.Unlock()
}

func (c *Client) peerFor(markedID int64) (tg.InputPeerClass, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[markedID]
	return p, ok
}

// wrapFloodWait converts a platform flood wait into the rate-limit error the
// worker's backoff honors exactly.
func wrapFloodWait(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &platform.RateLimitError{Wait: d}
	}
	return err
}
