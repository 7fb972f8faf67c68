// Package sshx provides the SSH transport used by the executor layer: a
// client with dial retries and a circuit breaker around session opening,
// plus parsing of the opaque connection-options strings the executor
// carries per host and per call.
package sshx

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"

	"github.com/avolkov/hostrun/internal/lg"
)

// Client wraps an *ssh.Client with resilience around session creation.
type Client struct {
	ssh     *ssh.Client
	breaker *gobreaker.CircuitBreaker
	log     lg.Logger
}

// Dial connects to addr ("host" or "host:port" via opts.Port) with
// exponential-backoff retries. Auth methods are assembled from the parsed
// options: private key first when configured, password as fallback.
func Dial(ctx context.Context, host string, opts Options, log lg.Logger) (*Client, error) {
	if log == nil {
		log = lg.Discard
	}

	auth, err := authMethods(opts)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.Timeout,
		BannerCallback:  func(string) error { return nil },
	}
	addr := fmt.Sprintf("%s:%d", host, opts.Port)

	var client *ssh.Client
	operation := func() error {
		var derr error
		client, derr = ssh.Dial("tcp", addr, cfg)
		if derr != nil {
			log.Warn("ssh dial failed, retrying", lg.String("addr", addr), lg.Err(derr))
		}
		return derr
	}
	bo := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	log.Info("ssh connection established", lg.String("addr", addr))

	cbs := gobreaker.Settings{
		Name:        "ssh-session-" + addr,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Client{
		ssh:     client,
		breaker: gobreaker.NewCircuitBreaker(cbs),
		log:     log,
	}, nil
}

// NewSession opens a session through the circuit breaker. The caller is
// responsible for closing the returned session.
func (c *Client) NewSession() (*ssh.Session, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.ssh.NewSession()
	})
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return res.(*ssh.Session), nil
}

func (c *Client) RemoteAddr() string { return c.ssh.RemoteAddr().String() }

func (c *Client) Close() error { return c.ssh.Close() }

func authMethods(opts Options) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if opts.KeyPath != "" {
		key, err := os.ReadFile(opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if opts.Password != "" {
		auth = append(auth, ssh.Password(opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no auth method configured (key= or password=)")
	}
	return auth, nil
}
