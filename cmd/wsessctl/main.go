package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess"
	"github.com/danmuck/wsess/coderws"
	"github.com/danmuck/wsess/gorillaws"
	"github.com/danmuck/wsess/internal/logging"
)

type options struct {
	configPath string
	url        string
	transport  string
	protocols  string
	message    string
	count      int
	interval   time.Duration
	attempts   uint
	retryDelay time.Duration
	listen     time.Duration
	headers    http.Header
}

func main() {
	opts, explicit := parseFlags()
	logging.ConfigureRuntime()

	if opts.configPath != "" {
		if err := applyFileConfig(&opts, explicit, opts.configPath); err != nil {
			fatalf("%v", err)
		}
	}
	if strings.TrimSpace(opts.url) == "" {
		fatalf("-url is required")
	}
	factory, err := transportFactory(opts.transport)
	if err != nil {
		fatalf("%v", err)
	}

	client, err := wsess.New(wsess.Config{NewTransport: factory})
	if err != nil {
		fatalf("new client: %v", err)
	}
	p := &printer{closed: make(chan int, 1)}
	if err := client.Subscribe(p); err != nil {
		fatalf("subscribe: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := client.NewSession()
	opts.headers.Set("X-Client-Id", uuid.NewString())

	if err := connectWithRetry(ctx, session, opts); err != nil {
		fatalf("connect: %v", err)
	}
	fmt.Printf("connected to %s (session %d)\n", opts.url, session.ID())
	if offered := session.Subprotocols(); len(offered) > 0 {
		log.Info().Strs("protocols", offered).Msg("sub-protocols offered")
	}

	if opts.message != "" {
		if err := sendAll(ctx, session, opts); err != nil {
			fatalf("%v", err)
		}
	}

	if opts.listen > 0 {
		select {
		case <-time.After(opts.listen):
		case <-ctx.Done():
		}
	}

	if err := session.Disconnect(wsess.CloseNormal); err != nil &&
		!errors.Is(err, wsess.ErrNoTransport) && !errors.Is(err, wsess.ErrInvalidState) {
		log.Warn().Err(err).Msg("disconnect failed")
	}
	select {
	case code := <-p.closed:
		fmt.Printf("closed with code %d\n", code)
	case <-time.After(3 * time.Second):
		log.Warn().Msg("close confirmation timed out")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		fatalf("close client: %v", err)
	}
}

func parseFlags() (options, map[string]bool) {
	opts := options{headers: http.Header{}}
	flag.StringVar(&opts.configPath, "config", "", "TOML config file providing flag defaults")
	flag.StringVar(&opts.url, "url", "", "WebSocket address (ws:// or wss://)")
	flag.StringVar(&opts.transport, "transport", "gorilla", "transport backend: gorilla | coder")
	flag.StringVar(&opts.protocols, "protocols", "", "comma-separated sub-protocol offer")
	flag.StringVar(&opts.message, "message", "", "text message to send")
	flag.IntVar(&opts.count, "count", 1, "times to send the message")
	flag.DurationVar(&opts.interval, "interval", 0, "pause between sends")
	flag.UintVar(&opts.attempts, "attempts", 3, "connect attempts before giving up")
	flag.DurationVar(&opts.retryDelay, "retry-delay", 500*time.Millisecond, "base delay between connect attempts")
	flag.DurationVar(&opts.listen, "listen", 2*time.Second, "how long to keep listening after the last send")
	flag.Func("header", "extra handshake header as Name=Value (repeatable)", func(v string) error {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("header %q not in Name=Value form", v)
		}
		opts.headers.Add(name, strings.TrimSpace(value))
		return nil
	})
	flag.Parse()

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	return opts, explicit
}

func transportFactory(name string) (wsess.TransportFactory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gorilla":
		return gorillaws.Factory(), nil
	case "coder":
		return coderws.Factory(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (supported: gorilla, coder)", name)
	}
}

func connectWithRetry(ctx context.Context, session *wsess.Session, opts options) error {
	return retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			op, err := session.Connect(ctx, opts.url, opts.protocols, opts.headers)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			res, err := op.Wait(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if res.Failed() {
				return fmt.Errorf("connect failed with code %d", res.Code)
			}
			return nil
		},
		retry.Attempts(opts.attempts),
		retry.Delay(opts.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Uint("attempt", uint(n)+1).Err(err).Msg("connect attempt failed")
		}),
	)
}

func sendAll(ctx context.Context, session *wsess.Session, opts options) error {
	for i := 0; i < opts.count; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		op, err := session.Send(opts.message)
		if err != nil {
			return fmt.Errorf("send %d/%d: %w", i+1, opts.count, err)
		}
		res, err := op.Wait(ctx)
		if err != nil {
			return fmt.Errorf("send %d/%d: %w", i+1, opts.count, err)
		}
		if res.Failed() {
			return fmt.Errorf("send %d/%d failed with code %d", i+1, opts.count, res.Code)
		}
		fmt.Printf("sent %d/%d\n", i+1, opts.count)

		if opts.interval > 0 && i < opts.count-1 {
			select {
			case <-time.After(opts.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// printer forwards session traffic to stdout.
type printer struct {
	closed chan int
}

func (p *printer) MessageReceived(s *wsess.Session, payload []byte) {
	fmt.Printf("recv> %s\n", payload)
}

func (p *printer) SessionClosed(s *wsess.Session, code int) {
	select {
	case p.closed <- code:
	default:
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "wsessctl: "+format+"\n", args...)
	os.Exit(1)
}
