package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/pkg/sys"

	"main/internal/api"
	"main/internal/gateway"
	"main/internal/ops"
	"main/internal/session"
	"main/internal/transport"
	"main/pkg/conn"
)

type event struct {
	SN   uint64
	Data json.RawMessage
}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	token := flag.String("token", "", "Bot token (overrides config)")
	statusInterval := flag.Duration("status-interval", 30*time.Second, "Snapshot log interval (0=disable)")
	profile := flag.Bool("profile", false, "Enable pyroscope profiling")
	profileAddr := flag.String("profile-addr", "http://localhost:4040", "Pyroscope server address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *token != "" {
		loaded.Token = *token
	}

	if *profile {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "gateway/bot",
			ServerAddress:   *profileAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	store, closeStore, err := buildStore(ctx, loaded)
	if err != nil {
		log.Fatalf("session store setup failed: %v", err)
	}
	defer closeStore()

	provider := api.New(loaded.BaseURL, loaded.Token)
	if me, err := provider.Me(ctx); err != nil {
		log.Printf("profile fetch failed: %v", err)
	} else {
		log.Printf("connected as %s (id=%s bot=%t)", me.Username, me.ID, me.Bot)
	}

	events := make(chan event, 256)
	client, err := gateway.New(provider, &transport.Dialer{}, gateway.Option{
		Store:         store,
		Compress:      loaded.Compress,
		HeartbeatMode: loaded.HeartbeatMode,
		OnEvent:       eventSink(ctx, events),
		OnStateChange: func(prev, next gateway.State, reason string) {
			log.Printf("state %s -> %s (%s)", prev, next, reason)
		},
		OnError: func(err error) {
			if errors.Is(err, gateway.ErrTokenExpired) {
				log.Printf("token expired, refresh credentials: %v", err)
			}
		},
	})
	if err != nil {
		log.Fatalf("gateway client setup failed: %v", err)
	}

	if err := client.Start(ctx); err != nil {
		log.Fatalf("gateway start failed: %v", err)
	}
	defer client.Stop()

	go consumeEvents(ctx, events)

	if *statusInterval > 0 {
		runStatusLoop(ctx, client, *statusInterval)
	} else {
		select {
		case <-ctx.Done():
		case <-sys.Shutdown():
		}
	}
	log.Print("shutting down")
}

// eventSink forwards events to the consumer channel. The shutdown branch
// keeps the connection loop from stalling on a full channel once the
// consumer is gone.
func eventSink(ctx context.Context, events chan<- event) func(sn uint64, data json.RawMessage) {
	return func(sn uint64, data json.RawMessage) {
		select {
		case events <- event{SN: sn, Data: data}:
		case <-ctx.Done():
		}
	}
}

func consumeEvents(ctx context.Context, events <-chan event) {
	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case ev := <-events:
			log.Printf("event sn=%d bytes=%d", ev.SN, len(ev.Data))
		}
	}
}

func runStatusLoop(ctx context.Context, client *gateway.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sys.Shutdown():
			return
		case <-ticker.C:
			snap := client.Snapshot()
			data, err := json.Marshal(snap)
			if err != nil {
				log.Printf("snapshot marshal failed: %v", err)
				continue
			}
			log.Printf("status: %s", data)
		}
	}
}

func buildStore(ctx context.Context, loaded ops.Loaded) (session.Store, func(), error) {
	noop := func() {}
	switch loaded.Session.Backend {
	case ops.SessionFile:
		return session.NewFileStore(loaded.Session.Path), noop, nil
	case ops.SessionPostgres:
		pg := loaded.Postgres
		client, err := conn.New(conn.Option{
			Host:       pg.Host,
			Port:       pg.Port,
			User:       pg.User,
			Password:   pg.Password,
			Database:   pg.Database,
			SSLMode:    pg.SSLMode,
			Params:     pg.Params,
			ConnString: pg.ConnString,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store, err := session.NewPGStore(client, loaded.Session.BotID)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return session.NewMemoryStore(), noop, nil
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
