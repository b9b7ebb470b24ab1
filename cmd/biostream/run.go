package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"tailscale.com/tsweb"

	"github.com/banshee-data/biostream/internal/acquire"
	"github.com/banshee-data/biostream/internal/config"
	"github.com/banshee-data/biostream/internal/device"
	"github.com/banshee-data/biostream/internal/httputil"
	"github.com/banshee-data/biostream/internal/journal"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/serialmux"
	"github.com/banshee-data/biostream/internal/stream"
	"github.com/banshee-data/biostream/internal/timeutil"
)

type runFlags struct {
	device       string
	serialPort   string
	udpTarget    string
	httpListen   string
	grpcListen   string
	journal      string
	pollInterval string
}

// apply copies every flag the user set onto cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	set := func(name string, dst **string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = &v
		}
	}
	set("device", &cfg.Device, f.device)
	set("serial-port", &cfg.SerialPort, f.serialPort)
	set("udp-target", &cfg.UDPTarget, f.udpTarget)
	set("http-listen", &cfg.HTTPListen, f.httpListen)
	set("grpc-listen", &cfg.GRPCListen, f.grpcListen)
	set("journal", &cfg.JournalPath, f.journal)
	set("poll-interval", &cfg.PollInterval, f.pollInterval)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.device, "device", "", "device kind: synthetic or serial")
	cmd.Flags().StringVar(&f.serialPort, "serial-port", "", "serial device path")
	cmd.Flags().StringVar(&f.udpTarget, "udp-target", "", "host:port receiving UDP streams (empty disables)")
	cmd.Flags().StringVar(&f.httpListen, "http-listen", "", "HTTP listen address for streams and /debug (empty disables)")
	cmd.Flags().StringVar(&f.grpcListen, "grpc-listen", "", "gRPC health listen address (empty disables)")
	cmd.Flags().StringVar(&f.journal, "journal", "", "sqlite session journal path (empty disables)")
	cmd.Flags().StringVar(&f.pollInterval, "poll-interval", "", "pause between loop iterations, e.g. 50ms")
}

func NewRunCmd(root *rootFlags) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge",
		Long:  `Connect to the headset and publish its streams until interrupted or Enter is pressed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			b := &bridge{
				cfg:    cfg,
				clock:  timeutil.RealClock{},
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
			}
			return b.run(cmd.Context())
		},
	}
	flags.bind(cmd)
	return cmd
}

// bridge is one run of the acquisition loop with its outputs.
type bridge struct {
	cfg    *config.Config
	clock  timeutil.Clock
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// set by run
	loop   *acquire.Loop
	serial *device.SerialSession
	udp    []*stream.UDPSink
}

// loopReport is served at /debug/loop.
type loopReport struct {
	Loop   acquire.Stats       `json:"loop"`
	Serial *device.SerialStats `json:"serial,omitempty"`
	UDP    []stream.UDPStats   `json:"udp,omitempty"`
}

func (b *bridge) report() loopReport {
	r := loopReport{Loop: b.loop.Stats()}
	if b.serial != nil {
		st := b.serial.Stats()
		r.Serial = &st
	}
	for _, s := range b.udp {
		r.UDP = append(r.UDP, s.Stats())
	}
	return r
}

// openSession builds the configured device session. The returned mux is nil
// for the synthetic device.
func openSession(cfg *config.Config, clock timeutil.Clock) (device.Session, serialmux.SerialMuxInterface, error) {
	switch cfg.GetDevice() {
	case config.DeviceSerial:
		sm, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerial())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open serial port %s: %w", cfg.GetSerialPort(), err)
		}
		session := device.NewSerialSession(sm, device.SerialConfig{
			SampleRate:    cfg.GetRawSampleRate(),
			BufferSeconds: cfg.GetDeviceBufferSeconds(),
		})
		return session, sm, nil
	default:
		sc := device.DefaultSyntheticConfig()
		sc.SampleRate = cfg.GetRawSampleRate()
		sc.BufferSeconds = cfg.GetDeviceBufferSeconds()
		return device.NewSyntheticSession(sc, clock), nil, nil
	}
}

// buildSinks returns one sink per group: the WebSocket hub, plus a UDP
// forwarder when a target is configured. The UDP forwarders are also
// returned on their own for reporting.
func buildSinks(ctx context.Context, cfg *config.Config, codec stream.Codec, hub *stream.WebSocketHub, clock timeutil.Clock) ([]stream.Sink, []*stream.UDPSink, error) {
	sinks := make([]stream.Sink, len(stream.Groups))
	var forwarders []*stream.UDPSink
	for _, g := range stream.Groups {
		tee := stream.Tee{hub.Sink()}
		if target := cfg.GetUDPTarget(); target != "" {
			opts := stream.DefaultUDPOptions()
			opts.Clock = clock
			udp, err := stream.NewUDPSink(target, codec, opts)
			if err != nil {
				tee.Close()
				for _, s := range sinks[:g] {
					s.Close()
				}
				return nil, nil, err
			}
			udp.Start(ctx)
			tee = append(tee, udp)
			forwarders = append(forwarders, udp)
		}
		sinks[g] = tee
	}
	return sinks, forwarders, nil
}

func (b *bridge) run(ctx context.Context) error {
	cfg := b.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.waitForEnter(ctx, cancel)

	sourceID := cfg.GetSourceID()
	infos := streamInfos(cfg, sourceID)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}

	codec, err := stream.NewCodec(cfg.GetCodec())
	if err != nil {
		return err
	}
	session, sm, err := openSession(cfg, b.clock)
	if err != nil {
		return b.connectFailed(ctx, fmt.Errorf("%w: %v", acquire.ErrConnect, err))
	}
	// Run disconnects the session itself; this covers setup failures.
	started := false
	defer func() {
		if !started {
			if err := session.Disconnect(); err != nil {
				monitoring.Logf("failed to disconnect from device: %v", err)
			}
		}
	}()

	hub := stream.NewWebSocketHub(codec, b.clock)
	defer hub.Shutdown()
	sinks, udp, err := buildSinks(ctx, cfg, codec, hub, b.clock)
	if err != nil {
		return err
	}
	b.udp = udp
	b.serial, _ = session.(*device.SerialSession)
	pub := stream.NewPublisher(b.clock, cfg.GetPreviewRows())
	defer pub.Close()
	if err := pub.DeclareAll(infos, sinks); err != nil {
		return err
	}

	health := stream.NewHealthReporter(names...)
	observers := []acquire.Observer{health}

	var jrnl *journal.Journal
	if path := cfg.GetJournalPath(); path != "" {
		jrnl, err = journal.Open(path, b.clock)
		if err != nil {
			return err
		}
		defer func() {
			if err := jrnl.EndSession(pub.Stats()); err != nil && !errors.Is(err, journal.ErrNoSession) {
				monitoring.Logf("failed to close journal session: %v", err)
			}
			if err := jrnl.Close(); err != nil {
				monitoring.Logf("failed to close journal: %v", err)
			}
		}()
		if _, err := jrnl.BeginSession(sourceID, names); err != nil {
			return err
		}
		observers = append(observers, jrnl)
	}

	b.loop = acquire.New(session, pub, acquire.Options{
		Interval:  cfg.GetPollInterval(),
		Clock:     b.clock,
		Observers: observers,
	})

	var wg sync.WaitGroup
	defer func() {
		health.Shutdown()
		cancel()
		wg.Wait()
	}()
	if addr := cfg.GetHTTPListen(); addr != "" {
		mux := http.NewServeMux()
		pub.AttachAdminRoutes(mux)
		hub.Register(mux)
		if sm != nil {
			sm.AttachAdminRoutes(mux)
		}
		if jrnl != nil {
			if err := jrnl.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		b.attachLoopRoutes(mux)
		if err := serveHTTP(ctx, &wg, addr, mux); err != nil {
			return err
		}
	}
	if addr := cfg.GetGRPCListen(); addr != "" {
		if err := serveGRPC(ctx, &wg, addr, health); err != nil {
			return err
		}
	}

	fmt.Fprintf(b.out, "biostream: %s, %s, %s (source %s)\n", names[stream.Raw], names[stream.Features], names[stream.Metrics], sourceID)
	fmt.Fprintln(b.out, "Press Enter to stop.")

	started = true
	err = b.loop.Run(ctx)
	if errors.Is(err, acquire.ErrConnect) {
		return b.connectFailed(ctx, err)
	}
	if err != nil {
		return err
	}
	st := b.loop.Stats()
	monitoring.Logf("stopped after %d iterations: %d raw, %d feature, %d metric rows, %d failures",
		st.Iterations, st.RawRows, st.FeatureRows, st.MetricRows, st.Failed)
	return nil
}

// connectFailed reports err once and, on a terminal, holds the message on
// screen until Enter is pressed.
func (b *bridge) connectFailed(ctx context.Context, err error) error {
	fmt.Fprintf(b.errOut, "%v\n", err)
	if interactive(b.in) {
		fmt.Fprintln(b.errOut, "Press Enter to exit.")
		<-ctx.Done()
	}
	return err
}

// waitForEnter cancels the run when a line is read from stdin. End of input
// is not a request to stop.
func (b *bridge) waitForEnter(ctx context.Context, cancel context.CancelFunc) {
	if b.in == nil {
		return
	}
	lines := make(chan struct{})
	go func() {
		if _, err := bufio.NewReader(b.in).ReadString('\n'); err == nil {
			close(lines)
		}
	}()
	select {
	case <-lines:
		monitoring.Logf("stop requested")
		cancel()
	case <-ctx.Done():
	}
}

func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (b *bridge) attachLoopRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("loop", "acquisition loop, serial and UDP counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, b.report())
	})
}

func serveHTTP(ctx context.Context, wg *sync.WaitGroup, addr string, handler http.Handler) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server := &http.Server{Handler: handler}
	monitoring.Logf("HTTP listening on %s", lis.Addr())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()
	return nil
}

func serveGRPC(ctx context.Context, wg *sync.WaitGroup, addr string, health *stream.HealthReporter) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	gs := grpc.NewServer()
	health.Register(gs)
	monitoring.Logf("gRPC health listening on %s", lis.Addr())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gs.Serve(lis); err != nil {
			monitoring.Logf("gRPC server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		gs.GracefulStop()
	}()
	return nil
}
